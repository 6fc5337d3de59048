package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// supportSystemPrompt is used when the operator has not configured one.
const supportSystemPrompt = "Ты — помощник технической поддержки панели управления ботами. " +
	"Помогай операторам настраивать ботов, команды и базы знаний. " +
	"Отвечай кратко и по делу."

// SupportChatUseCase answers operator questions on the admin panel. The
// provider comes from the support_ai_* settings instead of a bot row,
// and the conversation is stateless.
type SupportChatUseCase struct {
	settings repository.SettingRepository
	llm      service.LLMClient
	rec      *logger.Recorder
}

// NewSupportChatUseCase creates the support chat use-case.
func NewSupportChatUseCase(
	settings repository.SettingRepository,
	llm service.LLMClient,
	rec *logger.Recorder,
) *SupportChatUseCase {
	return &SupportChatUseCase{
		settings: settings,
		llm:      llm,
		rec:      rec,
	}
}

// Ask performs one blocking exchange.
func (uc *SupportChatUseCase) Ask(ctx context.Context, message string) (string, error) {
	cfg, err := uc.providerConfig(ctx)
	if err != nil {
		return "", err
	}

	reply, err := uc.llm.Complete(ctx, service.ChatRequest{Config: cfg, Message: message})
	if err != nil {
		uc.rec.Error(logger.CategorySupport, "support chat call failed", zap.Error(err))
		// The reply still carries the localized failure text.
		return reply, err
	}

	uc.rec.Info(logger.CategorySupport, "support chat exchange completed")
	return reply, nil
}

// Stream performs one streaming exchange.
func (uc *SupportChatUseCase) Stream(ctx context.Context, message string) (<-chan service.StreamChunk, error) {
	cfg, err := uc.providerConfig(ctx)
	if err != nil {
		return nil, err
	}

	return uc.llm.Stream(ctx, service.ChatRequest{Config: cfg, Message: message})
}

// providerConfig assembles the provider from settings. A missing API
// URL means the assistant was never configured and is reported as
// invalid input rather than a provider failure.
func (uc *SupportChatUseCase) providerConfig(ctx context.Context) (service.ProviderConfig, error) {
	cfg := service.ProviderConfig{
		APIURL:       uc.setting(ctx, entity.SettingSupportAIAPIURL),
		APIKey:       uc.setting(ctx, entity.SettingSupportAIAPIKey),
		Model:        uc.setting(ctx, entity.SettingSupportAIModel),
		SystemPrompt: uc.setting(ctx, entity.SettingSupportAISystemPrompt),
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = supportSystemPrompt
	}
	if cfg.APIURL == "" {
		return cfg, domainErrors.NewInvalidInputError("Настройки AI-помощника не заполнены")
	}
	return cfg, nil
}

func (uc *SupportChatUseCase) setting(ctx context.Context, key string) string {
	s, err := uc.settings.Get(ctx, key)
	if err != nil {
		if !domainErrors.IsNotFound(err) {
			uc.rec.Warning(logger.CategorySettings, "failed to read setting",
				zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return s.Value
}
