package usecase

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
)

// User-facing fallback texts. The bots speak Russian regardless of the
// operator panel language.
const (
	nonTextReplyText = "Извините, я работаю только с текстовыми сообщениями."
	genericErrorText = "Извините, произошла ошибка при обработке вашего сообщения."
)

// ActiveSet reports whether a bot currently holds a polling worker.
// Implemented by the supervisor; the pipeline uses it to drop messages
// arriving for bots that were stopped mid-flight.
type ActiveSet interface {
	IsActive(botID string) bool
}

// IncomingMessage is one Telegram message already stripped to what the
// pipeline needs. IsText is false for stickers, photos, voice and the
// rest of the non-text update kinds.
type IncomingMessage struct {
	BotID     string
	ChatID    int64
	MessageID int
	Text      string
	IsText    bool
}

// IncomingCallback is one inline-button press. The transport layer
// answers the callback query before handing it over.
type IncomingCallback struct {
	BotID     string
	ChatID    int64
	MessageID int
	Data      string
}

// ProcessMessageUseCase drives one update end to end: re-read the bot
// row, health-check it, try the command engine, and otherwise answer
// with a memory-aware LLM call recorded into chat history. Every
// failure path ends in a chat reply; the transport never sees errors.
type ProcessMessageUseCase struct {
	bots    repository.BotRepository
	history repository.HistoryRepository
	engine  *service.CommandEngine
	llm     service.LLMClient
	active  ActiveSet
	monitor *monitoring.Monitor
	rec     *logger.Recorder
}

// NewProcessMessageUseCase creates the message pipeline.
func NewProcessMessageUseCase(
	bots repository.BotRepository,
	history repository.HistoryRepository,
	engine *service.CommandEngine,
	llm service.LLMClient,
	active ActiveSet,
	monitor *monitoring.Monitor,
	rec *logger.Recorder,
) *ProcessMessageUseCase {
	return &ProcessMessageUseCase{
		bots:    bots,
		history: history,
		engine:  engine,
		llm:     llm,
		active:  active,
		monitor: monitor,
		rec:     rec,
	}
}

// ExecuteText processes one incoming chat message.
func (uc *ProcessMessageUseCase) ExecuteText(ctx context.Context, m service.Messenger, msg IncomingMessage) {
	uc.monitor.IncMessageTotal()
	chatID := strconv.FormatInt(msg.ChatID, 10)

	// 1. Re-read the bot row; the worker's snapshot may be stale after
	// a hot reload.
	bot, err := uc.bots.FindByID(ctx, msg.BotID)
	if err != nil {
		uc.fail(ctx, m, chatID, "failed to load bot for message", msg.BotID, err)
		return
	}

	// 2. Drop messages for bots stopped while this update was in flight.
	if !uc.healthy(bot) {
		return
	}

	// 3. Text only.
	if !msg.IsText {
		if _, err := m.SendText(ctx, chatID, nonTextReplyText); err != nil {
			uc.fail(ctx, m, chatID, "failed to refuse non-text message", bot.ID, err)
			return
		}
		uc.monitor.IncMessageSuccess()
		return
	}

	// 4-5. Command engine: visibility, intent probe, execution.
	handled, err := uc.engine.HandleText(ctx, m, bot, chatID, msg.Text)
	if err != nil {
		if handled {
			// The engine already reported to the chat and the log.
			uc.monitor.IncMessageFailed()
			return
		}
		uc.fail(ctx, m, chatID, "command engine failed", bot.ID, err)
		return
	}
	if handled {
		uc.monitor.IncMessageSuccess()
		return
	}

	// 6. Plain conversation with memory.
	uc.converse(ctx, m, bot, chatID, msg.Text)
}

// ExecuteCallback processes one inline-button press. The non-text check
// is skipped and a matched command edits the originating message.
func (uc *ProcessMessageUseCase) ExecuteCallback(ctx context.Context, m service.Messenger, cb IncomingCallback) {
	uc.monitor.IncMessageTotal()
	chatID := strconv.FormatInt(cb.ChatID, 10)

	bot, err := uc.bots.FindByID(ctx, cb.BotID)
	if err != nil {
		uc.fail(ctx, m, chatID, "failed to load bot for callback", cb.BotID, err)
		return
	}
	if !uc.healthy(bot) {
		return
	}

	handled, err := uc.engine.HandleCallback(ctx, m, bot, chatID, cb.Data, cb.MessageID)
	if err != nil {
		if handled {
			uc.monitor.IncMessageFailed()
			return
		}
		uc.fail(ctx, m, chatID, "command engine failed on callback", bot.ID, err)
		return
	}
	if handled {
		uc.monitor.IncMessageSuccess()
		return
	}

	// Unmatched callback data falls through to the chat flow, treating
	// the data string as the user's message.
	uc.converse(ctx, m, bot, chatID, cb.Data)
}

// healthy checks step 2 of the flow: both the persisted flag and the
// supervisor's live set must agree the bot is running.
func (uc *ProcessMessageUseCase) healthy(bot *entity.Bot) bool {
	if bot.IsRunning && uc.active.IsActive(bot.ID) {
		return true
	}
	uc.rec.Warning(logger.CategoryBot, "Dropping message for stopped bot",
		zap.String("bot_id", bot.ID),
		zap.Bool("is_running", bot.IsRunning))
	return false
}

// converse answers with the LLM, memory window included, and records
// the exchange.
func (uc *ProcessMessageUseCase) converse(ctx context.Context, m service.Messenger, bot *entity.Bot, chatID, text string) {
	req := service.ChatRequest{
		Config: service.ProviderConfig{
			APIURL:       bot.APIURL,
			APIKey:       bot.APIKey,
			Model:        bot.AIModel,
			SystemPrompt: bot.SystemPrompt,
			DatabaseID:   bot.DatabaseID,
		},
		History: uc.memoryWindow(ctx, bot, chatID),
		Message: text,
	}

	// Complete always returns text safe for the chat; err marks the
	// reply as a failure for the stats.
	reply, llmErr := uc.llm.Complete(ctx, req)

	if _, err := m.SendText(ctx, chatID, reply); err != nil {
		uc.fail(ctx, m, chatID, "failed to send reply", bot.ID, err)
		return
	}
	if llmErr != nil {
		uc.monitor.IncMessageFailed()
		return
	}

	entry := &entity.ChatHistoryEntry{
		ID:          uuid.NewString(),
		BotID:       bot.ID,
		ChatID:      chatID,
		UserMessage: text,
		AIResponse:  reply,
		Timestamp:   time.Now().UTC(),
	}
	if err := uc.history.Append(ctx, entry); err != nil {
		// The user already has the reply; surface the loss in the log
		// only.
		uc.rec.Error(logger.CategoryDatabase, "failed to record chat history",
			zap.String("bot_id", bot.ID),
			zap.String("chat_id", chatID),
			zap.Error(err))
		uc.monitor.IncMessageFailed()
		return
	}

	uc.monitor.IncMessageSuccess()
}

// memoryWindow loads the recent exchanges when memory is enabled. A
// read failure degrades to an empty window rather than blocking the
// reply.
func (uc *ProcessMessageUseCase) memoryWindow(ctx context.Context, bot *entity.Bot, chatID string) []service.Exchange {
	window := bot.MemoryWindow()
	if window <= 0 {
		return nil
	}

	entries, err := uc.history.FindRecent(ctx, bot.ID, chatID, window)
	if err != nil {
		uc.rec.Warning(logger.CategoryDatabase, "failed to load memory window",
			zap.String("bot_id", bot.ID),
			zap.String("chat_id", chatID),
			zap.Error(err))
		return nil
	}

	exchanges := make([]service.Exchange, 0, len(entries))
	for _, e := range entries {
		exchanges = append(exchanges, service.Exchange{
			UserMessage: e.UserMessage,
			AIResponse:  e.AIResponse,
		})
	}
	return exchanges
}

// fail is the catch-all of step 7: apologize in the chat, log ERROR,
// count the failure. The apology send is best effort.
func (uc *ProcessMessageUseCase) fail(ctx context.Context, m service.Messenger, chatID, logMsg, botID string, err error) {
	uc.rec.Error(logger.CategoryBot, logMsg,
		zap.String("bot_id", botID),
		zap.String("chat_id", chatID),
		zap.Error(err))
	m.SendText(ctx, chatID, genericErrorText)
	uc.monitor.IncMessageFailed()
}
