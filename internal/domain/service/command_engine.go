package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// Sent when command execution fails in a way the user must see.
const execFailureText = "Ошибка выполнения команды."

// Fallback body for menus and multi-command welcomes without text.
const defaultActionPrompt = "Выберите действие:"

// System prompt for the conversational lead-in sent before a scripted
// command runs.
const ackSystemPrompt = "Ты дружелюбный помощник. Кратко подтверди запрос пользователя одним-двумя предложениями. Не перечисляй пункты меню и не описывай команды."

// CommandEngine matches incoming messages against a bot's scripted
// commands and executes the match. Free-form text goes through an LLM
// intent probe; callback data matches by exact name.
type CommandEngine struct {
	commands repository.CommandRepository
	registry *ContextRegistry
	llm      LLMClient
	rec      *logger.Recorder

	// Pause between the natural-language lead-in and the scripted
	// action, so the two messages read as a sequence.
	preActionDelay time.Duration
}

// NewCommandEngine wires the engine with its collaborators.
func NewCommandEngine(commands repository.CommandRepository, registry *ContextRegistry, llm LLMClient, rec *logger.Recorder) *CommandEngine {
	return &CommandEngine{
		commands:       commands,
		registry:       registry,
		llm:            llm,
		rec:            rec,
		preActionDelay: 500 * time.Millisecond,
	}
}

// HandleText routes one free-form message. Returns true when a command
// was matched and executed; false means the caller should fall through
// to the plain LLM chat flow.
func (e *CommandEngine) HandleText(ctx context.Context, m Messenger, bot *entity.Bot, chatID, text string) (bool, error) {
	visible, err := e.visibleFor(ctx, bot, chatID)
	if err != nil {
		return false, err
	}
	if len(visible) == 0 {
		return false, nil
	}

	probe := ChatRequest{
		Config: ProviderConfig{
			APIURL:       bot.APIURL,
			APIKey:       bot.APIKey,
			Model:        bot.AIModel,
			SystemPrompt: intentSystemPrompt,
		},
		Message: BuildIntentPrompt(visible, text),
	}
	resp, err := e.llm.Complete(ctx, probe)
	if err != nil {
		e.rec.Warning(logger.CategoryBot, "intent probe failed, falling back to chat",
			zap.String("bot_id", bot.ID), zap.Error(err))
		return false, nil
	}

	matched := MatchIntent(resp, visible)
	if matched == nil {
		return false, nil
	}
	e.rec.Info(logger.CategoryBot, "command matched by intent",
		zap.String("bot_id", bot.ID),
		zap.String("chat_id", chatID),
		zap.String("command", matched.Name))

	if !isMultiCommand(matched) {
		e.sendLeadIn(ctx, m, bot, chatID, text)
	}

	return true, e.Execute(ctx, m, bot, matched, chatID, 0)
}

// HandleCallback routes one inline-button press. The callback data is
// a command name; matching is exact. A matched command edits the
// originating message in place where its type allows.
func (e *CommandEngine) HandleCallback(ctx context.Context, m Messenger, bot *entity.Bot, chatID, data string, messageID int) (bool, error) {
	visible, err := e.visibleFor(ctx, bot, chatID)
	if err != nil {
		return false, err
	}

	for _, c := range visible {
		if c.Name == data {
			e.rec.Info(logger.CategoryBot, "command matched by callback",
				zap.String("bot_id", bot.ID),
				zap.String("chat_id", chatID),
				zap.String("command", c.Name))
			return true, e.Execute(ctx, m, bot, c, chatID, messageID)
		}
	}
	return false, nil
}

// Execute runs one command. messageID > 0 requests an in-place edit of
// that message; reply keyboards always go out as a fresh message.
func (e *CommandEngine) Execute(ctx context.Context, m Messenger, bot *entity.Bot, cmd *entity.Command, chatID string, messageID int) error {
	p, err := cmd.Payload()
	if err != nil {
		e.rec.Error(logger.CategoryBot, "command payload is not valid json",
			zap.String("bot_id", bot.ID),
			zap.String("command", cmd.Name),
			zap.Error(err))
		m.SendText(ctx, chatID, execFailureText)
		return err
	}

	switch {
	case isMultiCommand(cmd) || p.Type == entity.CommandTypeMultiCommand:
		e.registry.Set(bot.ID, chatID, cmd.ID)
		text := firstNonEmpty(p.WelcomeMessage, cmd.Description, defaultActionPrompt)
		if rows := p.ButtonRows(); len(rows) > 0 {
			return e.deliverInline(ctx, m, bot, chatID, messageID, text, rows)
		}
		return e.deliverText(ctx, m, bot, chatID, messageID, text)

	case p.Type == entity.CommandTypeMenu:
		text := firstNonEmpty(p.Text, p.WelcomeMessage, defaultActionPrompt)
		return e.deliverInline(ctx, m, bot, chatID, messageID, text, p.ButtonRows())

	case p.Type == entity.CommandTypeKeyboard:
		text := firstNonEmpty(p.Text, defaultActionPrompt)
		_, err := m.SendReplyKeyboard(ctx, chatID, text, p.ButtonRows(), p.OneTime)
		if err != nil {
			return e.reportSendFailure(ctx, m, bot, cmd, chatID, err)
		}
		return nil

	case p.Type == entity.CommandTypeMessage:
		if p.Text != "" {
			return e.deliverText(ctx, m, bot, chatID, messageID, p.Text)
		}
		return e.deliverText(ctx, m, bot, chatID, messageID, prettyJSON(cmd.JSONCode))

	default:
		if p.Text != "" {
			return e.deliverText(ctx, m, bot, chatID, messageID, p.Text)
		}
		return e.deliverText(ctx, m, bot, chatID, messageID, prettyJSON(cmd.JSONCode))
	}
}

// visibleFor loads the bot's commands and applies chat visibility. A
// stale registry entry pointing at a deleted or deactivated command is
// dropped on the way.
func (e *CommandEngine) visibleFor(ctx context.Context, bot *entity.Bot, chatID string) ([]*entity.Command, error) {
	all, err := e.commands.FindByBot(ctx, bot.ID)
	if err != nil {
		return nil, err
	}

	var activeMulti *entity.Command
	if id, ok := e.registry.Get(bot.ID, chatID); ok {
		activeMulti = findCommand(all, id)
		if activeMulti == nil || !activeMulti.IsActive {
			e.registry.Delete(bot.ID, chatID)
			activeMulti = nil
		}
	}
	return VisibleCommands(all, activeMulti), nil
}

// sendLeadIn asks the LLM for a short acknowledgement and sends it,
// then pauses so the scripted content lands as a follow-up. Failures
// are logged and swallowed.
func (e *CommandEngine) sendLeadIn(ctx context.Context, m Messenger, bot *entity.Bot, chatID, text string) {
	req := ChatRequest{
		Config: ProviderConfig{
			APIURL:       bot.APIURL,
			APIKey:       bot.APIKey,
			Model:        bot.AIModel,
			SystemPrompt: ackSystemPrompt,
		},
		Message: text,
	}
	reply, err := e.llm.Complete(ctx, req)
	if err != nil || reply == "" {
		if err != nil {
			e.rec.Warning(logger.CategoryBot, "lead-in reply failed",
				zap.String("bot_id", bot.ID), zap.Error(err))
		}
		return
	}
	if _, err := m.SendText(ctx, chatID, reply); err != nil {
		e.rec.Warning(logger.CategoryBot, "lead-in send failed",
			zap.String("bot_id", bot.ID), zap.Error(err))
		return
	}
	sleepCtx(ctx, e.preActionDelay)
}

// deliverText sends text, editing in place when messageID is set.
func (e *CommandEngine) deliverText(ctx context.Context, m Messenger, bot *entity.Bot, chatID string, messageID int, text string) error {
	if messageID > 0 {
		err := m.EditText(ctx, chatID, messageID, text)
		switch {
		case err == nil:
			return nil
		case isNotModified(err):
			e.rec.Info(logger.CategoryBot, "edit skipped, content unchanged",
				zap.String("bot_id", bot.ID), zap.String("chat_id", chatID))
			return nil
		case isUneditable(err):
			// Fall through to a fresh message.
		default:
			return e.reportEditFailure(ctx, m, bot, chatID, err)
		}
	}
	if _, err := m.SendText(ctx, chatID, text); err != nil {
		return e.reportEditFailure(ctx, m, bot, chatID, err)
	}
	return nil
}

// deliverInline sends text with an inline keyboard, editing in place
// when messageID is set.
func (e *CommandEngine) deliverInline(ctx context.Context, m Messenger, bot *entity.Bot, chatID string, messageID int, text string, rows [][]entity.Button) error {
	if messageID > 0 {
		err := m.EditInlineKeyboard(ctx, chatID, messageID, text, rows)
		switch {
		case err == nil:
			return nil
		case isNotModified(err):
			e.rec.Info(logger.CategoryBot, "edit skipped, content unchanged",
				zap.String("bot_id", bot.ID), zap.String("chat_id", chatID))
			return nil
		case isUneditable(err):
			// Fall through to a fresh message.
		default:
			return e.reportEditFailure(ctx, m, bot, chatID, err)
		}
	}
	if _, err := m.SendInlineKeyboard(ctx, chatID, text, rows); err != nil {
		return e.reportEditFailure(ctx, m, bot, chatID, err)
	}
	return nil
}

func (e *CommandEngine) reportEditFailure(ctx context.Context, m Messenger, bot *entity.Bot, chatID string, err error) error {
	e.rec.Error(logger.CategoryBot, "command delivery failed",
		zap.String("bot_id", bot.ID),
		zap.String("chat_id", chatID),
		zap.Error(err))
	m.SendText(ctx, chatID, execFailureText)
	return err
}

func (e *CommandEngine) reportSendFailure(ctx context.Context, m Messenger, bot *entity.Bot, cmd *entity.Command, chatID string, err error) error {
	e.rec.Error(logger.CategoryBot, "command delivery failed",
		zap.String("bot_id", bot.ID),
		zap.String("command", cmd.Name),
		zap.Error(err))
	m.SendText(ctx, chatID, execFailureText)
	return err
}

func isMultiCommand(c *entity.Command) bool {
	return c.IsMultiCommand
}

func findCommand(all []*entity.Command, id string) *entity.Command {
	for _, c := range all {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// prettyJSON re-indents a JSON document for chat display, returning
// the input untouched when it does not parse.
func prettyJSON(code string) string {
	var v any
	if err := json.Unmarshal([]byte(code), &v); err != nil {
		return code
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return code
	}
	return string(out)
}

func isNotModified(err error) bool {
	return errors.Is(err, ErrMessageNotModified)
}

func isUneditable(err error) bool {
	return errors.Is(err, ErrMessageUneditable)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
