package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// BotMessenger delivers pipeline output through the Telegram Bot API.
// Replies arrive as Markdown from the LLM; they are rendered to
// Telegram HTML before sending, with a stripped plain-text retry when
// Telegram rejects the markup.
type BotMessenger struct {
	api   *tgbotapi.BotAPI
	botID string
	rec   *logger.Recorder
}

var _ service.Messenger = (*BotMessenger)(nil)

func NewBotMessenger(api *tgbotapi.BotAPI, botID string, rec *logger.Recorder) *BotMessenger {
	return &BotMessenger{api: api, botID: botID, rec: rec}
}

// SendText delivers text, splitting replies that exceed the Telegram
// message limit. Returns the id of the last message sent.
func (m *BotMessenger) SendText(ctx context.Context, chatID string, text string) (int, error) {
	cid, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}

	var lastID int
	for _, chunk := range splitMessage(text) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		id, err := m.deliver(cid, chunk, nil)
		if err != nil {
			return 0, err
		}
		lastID = id
	}
	return lastID, nil
}

// SendInlineKeyboard delivers text with inline buttons. For chunked
// replies the keyboard rides on the final chunk.
func (m *BotMessenger) SendInlineKeyboard(ctx context.Context, chatID string, text string, rows [][]entity.Button) (int, error) {
	return m.sendWithMarkup(ctx, chatID, text, inlineMarkup(rows))
}

// SendReplyKeyboard delivers text with a reply keyboard attached.
func (m *BotMessenger) SendReplyKeyboard(ctx context.Context, chatID string, text string, rows [][]entity.Button, oneTime bool) (int, error) {
	return m.sendWithMarkup(ctx, chatID, text, replyMarkup(rows, oneTime))
}

// EditText rewrites a message in place. Not-modified and gone-message
// errors are mapped onto the Messenger sentinels for the caller.
func (m *BotMessenger) EditText(ctx context.Context, chatID string, messageID int, text string) error {
	cid, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(cid, messageID, MarkdownToTelegramHTML(text))
	edit.ParseMode = tgbotapi.ModeHTML
	_, err = m.api.Send(edit)
	if isParseEntityError(err) {
		m.warnPlainRetry(cid, err)
		plain := tgbotapi.NewEditMessageText(cid, messageID, StripMarkdown(text))
		_, err = m.api.Send(plain)
	}
	return classifyEditError(err)
}

// EditInlineKeyboard rewrites a message and its inline buttons in place.
func (m *BotMessenger) EditInlineKeyboard(ctx context.Context, chatID string, messageID int, text string, rows [][]entity.Button) error {
	cid, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	markup := inlineMarkup(rows)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cid, messageID, MarkdownToTelegramHTML(text), markup)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err = m.api.Send(edit)
	if isParseEntityError(err) {
		m.warnPlainRetry(cid, err)
		plain := tgbotapi.NewEditMessageTextAndMarkup(cid, messageID, StripMarkdown(text), markup)
		_, err = m.api.Send(plain)
	}
	return classifyEditError(err)
}

func (m *BotMessenger) sendWithMarkup(ctx context.Context, chatID string, text string, markup interface{}) (int, error) {
	cid, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}

	chunks := splitMessage(text)
	var lastID int
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var mk interface{}
		if i == len(chunks)-1 {
			mk = markup
		}
		id, err := m.deliver(cid, chunk, mk)
		if err != nil {
			return 0, err
		}
		lastID = id
	}
	return lastID, nil
}

// deliver sends one chunk as Telegram HTML. If Telegram rejects the
// markup, the chunk is resent as stripped plain text.
func (m *BotMessenger) deliver(cid int64, markdown string, markup interface{}) (int, error) {
	msg := tgbotapi.NewMessage(cid, MarkdownToTelegramHTML(markdown))
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := m.api.Send(msg)
	if isParseEntityError(err) {
		m.warnPlainRetry(cid, err)
		plain := tgbotapi.NewMessage(cid, StripMarkdown(markdown))
		if markup != nil {
			plain.ReplyMarkup = markup
		}
		sent, err = m.api.Send(plain)
	}
	if err != nil {
		return 0, fmt.Errorf("telegram send: %w", err)
	}
	return sent.MessageID, nil
}

func (m *BotMessenger) warnPlainRetry(cid int64, err error) {
	m.rec.Warning(logger.CategoryTelegram, "HTML parse failed, retrying as plain text",
		zap.String("bot_id", m.botID),
		zap.Int64("chat_id", cid),
		zap.Error(err),
	)
}

func parseChatID(chatID string) (int64, error) {
	cid, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return cid, nil
}

func isParseEntityError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

func classifyEditError(err error) error {
	if err == nil {
		return nil
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "message is not modified") || strings.Contains(s, "message_not_modified"):
		return fmt.Errorf("%w: %v", service.ErrMessageNotModified, err)
	case strings.Contains(s, "message to edit not found") ||
		strings.Contains(s, "can't be edited") ||
		strings.Contains(s, "message_id_invalid"):
		return fmt.Errorf("%w: %v", service.ErrMessageUneditable, err)
	}
	return fmt.Errorf("telegram edit: %w", err)
}

func inlineMarkup(rows [][]entity.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			data := b.CallbackData
			if data == "" {
				data = b.Text
			}
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Text, data))
		}
		kb = append(kb, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func replyMarkup(rows [][]entity.Button, oneTime bool) tgbotapi.ReplyKeyboardMarkup {
	kb := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewKeyboardButton(b.Text))
		}
		kb = append(kb, btns)
	}
	markup := tgbotapi.NewReplyKeyboard(kb...)
	markup.OneTimeKeyboard = oneTime
	return markup
}
