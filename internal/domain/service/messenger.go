package service

import (
	"context"
	"errors"

	"github.com/botforge/botforge/internal/domain/entity"
)

// Edit outcomes a Messenger implementation must map onto. The command
// engine branches on them when editing in place fails.
var (
	// ErrMessageNotModified: the edit would not change anything.
	ErrMessageNotModified = errors.New("message not modified")

	// ErrMessageUneditable: the target message is gone or cannot be
	// edited; the caller should send a fresh message instead.
	ErrMessageUneditable = errors.New("message cannot be edited")
)

// Messenger is the port for outbound chat messages. Implemented over
// the Telegram Bot API; kept narrow so the command engine and pipeline
// can be tested against a fake.
type Messenger interface {
	// SendText delivers plain text and returns the new message id.
	SendText(ctx context.Context, chatID string, text string) (int, error)

	// SendInlineKeyboard delivers text with inline buttons attached.
	SendInlineKeyboard(ctx context.Context, chatID string, text string, rows [][]entity.Button) (int, error)

	// SendReplyKeyboard delivers text with a reply keyboard. The
	// keyboard is resized to fit; oneTime hides it after first use.
	SendReplyKeyboard(ctx context.Context, chatID string, text string, rows [][]entity.Button, oneTime bool) (int, error)

	// EditText rewrites an existing message in place.
	EditText(ctx context.Context, chatID string, messageID int, text string) error

	// EditInlineKeyboard rewrites an existing message and its inline
	// buttons in place.
	EditInlineKeyboard(ctx context.Context, chatID string, messageID int, text string, rows [][]entity.Button) error
}
