package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/application/usecase"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/pkg/safego"
)

// pollErrorBackoff is the wait after a transient GetUpdates failure.
const pollErrorBackoff = 5 * time.Second

// Pipeline consumes decoded inbound updates. Satisfied by
// usecase.ProcessMessageUseCase; declared here so the worker can be
// tested against a fake.
type Pipeline interface {
	ExecuteText(ctx context.Context, m service.Messenger, msg usecase.IncomingMessage)
	ExecuteCallback(ctx context.Context, m service.Messenger, cb usecase.IncomingCallback)
}

// worker owns the long-poll loop for one bot. Updates in a batch are
// dispatched serially, so per-chat ordering follows Telegram's delivery
// order. The supervisor is the only caller.
type worker struct {
	botID       string
	api         *tgbotapi.BotAPI
	messenger   *BotMessenger
	pipeline    Pipeline
	rec         *logger.Recorder
	pollTimeout int

	// onConflict fires when Telegram reports 409: some other consumer
	// is polling the same token. The supervisor detaches the worker
	// and does not restart it.
	onConflict func()

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	offset   int

	errMu   sync.Mutex
	lastErr error
}

func newWorker(botID string, api *tgbotapi.BotAPI, messenger *BotMessenger, pipeline Pipeline, rec *logger.Recorder, pollTimeout int, onConflict func()) *worker {
	return &worker{
		botID:       botID,
		api:         api,
		messenger:   messenger,
		pipeline:    pipeline,
		rec:         rec,
		pollTimeout: pollTimeout,
		onConflict:  onConflict,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

func (w *worker) run() {
	safego.Go(w.rec.Zap(), "telegram-worker-"+w.botID, w.loop)
}

// stop signals the loop to exit. The current poll call may block until
// the long-poll timeout elapses; callers wait on done with a deadline
// and detach rather than blocking on it.
func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *worker) done() <-chan struct{} {
	return w.doneCh
}

func (w *worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *worker) lastError() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.lastErr
}

func (w *worker) setLastError(err error) {
	w.errMu.Lock()
	w.lastErr = err
	w.errMu.Unlock()
}

func (w *worker) loop() {
	defer close(w.doneCh)

	// A leftover webhook makes getUpdates fail with 409, so drop it
	// before the first poll.
	w.deleteWebhook()

	for !w.stopped() {
		if !w.poll() {
			return
		}
	}
}

func (w *worker) deleteWebhook() {
	_, err := w.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil && !isWebhookNotSetError(err) {
		w.rec.Warning(logger.CategoryTelegram, "failed to delete webhook",
			zap.String("bot_id", w.botID),
			zap.Error(err),
		)
	}
}

// poll runs one GetUpdates round. Returns false when the loop must
// exit: stop was requested or another consumer holds the token.
func (w *worker) poll() bool {
	updates, err := w.api.GetUpdates(tgbotapi.UpdateConfig{
		Offset:  w.offset,
		Timeout: w.pollTimeout,
	})
	if err != nil {
		w.setLastError(err)
		if w.stopped() {
			return false
		}
		if isConflictError(err) {
			w.rec.Warning(logger.CategoryTelegram, "polling conflict, another consumer holds this token",
				zap.String("bot_id", w.botID),
				zap.Error(err),
			)
			w.onConflict()
			return false
		}
		w.rec.Error(logger.CategoryTelegram, "failed to get updates",
			zap.String("bot_id", w.botID),
			zap.Error(err),
		)
		select {
		case <-w.stopCh:
			return false
		case <-time.After(pollErrorBackoff):
		}
		return true
	}

	for _, update := range updates {
		if update.UpdateID >= w.offset {
			w.offset = update.UpdateID + 1
		}
		if w.stopped() {
			return false
		}
		w.handleUpdate(update)
	}
	return true
}

func (w *worker) handleUpdate(update tgbotapi.Update) {
	defer safego.Recover(w.rec.Zap(), "telegram-update-"+w.botID)

	ctx := context.Background()

	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		// Acknowledge first so the client stops its spinner even when
		// handling fails later.
		if _, err := w.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			w.rec.Warning(logger.CategoryTelegram, "failed to answer callback query",
				zap.String("bot_id", w.botID),
				zap.Error(err),
			)
		}
		if cb.Message == nil {
			return
		}
		w.pipeline.ExecuteCallback(ctx, w.messenger, usecase.IncomingCallback{
			BotID:     w.botID,
			ChatID:    cb.Message.Chat.ID,
			MessageID: cb.Message.MessageID,
			Data:      cb.Data,
		})

	case update.Message != nil:
		msg := update.Message
		w.pipeline.ExecuteText(ctx, w.messenger, usecase.IncomingMessage{
			BotID:     w.botID,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			Text:      msg.Text,
			IsText:    msg.Text != "",
		})
	}
}

func isConflictError(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

func isWebhookNotSetError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(strings.ToLower(apiErr.Message), "webhook is not set")
	}
	return false
}
