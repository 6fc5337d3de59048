package telegram

import (
	"context"
	"errors"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/config"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	domainErrors "github.com/botforge/botforge/pkg/errors"
	"github.com/botforge/botforge/pkg/safego"
)

const (
	stopAttempts      = 3
	stopRetryInterval = time.Second
)

// Supervisor owns the polling workers. The workers map is the active
// set the pipeline consults before sending anything; a bot is live iff
// its worker is in the map. Lifecycle operations on the same bot are
// serialized by a per-bot lock so a slow Stop cannot interleave with a
// concurrent Start for the same token.
type Supervisor struct {
	bots     repository.BotRepository
	registry *service.ContextRegistry
	rec      *logger.Recorder
	tgCfg    config.TelegramConfig
	supCfg   config.SupervisorConfig

	// pipeline is wired once via SetPipeline before any Start call.
	pipeline Pipeline

	mu      sync.RWMutex
	workers map[string]*worker
	locks   map[string]*sync.Mutex

	reconcileStop chan struct{}
	shutdownOnce  sync.Once
}

func NewSupervisor(bots repository.BotRepository, registry *service.ContextRegistry, rec *logger.Recorder, tgCfg config.TelegramConfig, supCfg config.SupervisorConfig) *Supervisor {
	return &Supervisor{
		bots:          bots,
		registry:      registry,
		rec:           rec,
		tgCfg:         tgCfg,
		supCfg:        supCfg,
		workers:       make(map[string]*worker),
		locks:         make(map[string]*sync.Mutex),
		reconcileStop: make(chan struct{}),
	}
}

// SetPipeline wires the inbound message pipeline. Must be called before
// the first Start; kept as a setter because the pipeline itself needs
// the supervisor as its active set.
func (s *Supervisor) SetPipeline(p Pipeline) {
	s.pipeline = p
}

// StartReconciler launches the periodic drift repair: rows claiming
// is_running without a live worker are flipped back off.
func (s *Supervisor) StartReconciler() {
	safego.Loop(s.rec.Zap(), "supervisor-reconcile", s.supCfg.ReconcileInterval(), s.reconcileStop, s.reconcile)
}

// IsActive reports whether a worker currently holds the polling loop
// for the bot. This is the pipeline's active-set check.
func (s *Supervisor) IsActive(botID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workers[botID]
	return ok
}

// ActiveCount returns the number of live workers.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workers)
}

// LastError returns the most recent polling error of a live worker, or
// nil when the bot is stopped or has seen none.
func (s *Supervisor) LastError(botID string) error {
	s.mu.RLock()
	w := s.workers[botID]
	s.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.lastError()
}

// Start brings up the polling worker for a bot. No-op when already
// running. The settle delay gives a previously stopped poller for the
// same token time to release its long poll.
func (s *Supervisor) Start(ctx context.Context, botID string) error {
	lock := s.botLock(botID)
	lock.Lock()
	defer lock.Unlock()
	return s.startLocked(ctx, botID)
}

func (s *Supervisor) startLocked(ctx context.Context, botID string) error {
	if s.IsActive(botID) {
		return nil
	}
	if s.pipeline == nil {
		return domainErrors.NewInternalError("message pipeline is not wired")
	}

	bot, err := s.bots.FindByID(ctx, botID)
	if err != nil {
		return err
	}

	if err := sleepCtx(ctx, s.supCfg.StartDelay()); err != nil {
		return err
	}

	// The client constructor performs getMe, so a bad token or an
	// unreachable Telegram fails here before anything is registered.
	api, err := s.newClient(bot.Token)
	if err != nil {
		s.rec.Error(logger.CategoryBot, "failed to connect bot to Telegram",
			zap.String("bot_id", botID),
			zap.String("name", bot.Name),
			zap.Error(err),
		)
		return mapTelegramError(err)
	}

	messenger := NewBotMessenger(api, botID, s.rec)
	var w *worker
	w = newWorker(botID, api, messenger, s.pipeline, s.rec, s.tgCfg.PollTimeoutSeconds, func() {
		s.conflict(botID, w)
	})

	s.mu.Lock()
	s.workers[botID] = w
	s.mu.Unlock()

	w.run()

	// Identity persisting stays off the start path.
	self := api.Self
	safego.Go(s.rec.Zap(), "persist-bot-identity-"+botID, func() {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.bots.UpdateTelegramInfo(pctx, botID, self.UserName, self.FirstName, self.ID); err != nil {
			s.rec.Warning(logger.CategoryBot, "failed to persist bot identity",
				zap.String("bot_id", botID),
				zap.Error(err),
			)
		}
	})

	if err := s.bots.UpdateRunning(ctx, botID, true); err != nil {
		s.detach(botID, w)
		w.stop()
		return err
	}

	s.rec.Success(logger.CategoryBot, "bot started",
		zap.String("bot_id", botID),
		zap.String("name", bot.Name),
	)
	return nil
}

// Stop tears down the worker. It never fails: every step is best-effort
// and the reconciler repairs whatever is left inconsistent. Removing
// the worker from the active set happens first so in-flight handlers
// drop their output.
func (s *Supervisor) Stop(ctx context.Context, botID string) {
	lock := s.botLock(botID)
	lock.Lock()
	defer lock.Unlock()
	s.stopLocked(ctx, botID)
}

func (s *Supervisor) stopLocked(ctx context.Context, botID string) {
	s.mu.Lock()
	w := s.workers[botID]
	delete(s.workers, botID)
	s.mu.Unlock()

	if w != nil {
		w.deleteWebhook()
		w.stop()
	wait:
		for i := 0; i < stopAttempts; i++ {
			select {
			case <-w.done():
				break wait
			case <-time.After(stopRetryInterval):
			}
		}
		select {
		case <-w.done():
		default:
			// The goroutine is stuck in a long poll; it exits on its
			// own once the poll returns and its output is dropped.
			s.rec.Warning(logger.CategoryTelegram, "worker did not stop in time, detaching",
				zap.String("bot_id", botID),
			)
		}
	}

	s.registry.ClearByBot(botID)

	if w != nil {
		_ = sleepCtx(ctx, s.supCfg.StopQuiesce())
	}

	if err := s.bots.UpdateRunning(ctx, botID, false); err != nil && !domainErrors.IsNotFound(err) {
		s.rec.Error(logger.CategoryBot, "failed to clear running flag",
			zap.String("bot_id", botID),
			zap.Error(err),
		)
	}

	if w != nil {
		s.rec.Success(logger.CategoryBot, "bot stopped", zap.String("bot_id", botID))
	}
}

// Toggle starts a stopped bot or stops a running one and reports the
// resulting state.
func (s *Supervisor) Toggle(ctx context.Context, botID string) (bool, error) {
	lock := s.botLock(botID)
	lock.Lock()
	defer lock.Unlock()

	if s.IsActive(botID) {
		s.stopLocked(ctx, botID)
		return false, nil
	}
	if err := s.startLocked(ctx, botID); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateConfig persists new bot settings. A token change while the bot
// runs forces a restart; everything else hot-reloads because the
// pipeline re-reads the row on every message.
func (s *Supervisor) UpdateConfig(ctx context.Context, bot *entity.Bot) error {
	lock := s.botLock(bot.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.bots.FindByID(ctx, bot.ID)
	if err != nil {
		return err
	}
	tokenChanged := current.Token != bot.Token

	if err := s.bots.Update(ctx, bot); err != nil {
		return err
	}

	if tokenChanged && s.IsActive(bot.ID) {
		s.stopLocked(ctx, bot.ID)
		return s.startLocked(ctx, bot.ID)
	}
	return nil
}

// RefreshInfo performs a one-shot getMe and persists the identity. When
// the bot is stopped a temporary client is built just for the query.
func (s *Supervisor) RefreshInfo(ctx context.Context, botID string) (*entity.Bot, error) {
	lock := s.botLock(botID)
	lock.Lock()
	defer lock.Unlock()

	bot, err := s.bots.FindByID(ctx, botID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	w := s.workers[botID]
	s.mu.RUnlock()

	var self tgbotapi.User
	if w != nil {
		self, err = w.api.GetMe()
	} else {
		var api *tgbotapi.BotAPI
		api, err = s.newClient(bot.Token)
		if err == nil {
			self = api.Self
		}
	}
	if err != nil {
		s.rec.Error(logger.CategoryBot, "getMe failed",
			zap.String("bot_id", botID),
			zap.Error(err),
		)
		return nil, mapTelegramError(err)
	}

	if err := s.bots.UpdateTelegramInfo(ctx, botID, self.UserName, self.FirstName, self.ID); err != nil {
		return nil, err
	}

	bot.TelegramUsername = self.UserName
	bot.TelegramFirstName = self.FirstName
	bot.TelegramBotID = self.ID
	s.rec.Info(logger.CategoryBot, "bot info refreshed",
		zap.String("bot_id", botID),
		zap.String("username", self.UserName),
	)
	return bot, nil
}

// Delete stops the bot if needed and removes the row; commands and chat
// history go with it.
func (s *Supervisor) Delete(ctx context.Context, botID string) error {
	lock := s.botLock(botID)
	lock.Lock()
	defer lock.Unlock()

	s.stopLocked(ctx, botID)

	if err := s.bots.Delete(ctx, botID); err != nil {
		return err
	}
	s.rec.Success(logger.CategoryBot, "bot deleted", zap.String("bot_id", botID))
	return nil
}

// Shutdown stops every worker in parallel and clears the context
// registry. Running flags are left untouched so the rows still show
// what was live before termination.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() { close(s.reconcileStop) })

	s.mu.Lock()
	workers := s.workers
	s.workers = make(map[string]*worker)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for botID, w := range workers {
		wg.Add(1)
		botID, w := botID, w
		safego.Go(s.rec.Zap(), "shutdown-worker-"+botID, func() {
			defer wg.Done()
			w.deleteWebhook()
			w.stop()
			select {
			case <-w.done():
			case <-time.After(stopAttempts * stopRetryInterval):
			case <-ctx.Done():
			}
		})
	}
	wg.Wait()

	s.registry.ClearAll()
	s.rec.Info(logger.CategoryServer, "bot supervisor stopped", zap.Int("bots", len(workers)))
}

// reconcile flips the persisted running flag off for rows whose worker
// is gone. Repairs drift from crashes and missed error paths.
func (s *Supervisor) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.bots.FindRunning(ctx)
	if err != nil {
		s.rec.Error(logger.CategoryDatabase, "reconcile: failed to list running bots", zap.Error(err))
		return
	}
	for _, bot := range rows {
		if s.IsActive(bot.ID) {
			continue
		}
		if err := s.bots.UpdateRunning(ctx, bot.ID, false); err != nil {
			s.rec.Error(logger.CategoryDatabase, "reconcile: failed to clear running flag",
				zap.String("bot_id", bot.ID),
				zap.Error(err),
			)
			continue
		}
		s.rec.Warning(logger.CategoryBot, "cleared stale running flag",
			zap.String("bot_id", bot.ID),
			zap.String("name", bot.Name),
		)
	}
}

// conflict detaches a worker that lost its token to another consumer.
// The identity check keeps a stale, already replaced worker from
// tearing down its successor.
func (s *Supervisor) conflict(botID string, w *worker) {
	s.mu.Lock()
	if s.workers[botID] != w {
		s.mu.Unlock()
		return
	}
	delete(s.workers, botID)
	s.mu.Unlock()

	w.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.bots.UpdateRunning(ctx, botID, false); err != nil {
		s.rec.Error(logger.CategoryBot, "failed to clear running flag after conflict",
			zap.String("bot_id", botID),
			zap.Error(err),
		)
	}
	s.rec.Warning(logger.CategoryBot, "bot stopped after polling conflict, manual restart required",
		zap.String("bot_id", botID),
	)
}

func (s *Supervisor) detach(botID string, w *worker) {
	s.mu.Lock()
	if s.workers[botID] == w {
		delete(s.workers, botID)
	}
	s.mu.Unlock()
}

func (s *Supervisor) botLock(botID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[botID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[botID] = l
	}
	return l
}

func (s *Supervisor) newClient(token string) (*tgbotapi.BotAPI, error) {
	if s.tgCfg.APIEndpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(token, s.tgCfg.APIEndpoint)
	}
	return tgbotapi.NewBotAPI(token)
}

func mapTelegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		return domainErrors.NewInvalidInputError("telegram rejected the bot token")
	}
	return domainErrors.NewUnavailableError("failed to reach Telegram", err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
