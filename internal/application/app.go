package application

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/botforge/botforge/internal/application/usecase"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/config"
	"github.com/botforge/botforge/internal/infrastructure/eventbus"
	"github.com/botforge/botforge/internal/infrastructure/llm"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
	"github.com/botforge/botforge/internal/infrastructure/persistence"
	httpServer "github.com/botforge/botforge/internal/interfaces/http"
	"github.com/botforge/botforge/internal/interfaces/telegram"
	"github.com/botforge/botforge/internal/interfaces/ws"
	"github.com/botforge/botforge/pkg/safego"
)

const busBufferSize = 256

// App is the dependency-injection container for the control plane.
type App struct {
	config *config.Config
	log    *zap.Logger
	level  zap.AtomicLevel

	db  *gorm.DB
	bus *eventbus.InMemoryBus
	rec *logger.Recorder

	// repositories
	bots      repository.BotRepository
	commands  repository.CommandRepository
	databases repository.KnowledgeRepository
	history   repository.HistoryRepository
	settings  repository.SettingRepository
	users     repository.UserRepository

	// domain services
	registry *service.ContextRegistry
	engine   *service.CommandEngine

	// infrastructure
	monitor   *monitoring.Monitor
	llmClient *llm.Client

	// application services
	pipeline   *usecase.ProcessMessageUseCase
	support    *usecase.SupportChatUseCase
	supervisor *telegram.Supervisor

	// interfaces
	hub       *ws.Hub
	hubCancel context.CancelFunc
	server    *httpServer.Server
	watcher   *config.Watcher
}

// NewApp assembles every layer. The AtomicLevel stays live so the
// config watcher can retune verbosity without a restart.
func NewApp(cfg *config.Config, log *zap.Logger, level zap.AtomicLevel) (*App, error) {
	app := &App{
		config: cfg,
		log:    log,
		level:  level,
	}

	app.bus = eventbus.NewInMemoryBus(log, busBufferSize)
	app.rec = logger.NewRecorder(log, logger.NewBuffer(logger.DefaultCapacity), app.bus)

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}
	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}
	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}
	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}
	if err := app.seedData(); err != nil {
		return nil, fmt.Errorf("failed to seed data: %w", err)
	}

	return app, nil
}

func (app *App) initRepositories() error {
	app.log.Info("Initializing repositories")

	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	app.bots = persistence.NewGormBotRepository(db)
	app.commands = persistence.NewGormCommandRepository(db)
	app.databases = persistence.NewGormKnowledgeRepository(db)
	app.history = persistence.NewGormHistoryRepository(db)
	app.settings = persistence.NewGormSettingRepository(db)
	app.users = persistence.NewGormUserRepository(db)

	return nil
}

func (app *App) initDomainServices() error {
	app.log.Info("Initializing domain services")

	app.registry = service.NewContextRegistry()

	return nil
}

func (app *App) initInfrastructure() error {
	app.log.Info("Initializing infrastructure")

	app.monitor = monitoring.NewMonitor()
	app.llmClient = llm.NewClient(
		app.databases,
		app.monitor,
		app.rec,
		app.config.LLM.RequestTimeout(),
		app.config.LLM.StreamIdleTimeout(),
	)

	return nil
}

func (app *App) initApplicationServices() error {
	app.log.Info("Initializing application services")

	app.engine = service.NewCommandEngine(app.commands, app.registry, app.llmClient, app.rec)

	// NOTE: the supervisor must exist before the pipeline because the
	// pipeline asks it which bots are live; SetPipeline closes the
	// cycle the other way.
	app.supervisor = telegram.NewSupervisor(
		app.bots,
		app.registry,
		app.rec,
		app.config.Telegram,
		app.config.Supervisor,
	)
	app.pipeline = usecase.NewProcessMessageUseCase(
		app.bots,
		app.history,
		app.engine,
		app.llmClient,
		app.supervisor,
		app.monitor,
		app.rec,
	)
	app.supervisor.SetPipeline(app.pipeline)

	app.support = usecase.NewSupportChatUseCase(app.settings, app.llmClient, app.rec)

	return nil
}

func (app *App) initInterfaces() error {
	app.log.Info("Initializing interfaces")

	app.hub = ws.NewHub(app.log, app.bus)

	app.server = httpServer.NewServer(app.config.Server, httpServer.Deps{
		Users:      app.users,
		Bots:       app.bots,
		Commands:   app.commands,
		Databases:  app.databases,
		History:    app.history,
		Settings:   app.settings,
		Registry:   app.registry,
		Supervisor: app.supervisor,
		Support:    app.support,
		Monitor:    app.monitor,
		LogStream:  http.HandlerFunc(app.hub.ServeWS),
		Recorder:   app.rec,
	})

	if app.config.Source != "" {
		app.watcher = config.NewWatcher(app.config.Source, app.applyConfig, app.log)
	}

	return nil
}

func (app *App) seedData() error {
	app.log.Info("Seeding default data")
	return persistence.Seed(app.db, app.log)
}

// applyConfig applies the live-tunable subset of a reloaded config.
func (app *App) applyConfig(cfg *config.Config) {
	if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil && app.level.Level() != lvl {
		app.level.SetLevel(lvl)
		app.rec.Info(logger.CategoryServer, "log level changed", zap.String("level", lvl.String()))
	}
}

// Start brings the interfaces up. Bots are NOT auto-started; the
// reconciler only repairs rows whose running flag went stale.
func (app *App) Start(ctx context.Context) error {
	app.log.Info("Starting application")

	hubCtx, cancel := context.WithCancel(context.Background())
	app.hubCancel = cancel
	safego.Go(app.log, "ws-hub", func() { app.hub.Run(hubCtx) })

	if err := app.server.Start(ctx); err != nil {
		cancel()
		return err
	}

	app.supervisor.StartReconciler()

	if app.watcher != nil {
		safego.Go(app.log, "config-watcher", app.watcher.Start)
	}

	app.rec.Success(logger.CategoryServer, "application started")
	return nil
}

// Stop shuts the layers down in reverse order: HTTP first so no new
// work arrives, then the workers, then the bus and the store.
func (app *App) Stop(ctx context.Context) error {
	app.log.Info("Stopping application")

	if app.watcher != nil {
		app.watcher.Stop()
	}

	if err := app.server.Stop(ctx); err != nil {
		app.log.Error("Failed to stop HTTP server", zap.Error(err))
	}

	app.supervisor.Shutdown(ctx)

	if app.hubCancel != nil {
		app.hubCancel()
	}
	app.bus.Close()

	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.log.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	app.log.Info("Application stopped successfully")
	return nil
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.log
}

// AppConfig returns the application config
func (app *App) AppConfig() *config.Config {
	return app.config
}

// BotCounts reports fleet totals for the startup banner.
func (app *App) BotCounts(ctx context.Context) (total, active int64) {
	counts, err := app.bots.Counts(ctx)
	if err != nil {
		return 0, 0
	}
	return counts.Total, counts.Active
}
