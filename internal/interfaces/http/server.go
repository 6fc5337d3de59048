package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/application/usecase"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/config"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
	"github.com/botforge/botforge/internal/interfaces/http/handlers"
	"github.com/botforge/botforge/pkg/safego"
)

// Server is the admin HTTP server.
type Server struct {
	server *http.Server
	rec    *logger.Recorder
}

// Deps carries everything the API surface needs.
type Deps struct {
	Users      repository.UserRepository
	Bots       repository.BotRepository
	Commands   repository.CommandRepository
	Databases  repository.KnowledgeRepository
	History    repository.HistoryRepository
	Settings   repository.SettingRepository
	Registry   *service.ContextRegistry
	Supervisor handlers.Supervisor
	Support    *usecase.SupportChatUseCase
	Monitor    *monitoring.Monitor

	// LogStream handles the websocket upgrade for live log following.
	// Optional.
	LogStream http.Handler

	Recorder *logger.Recorder
}

// NewServer builds the router, the handlers and the session layer.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Recorder.Zap()))

	session := handlers.NewSessionAuth(cfg.JWTSecret, cfg.SessionTTL())
	auth := handlers.NewAuthHandler(deps.Users, session, deps.Recorder)
	bots := handlers.NewBotHandler(deps.Bots, deps.Commands, deps.Supervisor, deps.Recorder)
	databases := handlers.NewDatabaseHandler(deps.Databases, deps.Bots, deps.Recorder)
	commands := handlers.NewCommandHandler(deps.Commands, deps.Bots, deps.Registry, deps.Recorder)
	history := handlers.NewHistoryHandler(deps.History, deps.Bots, deps.Recorder)
	dashboard := handlers.NewDashboardHandler(deps.Bots, deps.History, deps.Monitor, deps.Supervisor)
	debug := handlers.NewDebugHandler(deps.Recorder.Buffer(), deps.Monitor, deps.Bots, deps.Supervisor)
	settings := handlers.NewSettingsHandler(deps.Settings, deps.Recorder)
	support := handlers.NewSupportHandler(deps.Support)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})
	router.GET("/metrics", gin.WrapH(deps.Monitor.PrometheusHandler(deps.Supervisor.ActiveCount)))

	api := router.Group("/api")
	api.POST("/auth/login", auth.Login)
	api.GET("/auth/check", auth.Check)

	protected := api.Group("", session.Middleware())
	{
		protected.POST("/auth/logout", auth.Logout)

		protected.GET("/bots", bots.List)
		protected.POST("/bots", bots.Create)
		protected.POST("/bots/import", bots.Import)
		protected.PUT("/bots/:id", bots.Update)
		protected.DELETE("/bots/:id", bots.Delete)
		protected.POST("/bots/:id/toggle", bots.Toggle)
		protected.POST("/bots/:id/refresh-info", bots.RefreshInfo)
		protected.GET("/bots/:id/export", bots.Export)

		protected.GET("/bots/:id/commands", commands.List)
		protected.POST("/bots/:id/commands", commands.Create)
		protected.PUT("/bots/:id/commands/:cmdId", commands.Update)
		protected.DELETE("/bots/:id/commands/:cmdId", commands.Delete)
		protected.DELETE("/bots/:id/multi-command-context/:cmdId", commands.ClearContext)

		protected.GET("/bots/:id/chat-history", history.List)
		protected.DELETE("/bots/:id/chat-history", history.DeleteAll)
		protected.DELETE("/bots/:id/chat-history/:msgId", history.DeleteOne)

		protected.GET("/databases", databases.List)
		protected.POST("/databases", databases.Create)
		protected.PUT("/databases/:id", databases.Update)
		protected.DELETE("/databases/:id", databases.Delete)

		protected.GET("/dashboard/stats", dashboard.Stats)
		protected.GET("/dashboard/charts/messages", dashboard.ChartMessages)
		protected.GET("/dashboard/charts/ai-requests", dashboard.ChartAIRequests)
		protected.GET("/dashboard/charts/system", dashboard.ChartSystem)

		protected.GET("/debug/logs", debug.Logs)
		protected.GET("/debug/stats", debug.Stats)
		if deps.LogStream != nil {
			protected.GET("/debug/logs/stream", gin.WrapH(deps.LogStream))
		}

		protected.GET("/settings", settings.List)
		protected.PUT("/settings", settings.Upsert)

		protected.POST("/support/chat", support.Chat)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		rec: deps.Recorder,
	}
}

// Handler exposes the assembled router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start binds the listener and serves in the background. A bind
// failure is returned synchronously so startup can abort.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}

	s.rec.Info(logger.CategoryServer, "admin server listening", zap.String("address", s.server.Addr))
	safego.Go(s.rec.Zap(), "http-server", func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.rec.Error(logger.CategoryServer, "admin server failed", zap.Error(err))
		}
	})
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.rec.Info(logger.CategoryServer, "stopping admin server")
	return s.server.Shutdown(ctx)
}

// requestLogger emits one structured line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
