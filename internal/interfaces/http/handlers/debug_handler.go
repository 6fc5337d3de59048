package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
)

const defaultLogLimit = 100

// DebugHandler exposes the log ring buffer and worker health to
// operators.
type DebugHandler struct {
	buf     *logger.Buffer
	monitor *monitoring.Monitor
	bots    repository.BotRepository
	sup     Supervisor
}

// NewDebugHandler creates the debug handler.
func NewDebugHandler(buf *logger.Buffer, monitor *monitoring.Monitor, bots repository.BotRepository, sup Supervisor) *DebugHandler {
	return &DebugHandler{buf: buf, monitor: monitor, bots: bots, sup: sup}
}

// Logs returns buffered entries, newest first.
// GET /api/debug/logs?limit&level&category
func (h *DebugHandler) Logs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	level := strings.ToUpper(c.Query("level"))
	category := strings.ToUpper(c.Query("category"))

	logs, total := h.buf.Read(limit, level, category)
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total})
}

// Stats returns the request counters plus per-worker health.
// GET /api/debug/stats
func (h *DebugHandler) Stats(c *gin.Context) {
	type workerStatus struct {
		BotID     string `json:"botId"`
		Name      string `json:"name"`
		Running   bool   `json:"running"`
		LastError string `json:"lastError,omitempty"`
	}

	var workers []workerStatus
	bots, err := h.bots.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	for _, b := range bots {
		status := workerStatus{
			BotID:   b.ID,
			Name:    b.Name,
			Running: h.sup.IsActive(b.ID),
		}
		if lastErr := h.sup.LastError(b.ID); lastErr != nil {
			status.LastError = lastErr.Error()
		}
		if status.Running || status.LastError != "" {
			workers = append(workers, status)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"stats":      h.monitor.GetStats(),
		"activeBots": h.sup.ActiveCount(),
		"bufferSize": h.buf.Len(),
		"workers":    workers,
	})
}
