package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
)

// DashboardHandler serves the fleet overview and the chart series.
type DashboardHandler struct {
	bots    repository.BotRepository
	history repository.HistoryRepository
	monitor *monitoring.Monitor
	sup     Supervisor
}

// NewDashboardHandler creates the dashboard handler.
func NewDashboardHandler(bots repository.BotRepository, history repository.HistoryRepository, monitor *monitoring.Monitor, sup Supervisor) *DashboardHandler {
	return &DashboardHandler{bots: bots, history: history, monitor: monitor, sup: sup}
}

// periodBuckets maps the chart period parameter onto a bucket width
// and count.
func periodBuckets(period string) (time.Duration, int, bool) {
	switch period {
	case "1h":
		return 5 * time.Minute, 12, true
	case "24h":
		return time.Hour, 24, true
	case "7d":
		return 24 * time.Hour, 7, true
	case "30d":
		return 24 * time.Hour, 30, true
	}
	return 0, 0, false
}

// Stats returns bot counts, request counters, uptime and memory.
// GET /api/dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	counts, err := h.bots.Counts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	// The live worker set is the truth for the running figure; the
	// persisted flags may lag until the reconciler passes.
	counts.Running = int64(h.sup.ActiveCount())

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bots":    counts,
		"stats":   h.monitor.GetStats(),
	})
}

// ChartMessages buckets stored chat history over the period.
// GET /api/dashboard/charts/messages?period=
func (h *DashboardHandler) ChartMessages(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	bucket, n, ok := periodBuckets(period)
	if !ok {
		badRequest(c, "Недопустимый период")
		return
	}

	now := time.Now()
	entries, err := h.history.FindSince(c.Request.Context(), now.Add(-bucket*time.Duration(n)))
	if err != nil {
		respondError(c, err)
		return
	}

	times := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		times = append(times, e.Timestamp)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"period":  period,
		"points":  monitoring.BucketTimes(times, now, bucket, n),
	})
}

// ChartAIRequests buckets the remembered LLM calls over the period.
// GET /api/dashboard/charts/ai-requests?period=
func (h *DashboardHandler) ChartAIRequests(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	bucket, n, ok := periodBuckets(period)
	if !ok {
		badRequest(c, "Недопустимый период")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"period":  period,
		"points":  h.monitor.CallSeries(bucket, n),
	})
}

// ChartSystem returns the current runtime snapshot.
// GET /api/dashboard/charts/system
func (h *DashboardHandler) ChartSystem(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"stats":      h.monitor.GetStats(),
		"activeBots": h.sup.ActiveCount(),
	})
}
