package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

const defaultHistoryLimit = 50

// HistoryHandler serves the per-bot chat history endpoints.
type HistoryHandler struct {
	history repository.HistoryRepository
	bots    repository.BotRepository
	rec     *logger.Recorder
}

// NewHistoryHandler creates the history handler.
func NewHistoryHandler(history repository.HistoryRepository, bots repository.BotRepository, rec *logger.Recorder) *HistoryHandler {
	return &HistoryHandler{history: history, bots: bots, rec: rec}
}

// List returns the newest entries of the bot's history.
// GET /api/bots/:id/chat-history?limit
func (h *HistoryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	botID := c.Param("id")

	if _, err := h.bots.FindByID(ctx, botID); err != nil {
		respondError(c, err)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}

	entries, err := h.history.FindByBot(ctx, botID, limit, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.history.CountByBot(ctx, botID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "history": entries, "total": total})
}

// DeleteAll removes the bot's entire history.
// DELETE /api/bots/:id/chat-history
func (h *HistoryHandler) DeleteAll(c *gin.Context) {
	ctx := c.Request.Context()
	botID := c.Param("id")

	if _, err := h.bots.FindByID(ctx, botID); err != nil {
		respondError(c, err)
		return
	}

	deleted, err := h.history.DeleteByBot(ctx, botID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.rec.Info(logger.CategoryBot, "chat history cleared",
		zap.String("bot_id", botID), zap.Int64("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCount": deleted})
}

// DeleteOne removes a single history entry.
// DELETE /api/bots/:id/chat-history/:msgId
func (h *HistoryHandler) DeleteOne(c *gin.Context) {
	if err := h.history.DeleteByID(c.Request.Context(), c.Param("msgId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
