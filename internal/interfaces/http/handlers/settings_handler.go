package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// SettingsHandler serves the global settings endpoints.
type SettingsHandler struct {
	settings repository.SettingRepository
	rec      *logger.Recorder
}

// NewSettingsHandler creates the settings handler.
func NewSettingsHandler(settings repository.SettingRepository, rec *logger.Recorder) *SettingsHandler {
	return &SettingsHandler{settings: settings, rec: rec}
}

type settingItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// List returns every setting.
// GET /api/settings
func (h *SettingsHandler) List(c *gin.Context) {
	settings, err := h.settings.GetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// Upsert writes the submitted key/value pairs.
// PUT /api/settings
func (h *SettingsHandler) Upsert(c *gin.Context) {
	var items []settingItem
	if err := c.ShouldBindJSON(&items); err != nil {
		badRequest(c, "Ожидается массив настроек {key, value}")
		return
	}

	updated := 0
	for _, item := range items {
		if item.Key == "" {
			continue
		}
		if err := h.settings.Set(c.Request.Context(), item.Key, item.Value); err != nil {
			respondError(c, err)
			return
		}
		updated++
	}

	h.rec.Info(logger.CategorySettings, "settings updated", zap.Int("count", updated))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
