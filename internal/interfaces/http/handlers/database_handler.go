package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// DatabaseHandler serves knowledge base CRUD. It needs the bot
// repository to refuse deleting a base that bots still reference.
type DatabaseHandler struct {
	databases repository.KnowledgeRepository
	bots      repository.BotRepository
	rec       *logger.Recorder
}

// NewDatabaseHandler creates the knowledge base handler.
func NewDatabaseHandler(databases repository.KnowledgeRepository, bots repository.BotRepository, rec *logger.Recorder) *DatabaseHandler {
	return &DatabaseHandler{databases: databases, bots: bots, rec: rec}
}

type databaseRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func validateDatabaseContent(kbType, content string) string {
	if kbType == entity.KnowledgeTypeJSON && content != "" && !json.Valid([]byte(content)) {
		return "Содержимое должно быть корректным JSON"
	}
	return ""
}

// List returns every knowledge base.
// GET /api/databases
func (h *DatabaseHandler) List(c *gin.Context) {
	databases, err := h.databases.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, databases)
}

// Create registers a new knowledge base.
// POST /api/databases
func (h *DatabaseHandler) Create(c *gin.Context) {
	var req databaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	if req.Name == "" {
		badRequest(c, "Укажите название базы данных")
		return
	}
	if req.Type == "" {
		req.Type = entity.KnowledgeTypeText
	}

	kb, err := entity.NewKnowledgeBase(uuid.NewString(), req.Name, req.Type)
	if err != nil {
		badRequest(c, "Тип базы данных должен быть text или json")
		return
	}
	if msg := validateDatabaseContent(kb.Type, req.Content); msg != "" {
		badRequest(c, msg)
		return
	}
	kb.Description = req.Description
	kb.Content = req.Content

	if err := h.databases.Create(c.Request.Context(), kb); err != nil {
		respondError(c, err)
		return
	}

	h.rec.Success(logger.CategoryDatabase, "knowledge base created",
		zap.String("database_id", kb.ID), zap.String("name", kb.Name))
	c.JSON(http.StatusOK, gin.H{"success": true, "databaseId": kb.ID})
}

// Update persists new fields.
// PUT /api/databases/:id
func (h *DatabaseHandler) Update(c *gin.Context) {
	var req databaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	if req.Name == "" {
		badRequest(c, "Укажите название базы данных")
		return
	}

	kb, err := h.databases.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	kbType := kb.Type
	if req.Type != "" {
		if req.Type != entity.KnowledgeTypeText && req.Type != entity.KnowledgeTypeJSON {
			badRequest(c, "Тип базы данных должен быть text или json")
			return
		}
		kbType = req.Type
	}
	if msg := validateDatabaseContent(kbType, req.Content); msg != "" {
		badRequest(c, msg)
		return
	}

	kb.Name = req.Name
	kb.Type = kbType
	kb.Description = req.Description
	kb.Content = req.Content

	if err := h.databases.Update(c.Request.Context(), kb); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes a knowledge base unless a bot still references it.
// DELETE /api/databases/:id
func (h *DatabaseHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.databases.FindByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	refs, err := h.bots.FindByDatabaseID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(refs) > 0 {
		badRequest(c, "База данных используется ботами и не может быть удалена")
		return
	}

	if err := h.databases.Delete(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	h.rec.Info(logger.CategoryDatabase, "knowledge base deleted", zap.String("database_id", id))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
