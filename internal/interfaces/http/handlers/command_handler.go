package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// CommandHandler serves command CRUD and the multi-command context
// reset.
type CommandHandler struct {
	commands repository.CommandRepository
	bots     repository.BotRepository
	registry *service.ContextRegistry
	rec      *logger.Recorder
}

// NewCommandHandler creates the command handler.
func NewCommandHandler(commands repository.CommandRepository, bots repository.BotRepository, registry *service.ContextRegistry, rec *logger.Recorder) *CommandHandler {
	return &CommandHandler{commands: commands, bots: bots, registry: registry, rec: rec}
}

type commandRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	JSONCode              string `json:"json_code"`
	IsActive              *bool  `json:"is_active"`
	IsMultiCommand        bool   `json:"is_multi_command"`
	ParentMultiCommandID  string `json:"parent_multi_command_id"`
	AllowExternalCommands bool   `json:"allow_external_commands"`
}

// List returns every command of the bot.
// GET /api/bots/:id/commands
func (h *CommandHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	botID := c.Param("id")

	if _, err := h.bots.FindByID(ctx, botID); err != nil {
		respondError(c, err)
		return
	}
	commands, err := h.commands.FindByBot(ctx, botID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commands)
}

// Create adds a command to the bot. Names are unique per bot and the
// payload must be a JSON object.
// POST /api/bots/:id/commands
func (h *CommandHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	botID := c.Param("id")

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	if req.Name == "" {
		badRequest(c, "Укажите имя команды")
		return
	}
	if err := entity.ValidateJSONCode(req.JSONCode); err != nil {
		badRequest(c, "json_code должен быть корректным JSON-объектом")
		return
	}

	if _, err := h.bots.FindByID(ctx, botID); err != nil {
		respondError(c, err)
		return
	}
	if taken, err := h.nameTaken(c, botID, req.Name, ""); taken || err != nil {
		return
	}
	if !h.validParent(c, botID, req.ParentMultiCommandID, "") {
		return
	}

	cmd, err := entity.NewCommand(uuid.NewString(), botID, req.Name, req.JSONCode)
	if err != nil {
		respondError(c, err)
		return
	}
	cmd.Description = req.Description
	cmd.IsMultiCommand = req.IsMultiCommand
	cmd.ParentMultiCommandID = req.ParentMultiCommandID
	cmd.AllowExternalCommands = req.AllowExternalCommands
	if req.IsActive != nil {
		cmd.IsActive = *req.IsActive
	}

	if err := h.commands.Create(ctx, cmd); err != nil {
		respondError(c, err)
		return
	}

	h.rec.Success(logger.CategoryBot, "command created",
		zap.String("bot_id", botID), zap.String("command", cmd.Name))
	c.JSON(http.StatusOK, gin.H{"success": true, "commandId": cmd.ID})
}

// Update persists new fields of the command.
// PUT /api/bots/:id/commands/:cmdId
func (h *CommandHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	botID := c.Param("id")
	cmdID := c.Param("cmdId")

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	if req.Name == "" {
		badRequest(c, "Укажите имя команды")
		return
	}
	if err := entity.ValidateJSONCode(req.JSONCode); err != nil {
		badRequest(c, "json_code должен быть корректным JSON-объектом")
		return
	}

	cmd, err := h.commands.FindByID(ctx, cmdID)
	if err != nil {
		respondError(c, err)
		return
	}
	if cmd.BotID != botID {
		notFound(c, "Команда не найдена")
		return
	}
	if req.Name != cmd.Name {
		if taken, err := h.nameTaken(c, botID, req.Name, cmdID); taken || err != nil {
			return
		}
	}
	if !h.validParent(c, botID, req.ParentMultiCommandID, cmdID) {
		return
	}

	cmd.Name = req.Name
	cmd.Description = req.Description
	cmd.JSONCode = req.JSONCode
	cmd.IsMultiCommand = req.IsMultiCommand
	cmd.ParentMultiCommandID = req.ParentMultiCommandID
	cmd.AllowExternalCommands = req.AllowExternalCommands
	if req.IsActive != nil {
		cmd.IsActive = *req.IsActive
	}

	if err := h.commands.Update(ctx, cmd); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes the command. Deleting a multi-command also removes its
// nested commands and forgets any chats still inside it.
// DELETE /api/bots/:id/commands/:cmdId
func (h *CommandHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	botID := c.Param("id")
	cmdID := c.Param("cmdId")

	cmd, err := h.commands.FindByID(ctx, cmdID)
	if err != nil {
		respondError(c, err)
		return
	}
	if cmd.BotID != botID {
		notFound(c, "Команда не найдена")
		return
	}

	if cmd.IsMultiCommand {
		nested, err := h.commands.FindNested(ctx, cmdID)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, n := range nested {
			if err := h.commands.Delete(ctx, n.ID); err != nil {
				respondError(c, err)
				return
			}
		}
	}
	cleared := h.registry.ClearByCommand(botID, cmdID)

	if err := h.commands.Delete(ctx, cmdID); err != nil {
		respondError(c, err)
		return
	}

	h.rec.Info(logger.CategoryBot, "command deleted",
		zap.String("bot_id", botID),
		zap.String("command", cmd.Name),
		zap.Int("contexts_cleared", cleared),
	)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ClearContext drops every chat context bound to the multi-command.
// DELETE /api/bots/:id/multi-command-context/:cmdId
func (h *CommandHandler) ClearContext(c *gin.Context) {
	botID := c.Param("id")
	cmdID := c.Param("cmdId")

	cleared := h.registry.ClearByCommand(botID, cmdID)

	h.rec.Info(logger.CategoryBot, "multi-command contexts cleared",
		zap.String("bot_id", botID),
		zap.String("command_id", cmdID),
		zap.Int("cleared", cleared),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "clearedCount": cleared})
}

// nameTaken reports a duplicate command name, answering the request
// itself when the name is taken or the lookup fails.
func (h *CommandHandler) nameTaken(c *gin.Context, botID, name, selfID string) (bool, error) {
	existing, err := h.commands.FindByBotAndName(c.Request.Context(), botID, name)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return false, nil
		}
		respondError(c, err)
		return false, err
	}
	if existing.ID == selfID {
		return false, nil
	}
	badRequest(c, "Команда с таким именем уже существует")
	return true, nil
}

// validParent checks that the referenced container exists, belongs to
// the same bot, is a multi-command and is not the command itself.
func (h *CommandHandler) validParent(c *gin.Context, botID, parentID, selfID string) bool {
	if parentID == "" {
		return true
	}
	if parentID == selfID {
		badRequest(c, "Команда не может быть вложена в саму себя")
		return false
	}
	parent, err := h.commands.FindByID(c.Request.Context(), parentID)
	if err != nil {
		badRequest(c, "Родительская мульти-команда не найдена")
		return false
	}
	if parent.BotID != botID || !parent.IsMultiCommand {
		badRequest(c, "Родительская команда не является мульти-командой")
		return false
	}
	return true
}
