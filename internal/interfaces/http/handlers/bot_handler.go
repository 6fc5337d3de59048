package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/infrastructure/logger"
)

// Supervisor drives bot lifecycle on behalf of the API.
type Supervisor interface {
	IsActive(botID string) bool
	ActiveCount() int
	LastError(botID string) error
	Toggle(ctx context.Context, botID string) (bool, error)
	UpdateConfig(ctx context.Context, bot *entity.Bot) error
	RefreshInfo(ctx context.Context, botID string) (*entity.Bot, error)
	Delete(ctx context.Context, botID string) error
}

// BotHandler serves the bot CRUD and lifecycle endpoints.
type BotHandler struct {
	bots     repository.BotRepository
	commands repository.CommandRepository
	sup      Supervisor
	rec      *logger.Recorder
}

// NewBotHandler creates the bot handler.
func NewBotHandler(bots repository.BotRepository, commands repository.CommandRepository, sup Supervisor, rec *logger.Recorder) *BotHandler {
	return &BotHandler{bots: bots, commands: commands, sup: sup, rec: rec}
}

type botRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	Token               string `json:"token"`
	APIURL              string `json:"api_url"`
	APIKey              string `json:"api_key"`
	AIModel             string `json:"ai_model"`
	SystemPrompt        string `json:"system_prompt"`
	DatabaseID          string `json:"database_id"`
	IsActive            *bool  `json:"is_active"`
	MemoryEnabled       *bool  `json:"memory_enabled"`
	MemoryMessagesCount *int   `json:"memory_messages_count"`
}

// List returns every bot with its running flag reconciled against the
// live worker set.
// GET /api/bots
func (h *BotHandler) List(c *gin.Context) {
	bots, err := h.bots.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	for _, b := range bots {
		b.IsRunning = h.sup.IsActive(b.ID)
	}
	c.JSON(http.StatusOK, bots)
}

// Create registers a new bot.
// POST /api/bots
func (h *BotHandler) Create(c *gin.Context) {
	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	if req.Name == "" || req.Token == "" {
		badRequest(c, "Укажите название и токен бота")
		return
	}

	bot, err := entity.NewBot(uuid.NewString(), req.Name, req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	applyBotRequest(bot, &req)

	if err := h.bots.Create(c.Request.Context(), bot); err != nil {
		respondError(c, err)
		return
	}

	h.rec.Success(logger.CategoryBot, "bot created",
		zap.String("bot_id", bot.ID), zap.String("name", bot.Name))
	c.JSON(http.StatusOK, gin.H{"success": true, "botId": bot.ID})
}

// Update persists new settings and lets the supervisor hot-reload the
// worker when the token changed. An empty token keeps the stored one,
// so the panel can submit the form without re-entering it.
// PUT /api/bots/:id
func (h *BotHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var req botRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Некорректное тело запроса")
		return
	}
	if req.Name == "" {
		badRequest(c, "Укажите название бота")
		return
	}

	current, err := h.bots.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	merged := *current
	merged.Name = req.Name
	if req.Token != "" {
		merged.Token = req.Token
	}
	applyBotRequest(&merged, &req)

	if err := h.sup.UpdateConfig(c.Request.Context(), &merged); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// applyBotRequest copies the optional fields onto the entity.
func applyBotRequest(bot *entity.Bot, req *botRequest) {
	bot.Description = req.Description
	bot.APIURL = req.APIURL
	bot.APIKey = req.APIKey
	bot.AIModel = req.AIModel
	bot.SystemPrompt = req.SystemPrompt
	bot.DatabaseID = req.DatabaseID
	if req.IsActive != nil {
		bot.IsActive = *req.IsActive
	}
	if req.MemoryEnabled != nil {
		bot.MemoryEnabled = *req.MemoryEnabled
	}
	if req.MemoryMessagesCount != nil {
		bot.MemoryMessagesCount = *req.MemoryMessagesCount
	}
}

// Toggle starts a stopped bot or stops a running one.
// POST /api/bots/:id/toggle
func (h *BotHandler) Toggle(c *gin.Context) {
	running, err := h.sup.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "isRunning": running})
}

// RefreshInfo re-reads the bot's Telegram identity.
// POST /api/bots/:id/refresh-info
func (h *BotHandler) RefreshInfo(c *gin.Context) {
	bot, err := h.sup.RefreshInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"botInfo": gin.H{
			"id":        bot.TelegramBotID,
			"username":  bot.TelegramUsername,
			"firstName": bot.TelegramFirstName,
		},
	})
}

// Delete stops the bot and removes it.
// DELETE /api/bots/:id
func (h *BotHandler) Delete(c *gin.Context) {
	if err := h.sup.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// botBundle is the YAML shape of an exported bot. Nested commands
// reference their container by name, so ids can be regenerated on
// import.
type botBundle struct {
	Bot      bundleBot       `yaml:"bot"`
	Commands []bundleCommand `yaml:"commands,omitempty"`
}

type bundleBot struct {
	Name                string `yaml:"name"`
	Description         string `yaml:"description,omitempty"`
	Token               string `yaml:"token"`
	APIURL              string `yaml:"api_url,omitempty"`
	APIKey              string `yaml:"api_key,omitempty"`
	AIModel             string `yaml:"ai_model,omitempty"`
	SystemPrompt        string `yaml:"system_prompt,omitempty"`
	DatabaseID          string `yaml:"database_id,omitempty"`
	MemoryEnabled       bool   `yaml:"memory_enabled,omitempty"`
	MemoryMessagesCount int    `yaml:"memory_messages_count,omitempty"`
}

type bundleCommand struct {
	Name                  string `yaml:"name"`
	Description           string `yaml:"description,omitempty"`
	JSONCode              string `yaml:"json_code"`
	IsActive              bool   `yaml:"is_active"`
	IsMultiCommand        bool   `yaml:"is_multi_command,omitempty"`
	Parent                string `yaml:"parent,omitempty"`
	AllowExternalCommands bool   `yaml:"allow_external_commands,omitempty"`
}

// Export renders the bot and its commands as a YAML bundle.
// GET /api/bots/:id/export
func (h *BotHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	bot, err := h.bots.FindByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	commands, err := h.commands.FindByBot(ctx, bot.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	names := make(map[string]string, len(commands))
	for _, cmd := range commands {
		names[cmd.ID] = cmd.Name
	}

	bundle := botBundle{Bot: bundleBot{
		Name:                bot.Name,
		Description:         bot.Description,
		Token:               bot.Token,
		APIURL:              bot.APIURL,
		APIKey:              bot.APIKey,
		AIModel:             bot.AIModel,
		SystemPrompt:        bot.SystemPrompt,
		DatabaseID:          bot.DatabaseID,
		MemoryEnabled:       bot.MemoryEnabled,
		MemoryMessagesCount: bot.MemoryMessagesCount,
	}}
	for _, cmd := range commands {
		bundle.Commands = append(bundle.Commands, bundleCommand{
			Name:                  cmd.Name,
			Description:           cmd.Description,
			JSONCode:              cmd.JSONCode,
			IsActive:              cmd.IsActive,
			IsMultiCommand:        cmd.IsMultiCommand,
			Parent:                names[cmd.ParentMultiCommandID],
			AllowExternalCommands: cmd.AllowExternalCommands,
		})
	}

	data, err := yaml.Marshal(bundle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+bot.Name+`.yaml"`)
	c.Data(http.StatusOK, "application/x-yaml", data)
}

// Import creates a bot and its commands from an exported bundle. All
// ids are regenerated; nested commands are re-linked by parent name.
// POST /api/bots/import
func (h *BotHandler) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Не удалось прочитать файл")
		return
	}

	var bundle botBundle
	if err := yaml.Unmarshal(raw, &bundle); err != nil {
		badRequest(c, "Файл не является корректным YAML")
		return
	}
	if bundle.Bot.Name == "" || bundle.Bot.Token == "" {
		badRequest(c, "В файле не указаны название и токен бота")
		return
	}

	ids := make(map[string]string, len(bundle.Commands))
	for _, cmd := range bundle.Commands {
		if cmd.Name == "" {
			badRequest(c, "Команда без имени в файле импорта")
			return
		}
		if _, dup := ids[cmd.Name]; dup {
			badRequest(c, "Дубликат команды в файле импорта: "+cmd.Name)
			return
		}
		if err := entity.ValidateJSONCode(cmd.JSONCode); err != nil {
			badRequest(c, "Некорректный json_code у команды "+cmd.Name)
			return
		}
		ids[cmd.Name] = uuid.NewString()
	}
	for _, cmd := range bundle.Commands {
		if cmd.Parent != "" {
			if _, ok := ids[cmd.Parent]; !ok {
				badRequest(c, "Родительская команда отсутствует в файле: "+cmd.Parent)
				return
			}
		}
	}

	ctx := c.Request.Context()

	bot, err := entity.NewBot(uuid.NewString(), bundle.Bot.Name, bundle.Bot.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	bot.Description = bundle.Bot.Description
	bot.APIURL = bundle.Bot.APIURL
	bot.APIKey = bundle.Bot.APIKey
	bot.AIModel = bundle.Bot.AIModel
	bot.SystemPrompt = bundle.Bot.SystemPrompt
	bot.DatabaseID = bundle.Bot.DatabaseID
	bot.MemoryEnabled = bundle.Bot.MemoryEnabled
	bot.MemoryMessagesCount = bundle.Bot.MemoryMessagesCount
	bot.IsActive = false

	if err := h.bots.Create(ctx, bot); err != nil {
		respondError(c, err)
		return
	}

	for _, src := range bundle.Commands {
		cmd, err := entity.NewCommand(ids[src.Name], bot.ID, src.Name, src.JSONCode)
		if err != nil {
			respondError(c, err)
			return
		}
		cmd.Description = src.Description
		cmd.IsActive = src.IsActive
		cmd.IsMultiCommand = src.IsMultiCommand
		cmd.AllowExternalCommands = src.AllowExternalCommands
		if src.Parent != "" {
			cmd.ParentMultiCommandID = ids[src.Parent]
		}
		if err := h.commands.Create(ctx, cmd); err != nil {
			respondError(c, err)
			return
		}
	}

	h.rec.Success(logger.CategoryBot, "bot imported",
		zap.String("bot_id", bot.ID),
		zap.String("name", bot.Name),
		zap.Int("commands", len(bundle.Commands)),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "botId": bot.ID})
}
