package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/application/usecase"
	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
	"github.com/botforge/botforge/internal/interfaces/http/handlers"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockBotRepository keeps bots in insertion order.
type MockBotRepository struct {
	bots []*entity.Bot
}

func (m *MockBotRepository) Create(ctx context.Context, bot *entity.Bot) error {
	m.bots = append(m.bots, bot)
	return nil
}

func (m *MockBotRepository) FindByID(ctx context.Context, id string) (*entity.Bot, error) {
	for _, b := range m.bots {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, domainErrors.NewNotFoundError("Бот не найден")
}

func (m *MockBotRepository) FindAll(ctx context.Context) ([]*entity.Bot, error) {
	return m.bots, nil
}

func (m *MockBotRepository) FindRunning(ctx context.Context) ([]*entity.Bot, error) {
	var out []*entity.Bot
	for _, b := range m.bots {
		if b.IsRunning {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockBotRepository) FindByDatabaseID(ctx context.Context, databaseID string) ([]*entity.Bot, error) {
	var out []*entity.Bot
	for _, b := range m.bots {
		if b.DatabaseID == databaseID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockBotRepository) Update(ctx context.Context, bot *entity.Bot) error {
	for i, b := range m.bots {
		if b.ID == bot.ID {
			m.bots[i] = bot
			return nil
		}
	}
	return domainErrors.NewNotFoundError("Бот не найден")
}

func (m *MockBotRepository) UpdateRunning(ctx context.Context, id string, running bool) error {
	b, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	b.IsRunning = running
	return nil
}

func (m *MockBotRepository) UpdateTelegramInfo(ctx context.Context, id, username, firstName string, telegramBotID int64) error {
	b, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	b.TelegramUsername = username
	b.TelegramFirstName = firstName
	b.TelegramBotID = telegramBotID
	return nil
}

func (m *MockBotRepository) Delete(ctx context.Context, id string) error {
	for i, b := range m.bots {
		if b.ID == id {
			m.bots = append(m.bots[:i], m.bots[i+1:]...)
			return nil
		}
	}
	return domainErrors.NewNotFoundError("Бот не найден")
}

func (m *MockBotRepository) Counts(ctx context.Context) (repository.BotCounts, error) {
	counts := repository.BotCounts{Total: int64(len(m.bots))}
	for _, b := range m.bots {
		if b.IsActive {
			counts.Active++
		}
		if b.IsRunning {
			counts.Running++
		}
	}
	return counts, nil
}

// MockCommandRepository keeps commands in insertion order.
type MockCommandRepository struct {
	commands []*entity.Command
}

func (m *MockCommandRepository) Create(ctx context.Context, cmd *entity.Command) error {
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *MockCommandRepository) FindByID(ctx context.Context, id string) (*entity.Command, error) {
	for _, c := range m.commands {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domainErrors.NewNotFoundError("Команда не найдена")
}

func (m *MockCommandRepository) FindByBot(ctx context.Context, botID string) ([]*entity.Command, error) {
	var out []*entity.Command
	for _, c := range m.commands {
		if c.BotID == botID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCommandRepository) FindByBotAndName(ctx context.Context, botID, name string) (*entity.Command, error) {
	for _, c := range m.commands {
		if c.BotID == botID && c.Name == name {
			return c, nil
		}
	}
	return nil, domainErrors.NewNotFoundError("Команда не найдена")
}

func (m *MockCommandRepository) FindNested(ctx context.Context, parentID string) ([]*entity.Command, error) {
	var out []*entity.Command
	for _, c := range m.commands {
		if c.ParentMultiCommandID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCommandRepository) Update(ctx context.Context, cmd *entity.Command) error {
	for i, c := range m.commands {
		if c.ID == cmd.ID {
			m.commands[i] = cmd
			return nil
		}
	}
	return domainErrors.NewNotFoundError("Команда не найдена")
}

func (m *MockCommandRepository) Delete(ctx context.Context, id string) error {
	for i, c := range m.commands {
		if c.ID == id {
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			return nil
		}
	}
	return domainErrors.NewNotFoundError("Команда не найдена")
}

// MockKnowledgeRepository keeps knowledge bases in insertion order.
type MockKnowledgeRepository struct {
	bases []*entity.KnowledgeBase
}

func (m *MockKnowledgeRepository) Create(ctx context.Context, kb *entity.KnowledgeBase) error {
	m.bases = append(m.bases, kb)
	return nil
}

func (m *MockKnowledgeRepository) FindByID(ctx context.Context, id string) (*entity.KnowledgeBase, error) {
	for _, kb := range m.bases {
		if kb.ID == id {
			return kb, nil
		}
	}
	return nil, domainErrors.NewNotFoundError("База данных не найдена")
}

func (m *MockKnowledgeRepository) FindAll(ctx context.Context) ([]*entity.KnowledgeBase, error) {
	return m.bases, nil
}

func (m *MockKnowledgeRepository) Update(ctx context.Context, kb *entity.KnowledgeBase) error {
	for i, b := range m.bases {
		if b.ID == kb.ID {
			m.bases[i] = kb
			return nil
		}
	}
	return domainErrors.NewNotFoundError("База данных не найдена")
}

func (m *MockKnowledgeRepository) Delete(ctx context.Context, id string) error {
	for i, kb := range m.bases {
		if kb.ID == id {
			m.bases = append(m.bases[:i], m.bases[i+1:]...)
			return nil
		}
	}
	return domainErrors.NewNotFoundError("База данных не найдена")
}

// MockHistoryRepository keeps history entries in a flat slice.
type MockHistoryRepository struct {
	entries []*entity.ChatHistoryEntry
}

func (m *MockHistoryRepository) Append(ctx context.Context, entry *entity.ChatHistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockHistoryRepository) FindRecent(ctx context.Context, botID, chatID string, limit int) ([]*entity.ChatHistoryEntry, error) {
	var out []*entity.ChatHistoryEntry
	for _, e := range m.entries {
		if e.BotID == botID && e.ChatID == chatID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockHistoryRepository) FindByBot(ctx context.Context, botID string, limit, offset int) ([]*entity.ChatHistoryEntry, error) {
	var out []*entity.ChatHistoryEntry
	for _, e := range m.entries {
		if e.BotID == botID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockHistoryRepository) CountByBot(ctx context.Context, botID string) (int64, error) {
	var n int64
	for _, e := range m.entries {
		if e.BotID == botID {
			n++
		}
	}
	return n, nil
}

func (m *MockHistoryRepository) FindSince(ctx context.Context, since time.Time) ([]*entity.ChatHistoryEntry, error) {
	var out []*entity.ChatHistoryEntry
	for _, e := range m.entries {
		if e.Timestamp.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockHistoryRepository) DeleteByBot(ctx context.Context, botID string) (int64, error) {
	var kept []*entity.ChatHistoryEntry
	var deleted int64
	for _, e := range m.entries {
		if e.BotID == botID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return deleted, nil
}

func (m *MockHistoryRepository) DeleteByID(ctx context.Context, id string) error {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return domainErrors.NewNotFoundError("Запись не найдена")
}

// MockSettingRepository serves settings from a map.
type MockSettingRepository struct {
	values map[string]string
}

func (m *MockSettingRepository) Get(ctx context.Context, key string) (*entity.Setting, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, domainErrors.NewNotFoundError("Настройка не найдена")
	}
	return &entity.Setting{Key: key, Value: v}, nil
}

func (m *MockSettingRepository) GetAll(ctx context.Context) ([]*entity.Setting, error) {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*entity.Setting, 0, len(keys))
	for _, k := range keys {
		out = append(out, &entity.Setting{Key: k, Value: m.values[k]})
	}
	return out, nil
}

func (m *MockSettingRepository) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

// MockUserRepository keeps admin users in a slice.
type MockUserRepository struct {
	users []*entity.AdminUser
}

func (m *MockUserRepository) Create(ctx context.Context, user *entity.AdminUser) error {
	m.users = append(m.users, user)
	return nil
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*entity.AdminUser, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domainErrors.NewNotFoundError("Пользователь не найден")
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

// MockSupervisor serves the active set from a map and records
// lifecycle calls.
type MockSupervisor struct {
	active   map[string]bool
	lastErrs map[string]error

	updated []*entity.Bot
	deleted []string

	refreshed  *entity.Bot
	toggleErr  error
	updateErr  error
	refreshErr error
	deleteErr  error
}

func newMockSupervisor() *MockSupervisor {
	return &MockSupervisor{active: map[string]bool{}, lastErrs: map[string]error{}}
}

func (m *MockSupervisor) IsActive(botID string) bool { return m.active[botID] }

func (m *MockSupervisor) ActiveCount() int {
	n := 0
	for _, on := range m.active {
		if on {
			n++
		}
	}
	return n
}

func (m *MockSupervisor) LastError(botID string) error { return m.lastErrs[botID] }

func (m *MockSupervisor) Toggle(ctx context.Context, botID string) (bool, error) {
	if m.toggleErr != nil {
		return false, m.toggleErr
	}
	m.active[botID] = !m.active[botID]
	return m.active[botID], nil
}

func (m *MockSupervisor) UpdateConfig(ctx context.Context, bot *entity.Bot) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = append(m.updated, bot)
	return nil
}

func (m *MockSupervisor) RefreshInfo(ctx context.Context, botID string) (*entity.Bot, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.refreshed, nil
}

func (m *MockSupervisor) Delete(ctx context.Context, botID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, botID)
	delete(m.active, botID)
	return nil
}

// MockLLMClient replays canned replies and records requests.
type MockLLMClient struct {
	chatResponse string
	chatErr      error
	streamChunks []service.StreamChunk
	requests     []service.ChatRequest
}

func (m *MockLLMClient) Complete(ctx context.Context, req service.ChatRequest) (string, error) {
	m.requests = append(m.requests, req)
	return m.chatResponse, m.chatErr
}

func (m *MockLLMClient) Stream(ctx context.Context, req service.ChatRequest) (<-chan service.StreamChunk, error) {
	m.requests = append(m.requests, req)
	ch := make(chan service.StreamChunk, len(m.streamChunks))
	for _, chunk := range m.streamChunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

// fixture wires every handler onto a router the way the server does,
// with the session middleware left off so tests hit handlers directly.
type fixture struct {
	bots      *MockBotRepository
	commands  *MockCommandRepository
	databases *MockKnowledgeRepository
	history   *MockHistoryRepository
	settings  *MockSettingRepository
	users     *MockUserRepository
	sup       *MockSupervisor
	llm       *MockLLMClient

	registry *service.ContextRegistry
	session  *handlers.SessionAuth
	buf      *logger.Buffer
	rec      *logger.Recorder
	monitor  *monitoring.Monitor
	router   *gin.Engine
}

func newFixture() *fixture {
	f := &fixture{
		bots:      &MockBotRepository{},
		commands:  &MockCommandRepository{},
		databases: &MockKnowledgeRepository{},
		history:   &MockHistoryRepository{},
		settings:  &MockSettingRepository{values: map[string]string{}},
		users:     &MockUserRepository{},
		sup:       newMockSupervisor(),
		llm:       &MockLLMClient{},
		registry:  service.NewContextRegistry(),
		session:   handlers.NewSessionAuth("test-secret", time.Hour),
		buf:       logger.NewBuffer(64),
		monitor:   monitoring.NewMonitor(),
	}
	f.rec = logger.NewRecorder(zap.NewNop(), f.buf, nil)

	auth := handlers.NewAuthHandler(f.users, f.session, f.rec)
	bots := handlers.NewBotHandler(f.bots, f.commands, f.sup, f.rec)
	databases := handlers.NewDatabaseHandler(f.databases, f.bots, f.rec)
	commands := handlers.NewCommandHandler(f.commands, f.bots, f.registry, f.rec)
	history := handlers.NewHistoryHandler(f.history, f.bots, f.rec)
	dashboard := handlers.NewDashboardHandler(f.bots, f.history, f.monitor, f.sup)
	debug := handlers.NewDebugHandler(f.buf, f.monitor, f.bots, f.sup)
	settings := handlers.NewSettingsHandler(f.settings, f.rec)
	support := handlers.NewSupportHandler(usecase.NewSupportChatUseCase(f.settings, f.llm, f.rec))

	r := gin.New()
	r.POST("/api/auth/login", auth.Login)
	r.POST("/api/auth/logout", auth.Logout)
	r.GET("/api/auth/check", auth.Check)

	r.GET("/api/bots", bots.List)
	r.POST("/api/bots", bots.Create)
	r.POST("/api/bots/import", bots.Import)
	r.PUT("/api/bots/:id", bots.Update)
	r.DELETE("/api/bots/:id", bots.Delete)
	r.POST("/api/bots/:id/toggle", bots.Toggle)
	r.POST("/api/bots/:id/refresh-info", bots.RefreshInfo)
	r.GET("/api/bots/:id/export", bots.Export)

	r.GET("/api/bots/:id/commands", commands.List)
	r.POST("/api/bots/:id/commands", commands.Create)
	r.PUT("/api/bots/:id/commands/:cmdId", commands.Update)
	r.DELETE("/api/bots/:id/commands/:cmdId", commands.Delete)
	r.DELETE("/api/bots/:id/multi-command-context/:cmdId", commands.ClearContext)

	r.GET("/api/bots/:id/chat-history", history.List)
	r.DELETE("/api/bots/:id/chat-history", history.DeleteAll)
	r.DELETE("/api/bots/:id/chat-history/:msgId", history.DeleteOne)

	r.GET("/api/databases", databases.List)
	r.POST("/api/databases", databases.Create)
	r.PUT("/api/databases/:id", databases.Update)
	r.DELETE("/api/databases/:id", databases.Delete)

	r.GET("/api/dashboard/stats", dashboard.Stats)
	r.GET("/api/dashboard/charts/messages", dashboard.ChartMessages)
	r.GET("/api/dashboard/charts/ai-requests", dashboard.ChartAIRequests)
	r.GET("/api/dashboard/charts/system", dashboard.ChartSystem)

	r.GET("/api/debug/logs", debug.Logs)
	r.GET("/api/debug/stats", debug.Stats)

	r.GET("/api/settings", settings.List)
	r.PUT("/api/settings", settings.Upsert)

	r.POST("/api/support/chat", support.Chat)

	f.router = r
	return f
}

// performJSON runs one request through the router, encoding body as
// JSON when present.
func performJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return out
}

func seedBot(t *testing.T, f *fixture, id, name string) *entity.Bot {
	t.Helper()
	bot, err := entity.NewBot(id, name, "123:token")
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	if err := f.bots.Create(context.Background(), bot); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	return bot
}

func seedCommand(t *testing.T, f *fixture, id, botID, name, code string) *entity.Command {
	t.Helper()
	cmd, err := entity.NewCommand(id, botID, name, code)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := f.commands.Create(context.Background(), cmd); err != nil {
		t.Fatalf("seed command: %v", err)
	}
	return cmd
}
