package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/application/usecase"
	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/config"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

// fakeTelegram is an in-process Bot API for worker, supervisor and
// messenger tests. It serves the methods this package calls and records
// every request.
type fakeTelegram struct {
	mu sync.Mutex

	updates      []tgbotapi.Update
	nextUpdateID int
	lastOffset   int

	conflict     bool
	unauthorized bool
	rejectHTML   bool
	editFailure  string // "", "not_modified", "not_found"
	username     string

	nextMessageID int
	calls         map[string]int
	tokens        map[string]int
	sent          []fakeRequest
	edits         []fakeRequest
}

// fakeRequest is one recorded sendMessage or editMessageText call.
type fakeRequest struct {
	token     string
	chatID    string
	messageID string
	text      string
	parseMode string
	markup    string
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		username: "test_bot",
		calls:    make(map[string]int),
		tokens:   make(map[string]int),
	}
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/bot")
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		http.NotFound(w, r)
		return
	}
	token, method := rest[:slash], rest[slash+1:]
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls[method]++
	f.tokens[token]++
	f.mu.Unlock()

	switch method {
	case "getMe":
		f.mu.Lock()
		unauthorized, username := f.unauthorized, f.username
		f.mu.Unlock()
		if unauthorized {
			writeTGError(w, http.StatusUnauthorized, 401, "Unauthorized")
			return
		}
		writeTGResult(w, map[string]any{
			"id": 999000111, "is_bot": true,
			"first_name": "Test Bot", "username": username,
		})

	case "deleteWebhook":
		writeTGResult(w, true)

	case "getUpdates":
		f.serveGetUpdates(w, r)

	case "sendMessage":
		f.mu.Lock()
		if f.rejectHTML && r.FormValue("parse_mode") != "" {
			f.mu.Unlock()
			writeTGError(w, http.StatusBadRequest, 400, "Bad Request: can't parse entities: unexpected end tag")
			return
		}
		f.nextMessageID++
		id := f.nextMessageID
		f.sent = append(f.sent, fakeRequest{
			token:     token,
			chatID:    r.FormValue("chat_id"),
			text:      r.FormValue("text"),
			parseMode: r.FormValue("parse_mode"),
			markup:    r.FormValue("reply_markup"),
		})
		f.mu.Unlock()
		writeTGResult(w, map[string]any{
			"message_id": id, "date": 1,
			"chat": map[string]any{"id": 100, "type": "private"},
			"text": r.FormValue("text"),
		})

	case "editMessageText":
		f.mu.Lock()
		failure := f.editFailure
		if f.rejectHTML && r.FormValue("parse_mode") != "" {
			f.mu.Unlock()
			writeTGError(w, http.StatusBadRequest, 400, "Bad Request: can't parse entities: unexpected end tag")
			return
		}
		f.edits = append(f.edits, fakeRequest{
			token:     token,
			chatID:    r.FormValue("chat_id"),
			messageID: r.FormValue("message_id"),
			text:      r.FormValue("text"),
			parseMode: r.FormValue("parse_mode"),
			markup:    r.FormValue("reply_markup"),
		})
		f.mu.Unlock()
		switch failure {
		case "not_modified":
			writeTGError(w, http.StatusBadRequest, 400, "Bad Request: message is not modified: specified new message content and reply markup are exactly the same")
		case "not_found":
			writeTGError(w, http.StatusBadRequest, 400, "Bad Request: message to edit not found")
		default:
			writeTGResult(w, map[string]any{
				"message_id": 1, "date": 1,
				"chat": map[string]any{"id": 100, "type": "private"},
				"text": r.FormValue("text"),
			})
		}

	case "answerCallbackQuery":
		writeTGResult(w, true)

	default:
		writeTGError(w, http.StatusNotFound, 404, "Not Found: method not supported by fake")
	}
}

func (f *fakeTelegram) serveGetUpdates(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if v := r.FormValue("offset"); v != "" {
		json.Unmarshal([]byte(v), &offset)
	}

	f.mu.Lock()
	f.lastOffset = offset
	if f.conflict {
		f.mu.Unlock()
		writeTGError(w, http.StatusConflict, 409, "Conflict: terminated by other getUpdates request")
		return
	}
	// An offset confirms everything below it, as the real API does.
	if offset > 0 {
		kept := f.updates[:0]
		for _, u := range f.updates {
			if u.UpdateID >= offset {
				kept = append(kept, u)
			}
		}
		f.updates = kept
	}
	batch := make([]tgbotapi.Update, len(f.updates))
	copy(batch, f.updates)
	f.mu.Unlock()

	if len(batch) == 0 {
		// Brief hold so idle workers do not spin against the fake.
		time.Sleep(25 * time.Millisecond)
	}
	writeTGResult(w, batch)
}

func (f *fakeTelegram) queueMessage(chatID int64, text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUpdateID++
	f.updates = append(f.updates, tgbotapi.Update{
		UpdateID: f.nextUpdateID,
		Message: &tgbotapi.Message{
			MessageID: f.nextUpdateID,
			From:      &tgbotapi.User{ID: chatID},
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	})
	return f.nextUpdateID
}

func (f *fakeTelegram) queueCallback(chatID int64, messageID int, data string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUpdateID++
	f.updates = append(f.updates, tgbotapi.Update{
		UpdateID: f.nextUpdateID,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb1",
			From: &tgbotapi.User{ID: chatID},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: messageID,
				Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
			},
		},
	})
	return f.nextUpdateID
}

func (f *fakeTelegram) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeTelegram) tokenCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[token]
}

func (f *fakeTelegram) sentMessages() []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTelegram) editRequests() []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeRequest, len(f.edits))
	copy(out, f.edits)
	return out
}

func (f *fakeTelegram) offset() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOffset
}

func (f *fakeTelegram) setConflict(on bool) {
	f.mu.Lock()
	f.conflict = on
	f.mu.Unlock()
}

func (f *fakeTelegram) setUnauthorized(on bool) {
	f.mu.Lock()
	f.unauthorized = on
	f.mu.Unlock()
}

func (f *fakeTelegram) setRejectHTML(on bool) {
	f.mu.Lock()
	f.rejectHTML = on
	f.mu.Unlock()
}

func (f *fakeTelegram) setEditFailure(mode string) {
	f.mu.Lock()
	f.editFailure = mode
	f.mu.Unlock()
}

func (f *fakeTelegram) setUsername(name string) {
	f.mu.Lock()
	f.username = name
	f.mu.Unlock()
}

func writeTGResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func writeTGError(w http.ResponseWriter, status, code int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": code, "description": description})
}

// memBotRepo is an in-memory BotRepository for supervisor tests.
type memBotRepo struct {
	mu   sync.Mutex
	rows map[string]*entity.Bot
}

var _ repository.BotRepository = (*memBotRepo)(nil)

func newMemBotRepo(bots ...*entity.Bot) *memBotRepo {
	r := &memBotRepo{rows: make(map[string]*entity.Bot)}
	for _, b := range bots {
		c := *b
		r.rows[b.ID] = &c
	}
	return r
}

func (r *memBotRepo) Create(_ context.Context, bot *entity.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *bot
	r.rows[bot.ID] = &c
	return nil
}

func (r *memBotRepo) FindByID(_ context.Context, id string) (*entity.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError("bot not found")
	}
	c := *row
	return &c, nil
}

func (r *memBotRepo) FindAll(_ context.Context) ([]*entity.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Bot, 0, len(r.rows))
	for _, row := range r.rows {
		c := *row
		out = append(out, &c)
	}
	return out, nil
}

func (r *memBotRepo) FindRunning(_ context.Context) ([]*entity.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Bot
	for _, row := range r.rows {
		if row.IsRunning {
			c := *row
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memBotRepo) FindByDatabaseID(_ context.Context, databaseID string) ([]*entity.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Bot
	for _, row := range r.rows {
		if row.DatabaseID == databaseID {
			c := *row
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memBotRepo) Update(_ context.Context, bot *entity.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[bot.ID]; !ok {
		return domainErrors.NewNotFoundError("bot not found")
	}
	c := *bot
	r.rows[bot.ID] = &c
	return nil
}

func (r *memBotRepo) UpdateRunning(_ context.Context, id string, running bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domainErrors.NewNotFoundError("bot not found")
	}
	row.IsRunning = running
	return nil
}

func (r *memBotRepo) UpdateTelegramInfo(_ context.Context, id, username, firstName string, telegramBotID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return domainErrors.NewNotFoundError("bot not found")
	}
	row.TelegramUsername = username
	row.TelegramFirstName = firstName
	row.TelegramBotID = telegramBotID
	return nil
}

func (r *memBotRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return domainErrors.NewNotFoundError("bot not found")
	}
	delete(r.rows, id)
	return nil
}

func (r *memBotRepo) Counts(_ context.Context) (repository.BotCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := repository.BotCounts{Total: int64(len(r.rows))}
	for _, row := range r.rows {
		if row.IsActive {
			c.Active++
		}
		if row.IsRunning {
			c.Running++
		}
	}
	return c, nil
}

func (r *memBotRepo) get(id string) *entity.Bot {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil
	}
	c := *row
	return &c
}

// recordingPipeline captures what the worker delivers.
type recordingPipeline struct {
	mu        sync.Mutex
	texts     []usecase.IncomingMessage
	callbacks []usecase.IncomingCallback
	textCh    chan usecase.IncomingMessage
	cbCh      chan usecase.IncomingCallback
}

func newRecordingPipeline() *recordingPipeline {
	return &recordingPipeline{
		textCh: make(chan usecase.IncomingMessage, 16),
		cbCh:   make(chan usecase.IncomingCallback, 16),
	}
}

func (p *recordingPipeline) ExecuteText(_ context.Context, _ service.Messenger, msg usecase.IncomingMessage) {
	p.mu.Lock()
	p.texts = append(p.texts, msg)
	p.mu.Unlock()
	select {
	case p.textCh <- msg:
	default:
	}
}

func (p *recordingPipeline) ExecuteCallback(_ context.Context, _ service.Messenger, cb usecase.IncomingCallback) {
	p.mu.Lock()
	p.callbacks = append(p.callbacks, cb)
	p.mu.Unlock()
	select {
	case p.cbCh <- cb:
	default:
	}
}

// supFixture wires a supervisor against the fake Bot API with shrunk
// delays.
type supFixture struct {
	t    *testing.T
	fake *fakeTelegram
	srv  *httptest.Server
	bots *memBotRepo
	reg  *service.ContextRegistry
	buf  *logger.Buffer
	pipe *recordingPipeline
	sup  *Supervisor
}

func newSupFixture(t *testing.T, bots ...*entity.Bot) *supFixture {
	t.Helper()

	fake := newFakeTelegram()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	repo := newMemBotRepo(bots...)
	reg := service.NewContextRegistry()
	buf := logger.NewBuffer(200)
	rec := logger.NewRecorder(zap.NewNop(), buf, nil)

	sup := NewSupervisor(repo, reg, rec,
		config.TelegramConfig{
			APIEndpoint:        srv.URL + "/bot%s/%s",
			PollTimeoutSeconds: 1,
		},
		config.SupervisorConfig{
			ReconcileIntervalSeconds: 3600,
			StartDelayMs:             5,
			StopQuiesceMs:            5,
		},
	)
	pipe := newRecordingPipeline()
	sup.SetPipeline(pipe)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sup.Shutdown(ctx)
	})

	return &supFixture{t: t, fake: fake, srv: srv, bots: repo, reg: reg, buf: buf, pipe: pipe, sup: sup}
}

func testBot(id string) *entity.Bot {
	return &entity.Bot{
		ID:       id,
		Name:     "Бот " + id,
		Token:    id + ":token",
		IsActive: true,
		APIURL:   "https://api.openai.com/v1",
		AIModel:  "gpt-4o-mini",
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func hasLogEntry(buf *logger.Buffer, level, category, substr string) bool {
	entries, _ := buf.Read(0, level, category)
	for _, e := range entries {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
