package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/infrastructure/config"
	"github.com/botforge/botforge/internal/infrastructure/persistence/models"
	domainErrors "github.com/botforge/botforge/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDBConnection(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return db
}

func testBotEntity(id string) *entity.Bot {
	now := time.Now().UTC().Truncate(time.Second)
	return &entity.Bot{
		ID:                  id,
		Name:                "Support bot",
		Description:         "answers customer questions",
		Token:               "12345:token",
		APIURL:              "https://api.openai.com/v1",
		APIKey:              "sk-test",
		AIModel:             "gpt-4o-mini",
		SystemPrompt:        "Ты вежливый помощник.",
		DatabaseID:          "",
		IsActive:            true,
		MemoryEnabled:       true,
		MemoryMessagesCount: 10,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func testCommandEntity(id, botID, name string) *entity.Command {
	now := time.Now().UTC().Truncate(time.Second)
	return &entity.Command{
		ID:        id,
		BotID:     botID,
		Name:      name,
		JSONCode:  `{"type":"message","text":"привет"}`,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestBotRepository_CRUD(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormBotRepository(db)
	ctx := context.Background()

	bot := testBotEntity("b1")
	if err := repo.Create(ctx, bot); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByID(ctx, "b1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != bot.Name || got.Token != bot.Token || got.AIModel != bot.AIModel {
		t.Errorf("roundtrip mismatch: got %+v", got)
	}
	if !got.MemoryEnabled || got.MemoryMessagesCount != 10 {
		t.Errorf("memory fields lost: %+v", got)
	}

	// Updates must persist zero values too, not just set fields.
	got.IsActive = false
	got.Description = ""
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got2, err := repo.FindByID(ctx, "b1")
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if got2.IsActive {
		t.Error("IsActive=false did not persist")
	}
	if got2.Description != "" {
		t.Errorf("Description not cleared: %q", got2.Description)
	}

	if err := repo.UpdateRunning(ctx, "b1", true); err != nil {
		t.Fatalf("update running: %v", err)
	}
	if err := repo.UpdateTelegramInfo(ctx, "b1", "support_bot", "Support", 987654321); err != nil {
		t.Fatalf("update telegram info: %v", err)
	}
	got3, _ := repo.FindByID(ctx, "b1")
	if !got3.IsRunning {
		t.Error("running flag not set")
	}
	if got3.TelegramUsername != "support_bot" || got3.TelegramBotID != 987654321 {
		t.Errorf("telegram info not stored: %+v", got3)
	}

	if _, err := repo.FindByID(ctx, "missing"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	if err := repo.UpdateRunning(ctx, "missing", true); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found on update, got %v", err)
	}
}

func TestBotRepository_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	bots := NewGormBotRepository(db)
	commands := NewGormCommandRepository(db)
	history := NewGormHistoryRepository(db)
	ctx := context.Background()

	if err := bots.Create(ctx, testBotEntity("b1")); err != nil {
		t.Fatalf("create bot: %v", err)
	}
	if err := commands.Create(ctx, testCommandEntity("c1", "b1", "start")); err != nil {
		t.Fatalf("create command: %v", err)
	}
	err := history.Append(ctx, &entity.ChatHistoryEntry{
		ID: "h1", BotID: "b1", ChatID: "100",
		UserMessage: "привет", AIResponse: "здравствуйте",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("append history: %v", err)
	}

	if err := bots.Delete(ctx, "b1"); err != nil {
		t.Fatalf("delete bot: %v", err)
	}

	if _, err := bots.FindByID(ctx, "b1"); !domainErrors.IsNotFound(err) {
		t.Errorf("bot survived delete: %v", err)
	}
	if _, err := commands.FindByID(ctx, "c1"); !domainErrors.IsNotFound(err) {
		t.Errorf("command survived bot delete: %v", err)
	}
	count, err := history.CountByBot(ctx, "b1")
	if err != nil {
		t.Fatalf("count history: %v", err)
	}
	if count != 0 {
		t.Errorf("history survived bot delete: %d rows", count)
	}

	if err := bots.Delete(ctx, "b1"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found on second delete, got %v", err)
	}
}

func TestBotRepository_Queries(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormBotRepository(db)
	ctx := context.Background()

	b1 := testBotEntity("b1")
	b1.DatabaseID = "kb1"
	b2 := testBotEntity("b2")
	b2.IsActive = false
	b3 := testBotEntity("b3")
	for _, b := range []*entity.Bot{b1, b2, b3} {
		if err := repo.Create(ctx, b); err != nil {
			t.Fatalf("create %s: %v", b.ID, err)
		}
	}
	if err := repo.UpdateRunning(ctx, "b3", true); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	running, err := repo.FindRunning(ctx)
	if err != nil {
		t.Fatalf("find running: %v", err)
	}
	if len(running) != 1 || running[0].ID != "b3" {
		t.Errorf("expected only b3 running, got %d entries", len(running))
	}

	byDB, err := repo.FindByDatabaseID(ctx, "kb1")
	if err != nil {
		t.Fatalf("find by database: %v", err)
	}
	if len(byDB) != 1 || byDB[0].ID != "b1" {
		t.Errorf("expected only b1 referencing kb1, got %d entries", len(byDB))
	}

	counts, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 3 || counts.Active != 2 || counts.Running != 1 {
		t.Errorf("counts = %+v, want total=3 active=2 running=1", counts)
	}
}

func TestCommandRepository_UniqueNamePerBot(t *testing.T) {
	db := newTestDB(t)
	bots := NewGormBotRepository(db)
	repo := NewGormCommandRepository(db)
	ctx := context.Background()

	for _, id := range []string{"b1", "b2"} {
		if err := bots.Create(ctx, testBotEntity(id)); err != nil {
			t.Fatalf("create bot %s: %v", id, err)
		}
	}

	if err := repo.Create(ctx, testCommandEntity("c1", "b1", "start")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, testCommandEntity("c2", "b1", "start"))
	if !domainErrors.IsAlreadyExists(err) {
		t.Errorf("duplicate name in same bot: expected already-exists, got %v", err)
	}
	// Same name on another bot is fine.
	if err := repo.Create(ctx, testCommandEntity("c3", "b2", "start")); err != nil {
		t.Errorf("same name on other bot rejected: %v", err)
	}

	got, err := repo.FindByBotAndName(ctx, "b1", "start")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("found %s, want c1", got.ID)
	}
	if _, err := repo.FindByBotAndName(ctx, "b1", "stop"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestCommandRepository_NestedAndUpdate(t *testing.T) {
	db := newTestDB(t)
	bots := NewGormBotRepository(db)
	repo := NewGormCommandRepository(db)
	ctx := context.Background()

	if err := bots.Create(ctx, testBotEntity("b1")); err != nil {
		t.Fatalf("create bot: %v", err)
	}

	parent := testCommandEntity("mc", "b1", "menu")
	parent.IsMultiCommand = true
	parent.AllowExternalCommands = true
	if err := repo.Create(ctx, parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	nested := testCommandEntity("n1", "b1", "inner")
	nested.ParentMultiCommandID = "mc"
	if err := repo.Create(ctx, nested); err != nil {
		t.Fatalf("create nested: %v", err)
	}
	top := testCommandEntity("t1", "b1", "other")
	if err := repo.Create(ctx, top); err != nil {
		t.Fatalf("create top: %v", err)
	}

	kids, err := repo.FindNested(ctx, "mc")
	if err != nil {
		t.Fatalf("find nested: %v", err)
	}
	if len(kids) != 1 || kids[0].ID != "n1" {
		t.Errorf("nested lookup wrong: %d entries", len(kids))
	}

	gotParent, _ := repo.FindByID(ctx, "mc")
	if !gotParent.IsMultiCommand || !gotParent.AllowExternalCommands {
		t.Errorf("container flags lost: %+v", gotParent)
	}

	// Deactivation must persist the false value.
	gotParent.IsActive = false
	gotParent.AllowExternalCommands = false
	if err := repo.Update(ctx, gotParent); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := repo.FindByID(ctx, "mc")
	if again.IsActive || again.AllowExternalCommands {
		t.Errorf("false flags did not persist: %+v", again)
	}

	if err := repo.Delete(ctx, "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "n1"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found on second delete, got %v", err)
	}
}

func TestHistoryRepository_AppendPrunesWindow(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormHistoryRepository(db)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 150; i++ {
		err := repo.Append(ctx, &entity.ChatHistoryEntry{
			ID:          fmt.Sprintf("h%03d", i),
			BotID:       "b1",
			ChatID:      "100",
			UserMessage: fmt.Sprintf("вопрос %d", i),
			AIResponse:  fmt.Sprintf("ответ %d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// A second chat on the same bot is its own window.
	for i := 0; i < 5; i++ {
		err := repo.Append(ctx, &entity.ChatHistoryEntry{
			ID:        fmt.Sprintf("other%d", i),
			BotID:     "b1",
			ChatID:    "200",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append other chat %d: %v", i, err)
		}
	}

	count, err := repo.CountByBot(ctx, "b1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 105 {
		t.Errorf("count = %d, want 100 pruned + 5 in other chat", count)
	}

	recent, err := repo.FindRecent(ctx, "b1", "100", 200)
	if err != nil {
		t.Fatalf("find recent: %v", err)
	}
	if len(recent) != 100 {
		t.Fatalf("window = %d entries, want 100", len(recent))
	}
	// Oldest surviving entry is number 50, newest is 149, in order.
	if recent[0].UserMessage != "вопрос 50" {
		t.Errorf("oldest = %q, want вопрос 50", recent[0].UserMessage)
	}
	if recent[99].UserMessage != "вопрос 149" {
		t.Errorf("newest = %q, want вопрос 149", recent[99].UserMessage)
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.Before(recent[i-1].Timestamp) {
			t.Fatalf("entries not chronological at %d", i)
		}
	}
}

func TestHistoryRepository_Queries(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormHistoryRepository(db)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		err := repo.Append(ctx, &entity.ChatHistoryEntry{
			ID:          fmt.Sprintf("h%d", i),
			BotID:       "b1",
			ChatID:      "100",
			UserMessage: fmt.Sprintf("msg %d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	window, err := repo.FindRecent(ctx, "b1", "100", 3)
	if err != nil {
		t.Fatalf("find recent: %v", err)
	}
	if len(window) != 3 || window[0].UserMessage != "msg 7" || window[2].UserMessage != "msg 9" {
		t.Errorf("window wrong: %+v", window)
	}

	if got, _ := repo.FindRecent(ctx, "b1", "100", 0); got != nil {
		t.Errorf("limit 0 should return nothing, got %d", len(got))
	}

	page, err := repo.FindByBot(ctx, "b1", 4, 2)
	if err != nil {
		t.Fatalf("find by bot: %v", err)
	}
	if len(page) != 4 || page[0].UserMessage != "msg 7" {
		t.Errorf("page wrong: len=%d first=%q", len(page), page[0].UserMessage)
	}

	since, err := repo.FindSince(ctx, base.Add(7*time.Minute+30*time.Second))
	if err != nil {
		t.Fatalf("find since: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("since = %d entries, want 2", len(since))
	}

	if err := repo.DeleteByID(ctx, "h0"); err != nil {
		t.Fatalf("delete by id: %v", err)
	}
	if err := repo.DeleteByID(ctx, "h0"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}

	deleted, err := repo.DeleteByBot(ctx, "b1")
	if err != nil {
		t.Fatalf("delete by bot: %v", err)
	}
	if deleted != 9 {
		t.Errorf("deleted = %d, want 9", deleted)
	}
	if n, _ := repo.CountByBot(ctx, "b1"); n != 0 {
		t.Errorf("history not empty after delete: %d", n)
	}
}

func TestKnowledgeRepository_CRUD(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormKnowledgeRepository(db)
	ctx := context.Background()

	kb := &entity.KnowledgeBase{
		ID:        "kb1",
		Name:      "FAQ",
		Type:      entity.KnowledgeTypeText,
		Content:   "Часы работы: 9-18",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, kb); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.FindByID(ctx, "kb1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Content != kb.Content || got.Type != entity.KnowledgeTypeText {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	got.Content = ""
	got.Description = "emptied"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := repo.FindByID(ctx, "kb1")
	if again.Content != "" || again.Description != "emptied" {
		t.Errorf("update not persisted: %+v", again)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("find all = %d entries", len(all))
	}

	if err := repo.Delete(ctx, "kb1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, "kb1"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestUserRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormUserRepository(db)
	ctx := context.Background()

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh db has %d users", n)
	}

	user := &entity.AdminUser{
		ID: "u1", Email: "admin@admin.com", PasswordHash: "hash",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &entity.AdminUser{ID: "u2", Email: "admin@admin.com", PasswordHash: "hash2"}
	if err := repo.Create(ctx, dup); !domainErrors.IsAlreadyExists(err) {
		t.Errorf("duplicate email: expected already-exists, got %v", err)
	}

	got, err := repo.FindByEmail(ctx, "admin@admin.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != "u1" || got.PasswordHash != "hash" {
		t.Errorf("lookup mismatch: %+v", got)
	}
	if _, err := repo.FindByEmail(ctx, "nobody@example.com"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestSettingRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormSettingRepository(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !domainErrors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}

	if err := repo.Set(ctx, entity.SettingSupportAIModel, "gpt-4o-mini"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, entity.SettingSupportAIModel, "gpt-4o"); err != nil {
		t.Fatalf("set again: %v", err)
	}

	got, err := repo.Get(ctx, entity.SettingSupportAIModel)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != "gpt-4o" {
		t.Errorf("value = %q, want overwrite to gpt-4o", got.Value)
	}

	if err := repo.Set(ctx, "another_key", "x"); err != nil {
		t.Fatalf("set other: %v", err)
	}
	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("get all = %d rows, want 2", len(all))
	}
	if all[0].Key != "another_key" {
		t.Errorf("not ordered by key: first is %q", all[0].Key)
	}
}

func TestSeed(t *testing.T) {
	db := newTestDB(t)
	logger := zap.NewNop()

	if err := Seed(db, logger); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var user models.UserModel
	if err := db.First(&user, "email = ?", "admin@admin.com").Error; err != nil {
		t.Fatalf("admin user missing: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("admin123")); err != nil {
		t.Errorf("default password does not verify: %v", err)
	}

	var kbCount int64
	db.Model(&models.KnowledgeModel{}).Count(&kbCount)
	if kbCount != 2 {
		t.Errorf("example databases = %d, want 2", kbCount)
	}
	var types []string
	db.Model(&models.KnowledgeModel{}).Order("type").Pluck("type", &types)
	if len(types) != 2 || types[0] != entity.KnowledgeTypeJSON || types[1] != entity.KnowledgeTypeText {
		t.Errorf("example types = %v, want one json and one text", types)
	}

	var settingCount int64
	db.Model(&models.SettingModel{}).Count(&settingCount)
	if settingCount != 4 {
		t.Errorf("settings = %d, want 4", settingCount)
	}

	// Operator edits survive another seed run.
	if err := db.Model(&models.SettingModel{}).
		Where("key = ?", entity.SettingSupportAIModel).
		Update("value", "custom-model").Error; err != nil {
		t.Fatalf("edit setting: %v", err)
	}
	if err := Seed(db, logger); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var userCount int64
	db.Model(&models.UserModel{}).Count(&userCount)
	if userCount != 1 {
		t.Errorf("second seed duplicated users: %d", userCount)
	}
	db.Model(&models.KnowledgeModel{}).Count(&kbCount)
	if kbCount != 2 {
		t.Errorf("second seed duplicated databases: %d", kbCount)
	}
	var edited models.SettingModel
	db.First(&edited, "key = ?", entity.SettingSupportAIModel)
	if edited.Value != "custom-model" {
		t.Errorf("seed overwrote operator setting: %q", edited.Value)
	}
}
