package usecase_test

import (
	"context"
	"strings"
	"testing"

	"github.com/botforge/botforge/internal/application/usecase"
	"github.com/botforge/botforge/internal/domain/entity"
)

func multiCommand() *entity.Command {
	return &entity.Command{
		ID:             "mc",
		BotID:          "b1",
		Name:           "menu_mc",
		JSONCode:       `{"type":"multi_command","welcome_message":"Добро пожаловать"}`,
		IsActive:       true,
		IsMultiCommand: true,
	}
}

func menuCommand() *entity.Command {
	return &entity.Command{
		ID:       "settings",
		BotID:    "b1",
		Name:     "settings",
		JSONCode: `{"type":"menu","text":"Настройки","buttons":[{"text":"Назад","callback_data":"back"}]}`,
		IsActive: true,
	}
}

func TestExecuteText_CommandPathWritesNoHistory(t *testing.T) {
	f := newPipelineFixture(runningBot())
	f.commands.byBot["b1"] = []*entity.Command{multiCommand()}
	f.llm.intentResponse = "menu_mc"

	f.uc.ExecuteText(context.Background(), f.msgr, textMessage("открой меню"))

	// Multi-commands get no conversational lead-in; the welcome is the
	// only outbound message.
	if len(f.msgr.sent) != 1 || f.msgr.sent[0].text != "Добро пожаловать" {
		t.Fatalf("sends = %+v", f.msgr.sent)
	}
	if id, ok := f.registry.Get("b1", "100"); !ok || id != "mc" {
		t.Errorf("registry = (%q,%v), want mc active", id, ok)
	}
	if len(f.history.appended) != 0 {
		t.Errorf("command execution wrote %d history rows", len(f.history.appended))
	}
	total, success, failed := f.stats(t)
	if total != 1 || success != 1 || failed != 0 {
		t.Errorf("stats = %d/%d/%d, want 1/1/0", total, success, failed)
	}
}

func TestExecuteText_BrokenCommandCountsFailed(t *testing.T) {
	f := newPipelineFixture(runningBot())
	broken := multiCommand()
	broken.JSONCode = `{"type":`
	f.commands.byBot["b1"] = []*entity.Command{broken}
	f.llm.intentResponse = "menu_mc"

	f.uc.ExecuteText(context.Background(), f.msgr, textMessage("открой меню"))

	// The engine already told the chat; no second apology on top.
	if len(f.msgr.sent) != 1 || f.msgr.sent[0].text != "Ошибка выполнения команды." {
		t.Fatalf("sends = %+v", f.msgr.sent)
	}
	_, success, failed := f.stats(t)
	if success != 0 || failed != 1 {
		t.Errorf("stats = success %d failed %d, want 0/1", success, failed)
	}
}

func TestExecuteCallback_EditsInPlace(t *testing.T) {
	f := newPipelineFixture(runningBot())
	f.commands.byBot["b1"] = []*entity.Command{menuCommand()}

	cb := usecase.IncomingCallback{BotID: "b1", ChatID: 100, MessageID: 42, Data: "settings"}
	f.uc.ExecuteCallback(context.Background(), f.msgr, cb)

	if len(f.msgr.sent) != 1 {
		t.Fatalf("sends = %+v", f.msgr.sent)
	}
	got := f.msgr.sent[0]
	if got.kind != "edit_inline" || got.messageID != 42 || got.text != "Настройки" {
		t.Errorf("callback did not edit in place: %+v", got)
	}
	// No intent probe on the callback path.
	for _, r := range f.llm.requests {
		if strings.Contains(r.Config.SystemPrompt, "определения команд") {
			t.Error("callback path ran an intent probe")
		}
	}
	if len(f.history.appended) != 0 {
		t.Errorf("callback command wrote history")
	}
}

func TestExecuteCallback_UnmatchedFallsThroughToChat(t *testing.T) {
	f := newPipelineFixture(runningBot())
	f.commands.byBot["b1"] = []*entity.Command{menuCommand()}

	cb := usecase.IncomingCallback{BotID: "b1", ChatID: 100, MessageID: 42, Data: "что это"}
	f.uc.ExecuteCallback(context.Background(), f.msgr, cb)

	if len(f.msgr.sent) != 1 || f.msgr.sent[0].kind != "text" || f.msgr.sent[0].text != "Здравствуйте!" {
		t.Fatalf("expected plain chat reply, got %+v", f.msgr.sent)
	}
	chats := f.llm.chatRequests()
	if len(chats) != 1 || chats[0].Message != "что это" {
		t.Errorf("callback data not used as message: %+v", chats)
	}
	if len(f.history.appended) != 1 {
		t.Errorf("fallthrough exchange not recorded: %d rows", len(f.history.appended))
	}
}

func TestExecuteCallback_DropsWhenStopped(t *testing.T) {
	bot := runningBot()
	bot.IsRunning = false
	f := newPipelineFixture(bot)
	f.commands.byBot["b1"] = []*entity.Command{menuCommand()}

	cb := usecase.IncomingCallback{BotID: "b1", ChatID: 100, MessageID: 42, Data: "settings"}
	f.uc.ExecuteCallback(context.Background(), f.msgr, cb)

	if len(f.msgr.sent) != 0 {
		t.Errorf("stopped bot handled callback: %+v", f.msgr.sent)
	}
}

func TestExecuteCallback_NestedVisibilityApplies(t *testing.T) {
	f := newPipelineFixture(runningBot())
	mc := multiCommand()
	nested := &entity.Command{
		ID: "n1", BotID: "b1", Name: "inner",
		JSONCode:             `{"type":"message","text":"вложенная"}`,
		IsActive:             true,
		ParentMultiCommandID: "mc",
	}
	top := &entity.Command{
		ID: "t1", BotID: "b1", Name: "other",
		JSONCode: `{"type":"message","text":"внешняя"}`,
		IsActive: true,
	}
	f.commands.byBot["b1"] = []*entity.Command{mc, nested, top}
	f.registry.Set("b1", "100", "mc")

	// External command pressed inside a closed container falls through
	// to chat instead of executing.
	cb := usecase.IncomingCallback{BotID: "b1", ChatID: 100, MessageID: 7, Data: "other"}
	f.uc.ExecuteCallback(context.Background(), f.msgr, cb)
	if len(f.msgr.sent) != 1 || f.msgr.sent[0].kind != "text" {
		t.Fatalf("external command executed inside container: %+v", f.msgr.sent)
	}

	// The nested one is reachable and edits in place.
	f.msgr.sent = nil
	cb.Data = "inner"
	f.uc.ExecuteCallback(context.Background(), f.msgr, cb)
	if len(f.msgr.sent) != 1 || f.msgr.sent[0].kind != "edit" || f.msgr.sent[0].text != "вложенная" {
		t.Fatalf("nested command not executed: %+v", f.msgr.sent)
	}
}
