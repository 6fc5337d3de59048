package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/botforge/botforge/internal/domain/entity"
)

func seedHistory(t *testing.T, f *fixture, id, botID string, age time.Duration, userMessage string) {
	t.Helper()
	err := f.history.Append(context.Background(), &entity.ChatHistoryEntry{
		ID:          id,
		BotID:       botID,
		ChatID:      "chat-1",
		UserMessage: userMessage,
		AIResponse:  "ответ",
		Timestamp:   time.Now().Add(-age),
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}
}

func TestHistoryList(t *testing.T) {
	f := newFixture()
	seedBot(t, f, "b1", "Бот")
	seedHistory(t, f, "h1", "b1", 3*time.Minute, "первый")
	seedHistory(t, f, "h2", "b1", 2*time.Minute, "второй")
	seedHistory(t, f, "h3", "b1", time.Minute, "третий")

	w := performJSON(f.router, http.MethodGet, "/api/bots/b1/chat-history?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["total"] != float64(3) {
		t.Errorf("total = %v", body["total"])
	}
	entries, _ := body["history"].([]any)
	if len(entries) != 2 {
		t.Fatalf("page len = %d", len(entries))
	}
	first, _ := entries[0].(map[string]any)
	if first["user_message"] != "третий" {
		t.Errorf("newest first expected, got %v", first)
	}
}

func TestHistoryList_BadLimitFallsBack(t *testing.T) {
	f := newFixture()
	seedBot(t, f, "b1", "Бот")
	seedHistory(t, f, "h1", "b1", time.Minute, "первый")

	w := performJSON(f.router, http.MethodGet, "/api/bots/b1/chat-history?limit=мусор", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if entries, _ := decodeBody(t, w)["history"].([]any); len(entries) != 1 {
		t.Errorf("entries = %v", entries)
	}
}

func TestHistoryList_UnknownBot(t *testing.T) {
	f := newFixture()

	w := performJSON(f.router, http.MethodGet, "/api/bots/ghost/chat-history", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHistoryDeleteAll(t *testing.T) {
	f := newFixture()
	seedBot(t, f, "b1", "Первый")
	seedBot(t, f, "b2", "Второй")
	seedHistory(t, f, "h1", "b1", 2*time.Minute, "раз")
	seedHistory(t, f, "h2", "b1", time.Minute, "два")
	seedHistory(t, f, "h3", "b2", time.Minute, "чужое")

	w := performJSON(f.router, http.MethodDelete, "/api/bots/b1/chat-history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["deletedCount"] != float64(2) {
		t.Errorf("body %s", w.Body.String())
	}

	left, err := f.history.CountByBot(context.Background(), "b2")
	if err != nil || left != 1 {
		t.Errorf("other bot's history must survive: left=%d err=%v", left, err)
	}
}

func TestHistoryDeleteOne(t *testing.T) {
	f := newFixture()
	seedBot(t, f, "b1", "Бот")
	seedHistory(t, f, "h1", "b1", time.Minute, "раз")

	w := performJSON(f.router, http.MethodDelete, "/api/bots/b1/chat-history/h1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	w = performJSON(f.router, http.MethodDelete, "/api/bots/b1/chat-history/h1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d", w.Code)
	}
}
