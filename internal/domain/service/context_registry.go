package service

import "sync"

// ContextRegistry tracks which multi-command is active per (bot, chat)
// pair. Pure in-memory: sessions are deliberately lost on restart.
// Safe for concurrent readers and writers.
type ContextRegistry struct {
	mu sync.RWMutex
	// botID -> chatID -> commandID
	active map[string]map[string]string
}

// NewContextRegistry creates an empty registry.
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{
		active: make(map[string]map[string]string),
	}
}

// Get returns the active multi-command id for the chat, if any.
func (r *ContextRegistry) Get(botID, chatID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chats, ok := r.active[botID]
	if !ok {
		return "", false
	}
	id, ok := chats[chatID]
	return id, ok
}

// Set records commandID as the active multi-command for the chat.
func (r *ContextRegistry) Set(botID, chatID, commandID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chats, ok := r.active[botID]
	if !ok {
		chats = make(map[string]string)
		r.active[botID] = chats
	}
	chats[chatID] = commandID
}

// Delete clears the chat's active multi-command.
func (r *ContextRegistry) Delete(botID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chats, ok := r.active[botID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(r.active, botID)
		}
	}
}

// ClearByBot drops every session of one bot, returning how many chats
// were cleared.
func (r *ContextRegistry) ClearByBot(botID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.active[botID])
	delete(r.active, botID)
	return n
}

// ClearByCommand drops the bot's sessions pointing at one command,
// returning how many chats were cleared.
func (r *ContextRegistry) ClearByCommand(botID, commandID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	chats, ok := r.active[botID]
	if !ok {
		return 0
	}
	n := 0
	for chatID, id := range chats {
		if id == commandID {
			delete(chats, chatID)
			n++
		}
	}
	if len(chats) == 0 {
		delete(r.active, botID)
	}
	return n
}

// ClearAll empties the registry, returning how many sessions existed.
func (r *ContextRegistry) ClearAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, chats := range r.active {
		n += len(chats)
	}
	r.active = make(map[string]map[string]string)
	return n
}

// Len reports the number of live sessions.
func (r *ContextRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, chats := range r.active {
		n += len(chats)
	}
	return n
}
