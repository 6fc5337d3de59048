package entity

import "time"

// Keys for the support assistant configuration. The support chat on
// the admin panel reads its provider from these settings instead of a
// bot row.
const (
	SettingSupportAIAPIURL       = "support_ai_api_url"
	SettingSupportAIAPIKey       = "support_ai_api_key"
	SettingSupportAIModel        = "support_ai_model"
	SettingSupportAISystemPrompt = "support_ai_system_prompt"
)

// Setting is a global key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
