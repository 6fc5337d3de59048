package entity

import (
	"encoding/json"
	"time"
)

// Command payload types. Any other value falls through to the generic
// text/JSON rendering at execution time.
const (
	CommandTypeMenu         = "menu"
	CommandTypeMessage      = "message"
	CommandTypeKeyboard     = "keyboard"
	CommandTypeMultiCommand = "multi_command"
)

// Command is an operator-scripted action attached to one bot. Name is
// unique within the bot. A multi-command is a container: while it is
// active in a chat the visible set narrows to the commands whose
// ParentMultiCommandID points at it.
type Command struct {
	ID                   string `json:"id"`
	BotID                string `json:"bot_id"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	JSONCode             string `json:"json_code"`
	IsActive             bool   `json:"is_active"`
	IsMultiCommand       bool   `json:"is_multi_command"`
	ParentMultiCommandID string `json:"parent_multi_command_id,omitempty"`

	// Whether top-level commands stay reachable while this
	// multi-command is active. Meaningful on containers only.
	AllowExternalCommands bool `json:"allow_external_commands"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCommand validates the required fields of a fresh command.
func NewCommand(id, botID, name, jsonCode string) (*Command, error) {
	if id == "" || botID == "" {
		return nil, ErrInvalidCommandID
	}
	if name == "" {
		return nil, ErrInvalidCommandName
	}
	if err := ValidateJSONCode(jsonCode); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Command{
		ID:        id,
		BotID:     botID,
		Name:      name,
		JSONCode:  jsonCode,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsNested reports whether the command belongs to a multi-command.
func (c *Command) IsNested() bool {
	return c.ParentMultiCommandID != ""
}

// CommandPayload is the decoded json_code. Semantic validation stays
// best-effort at execution; only well-formedness is enforced at write
// time.
type CommandPayload struct {
	Type           string          `json:"type"`
	Text           string          `json:"text,omitempty"`
	WelcomeMessage string          `json:"welcome_message,omitempty"`
	Buttons        json.RawMessage `json:"buttons,omitempty"`
	OneTime        bool            `json:"one_time,omitempty"`
}

// Button is one menu/keyboard entry.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// Payload decodes json_code.
func (c *Command) Payload() (*CommandPayload, error) {
	var p CommandPayload
	if err := json.Unmarshal([]byte(c.JSONCode), &p); err != nil {
		return nil, ErrMalformedCommandCode
	}
	return &p, nil
}

// ButtonRows decodes the buttons field. Operators write either rows
// ([[{...}],[{...}]]) or a flat list; a flat list becomes one button
// per row.
func (p *CommandPayload) ButtonRows() [][]Button {
	if len(p.Buttons) == 0 {
		return nil
	}

	var rows [][]Button
	if err := json.Unmarshal(p.Buttons, &rows); err == nil {
		return rows
	}

	var flat []Button
	if err := json.Unmarshal(p.Buttons, &flat); err == nil {
		rows = make([][]Button, 0, len(flat))
		for _, b := range flat {
			rows = append(rows, []Button{b})
		}
		return rows
	}
	return nil
}

// ValidateJSONCode checks that code parses as a JSON object.
func ValidateJSONCode(code string) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(code), &obj); err != nil {
		return ErrMalformedCommandCode
	}
	return nil
}
