package entity

import "time"

// Knowledge base content kinds. Text is injected verbatim; JSON is
// injected with a label telling the model the payload is structured.
const (
	KnowledgeTypeText = "text"
	KnowledgeTypeJSON = "json"
)

// KnowledgeBase is operator-curated content injected into a bot's
// system prompt. Persisted in the `databases` table; deletion is
// refused while any bot references it.
type KnowledgeBase struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewKnowledgeBase validates the required fields.
func NewKnowledgeBase(id, name, kbType string) (*KnowledgeBase, error) {
	if id == "" {
		return nil, ErrInvalidKnowledgeID
	}
	if name == "" {
		return nil, ErrInvalidKnowledgeName
	}
	if kbType != KnowledgeTypeText && kbType != KnowledgeTypeJSON {
		return nil, ErrInvalidKnowledgeType
	}
	now := time.Now().UTC()
	return &KnowledgeBase{
		ID:        id,
		Name:      name,
		Type:      kbType,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Size reports the content length in bytes, shown in the admin UI.
func (k *KnowledgeBase) Size() int {
	return len(k.Content)
}
