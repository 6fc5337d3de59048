package entity

import "errors"

var (
	// Bot errors
	ErrInvalidBotID    = errors.New("invalid bot id")
	ErrInvalidBotName  = errors.New("invalid bot name")
	ErrInvalidBotToken = errors.New("invalid bot token")

	// Command errors
	ErrInvalidCommandID     = errors.New("invalid command id")
	ErrInvalidCommandName   = errors.New("invalid command name")
	ErrMalformedCommandCode = errors.New("malformed command json code")

	// Knowledge base errors
	ErrInvalidKnowledgeID   = errors.New("invalid knowledge base id")
	ErrInvalidKnowledgeName = errors.New("invalid knowledge base name")
	ErrInvalidKnowledgeType = errors.New("invalid knowledge base type")

	// User errors
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidUserEmail = errors.New("invalid user email")
)
