package models

import "time"

// CommandModel is the bot_commands table row. Name is unique per bot,
// and the composite index covers the name-lookup path on the hot loop.
type CommandModel struct {
	ID                    string `gorm:"primaryKey;size:64"`
	BotID                 string `gorm:"size:64;not null;uniqueIndex:uniq_bot_command,priority:1;index:idx_command_lookup,priority:1"`
	Name                  string `gorm:"size:128;not null;uniqueIndex:uniq_bot_command,priority:2;index:idx_command_lookup,priority:2"`
	Description           string `gorm:"type:text"`
	JSONCode              string `gorm:"column:json_code;type:text"`
	IsActive              bool   `gorm:"index:idx_command_lookup,priority:3"`
	IsMultiCommand        bool
	ParentMultiCommandID  string `gorm:"size:64;index"`
	AllowExternalCommands bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (CommandModel) TableName() string {
	return "bot_commands"
}
