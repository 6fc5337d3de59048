package models

import "time"

// KnowledgeModel is the databases table row.
type KnowledgeModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:128;not null"`
	Type        string `gorm:"size:16;not null"`
	Description string `gorm:"type:text"`
	Content     string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (KnowledgeModel) TableName() string {
	return "databases"
}
