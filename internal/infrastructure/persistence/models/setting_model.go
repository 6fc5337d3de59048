package models

import "time"

// SettingModel is the settings table row, a flat key/value store.
type SettingModel struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (SettingModel) TableName() string {
	return "settings"
}
