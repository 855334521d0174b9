package data

import (
	"github.com/stake-plus/dao-monitor/src/gov"
	"gorm.io/gorm"
)

// Settings is a snapshot of the active rows of the settings table.
type Settings struct {
	values map[string]string
}

// LoadSettings reads all active settings.
func LoadSettings(db *gorm.DB) (*Settings, error) {
	var rows []gov.Setting
	if err := db.Where("active = ?", 1).Find(&rows).Error; err != nil {
		return nil, err
	}
	s := &Settings{values: make(map[string]string, len(rows))}
	for _, row := range rows {
		s.values[row.Name] = row.Value
	}
	return s, nil
}

// NewSettings builds a snapshot from a plain map.
func NewSettings(values map[string]string) *Settings {
	s := &Settings{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Get returns a setting value, or "" when unset. A nil snapshot has no values.
func (s *Settings) Get(name string) string {
	if s == nil {
		return ""
	}
	return s.values[name]
}

// Len is the number of loaded settings.
func (s *Settings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}
