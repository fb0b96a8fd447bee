package models

import "gorm.io/datatypes"

// ScoringTemplate stores a named scoring template. Definition holds the
// dimensions as JSON and is decoded by the scoring service on every lookup.
type ScoringTemplate struct {
	Base
	Name        string         `gorm:"not null;uniqueIndex" json:"name"`
	Description string         `json:"description,omitempty"`
	Sectors     datatypes.JSON `gorm:"type:jsonb" json:"sectors,omitempty"`
	Definition  datatypes.JSON `gorm:"type:jsonb;not null" json:"definition"`
}
