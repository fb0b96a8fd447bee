package models

// Company is a tracked ticker. It is created the first time ingestion stores
// data for the ticker.
type Company struct {
	Base
	Ticker   string `gorm:"not null;uniqueIndex" json:"ticker"`
	Name     string `gorm:"not null" json:"name"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`

	Records []PeriodRecord `gorm:"foreignKey:CompanyID" json:"records,omitempty"`
}
