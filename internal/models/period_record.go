package models

import "gorm.io/datatypes"

// Statement record types.
const (
	TypeIncomeStatement = "Income Statement"
	TypeBalanceSheet    = "Balance Sheet"
	TypeCashFlow        = "Cash Flow Statement"
)

// StatementTypes lists the three fundamental statement types in storage order.
var StatementTypes = []string{TypeIncomeStatement, TypeBalanceSheet, TypeCashFlow}

// Filing forms with special handling.
const (
	Form10K = "10-K"
	Form10Q = "10-Q"
)

// PeriodFY is the period label for annual statements.
const PeriodFY = "FY"

// PeriodRecord is one stored statement or filing. (CompanyID, Year, Period,
// Type) is the natural key. For filings Period holds the filing date and
// Type the form.
type PeriodRecord struct {
	Base
	CompanyID string         `gorm:"type:uuid;not null;uniqueIndex:uq_period_records_natural_key,priority:1" json:"company_id"`
	Year      int            `gorm:"not null;uniqueIndex:uq_period_records_natural_key,priority:2" json:"year"`
	Period    string         `gorm:"not null;uniqueIndex:uq_period_records_natural_key,priority:3" json:"period"`
	Type      string         `gorm:"not null;uniqueIndex:uq_period_records_natural_key,priority:4" json:"type"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null" json:"data"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}
