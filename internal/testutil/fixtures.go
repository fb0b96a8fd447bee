package testutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"finsight/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestCompany creates a company with a unique ticker.
func CreateTestCompany(t *testing.T, db *gorm.DB) *models.Company {
	t.Helper()
	return CreateTestCompanyWithTicker(t, db, "TST"+strconv.FormatInt(nextID(), 10))
}

// CreateTestCompanyWithTicker creates a company with the given ticker.
func CreateTestCompanyWithTicker(t *testing.T, db *gorm.DB, ticker string) *models.Company {
	t.Helper()

	company := &models.Company{
		Ticker: ticker,
		Name:   fmt.Sprintf("%s Holdings", ticker),
		Sector: "Technology",
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}
	return company
}

// CreateTestPeriodRecord stores a record with the given natural key and payload.
func CreateTestPeriodRecord(t *testing.T, db *gorm.DB, companyID string, year int, period, recordType string, data map[string]any) *models.PeriodRecord {
	t.Helper()

	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal record payload: %v", err)
	}

	record := &models.PeriodRecord{
		CompanyID: companyID,
		Year:      year,
		Period:    period,
		Type:      recordType,
		Data:      datatypes.JSON(raw),
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("failed to create test period record: %v", err)
	}
	return record
}

// CreateTestStatements stores FY records for every statement type in year.
func CreateTestStatements(t *testing.T, db *gorm.DB, companyID string, year int) {
	t.Helper()
	for _, st := range models.StatementTypes {
		CreateTestPeriodRecord(t, db, companyID, year, models.PeriodFY, st, nil)
	}
}

// CreateTestFiling stores a filing record dated filingDate (YYYY-MM-DD).
func CreateTestFiling(t *testing.T, db *gorm.DB, companyID, form, filingDate string) *models.PeriodRecord {
	t.Helper()

	year, err := strconv.Atoi(filingDate[:4])
	if err != nil {
		t.Fatalf("invalid filing date %q: %v", filingDate, err)
	}
	return CreateTestPeriodRecord(t, db, companyID, year, filingDate, form, map[string]any{
		"form":       form,
		"filingDate": filingDate,
	})
}

// CreateTestTemplate stores a scoring template row with a raw definition.
func CreateTestTemplate(t *testing.T, db *gorm.DB, name string, definition []byte) *models.ScoringTemplate {
	t.Helper()

	tmpl := &models.ScoringTemplate{
		Name:        name,
		Description: "test template",
		Definition:  datatypes.JSON(definition),
	}
	if err := db.Create(tmpl).Error; err != nil {
		t.Fatalf("failed to create test template: %v", err)
	}
	return tmpl
}
