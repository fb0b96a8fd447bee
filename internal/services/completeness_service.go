package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "finsight/internal/errors"
	"finsight/internal/models"
)

const (
	oldFilingAgeYears    = 9
	recentFilingAgeYears = 2
)

// completenessService checks stored coverage for a company.
type completenessService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCompletenessService creates a new CompletenessServicer. A nil clock uses
// time.Now.
func NewCompletenessService(db *gorm.DB, now func() time.Time) CompletenessServicer {
	if now == nil {
		now = time.Now
	}
	return &completenessService{db: db, now: now}
}

type keyRow struct {
	Year   int
	Period string
	Type   string
}

// Check reports FY statement coverage for requiredYears and whether the
// company has an old 10-K and recent periodic filings.
func (s *completenessService) Check(ctx context.Context, companyID string, requiredYears []int) (*CompletenessReport, error) {
	report := &CompletenessReport{
		CompanyID:            companyID,
		RequiredYears:        append([]int{}, requiredYears...),
		MissingFinancialData: []string{},
	}
	db := s.db.WithContext(ctx)

	var statements []keyRow
	if len(requiredYears) > 0 {
		err := db.Model(&models.PeriodRecord{}).
			Select("year, period, type").
			Where("company_id = ? AND period = ? AND year IN ? AND type IN ?",
				companyID, models.PeriodFY, requiredYears, models.StatementTypes).
			Scan(&statements).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	have := make(map[string]bool, len(statements))
	for _, r := range statements {
		have[statementKey(r.Type, r.Year)] = true
	}
	for _, year := range requiredYears {
		for _, st := range models.StatementTypes {
			if !have[statementKey(st, year)] {
				report.MissingFinancialData = append(report.MissingFinancialData, statementKey(st, year))
			}
		}
	}
	report.HasCompleteFinancials = len(report.MissingFinancialData) == 0

	var filings []keyRow
	err := db.Model(&models.PeriodRecord{}).
		Select("year, period, type").
		Where("company_id = ? AND type IN ?", companyID, []string{models.Form10K, models.Form10Q}).
		Scan(&filings).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := s.now()
	oldCutoff := now.Year() - oldFilingAgeYears
	recentCutoff := now.AddDate(-recentFilingAgeYears, 0, 0)
	for _, f := range filings {
		filed := filingDate(f)
		if f.Type == models.Form10K && filed.Year() <= oldCutoff {
			report.HasOld10K = true
		}
		if !filed.Before(recentCutoff) {
			report.HasRecentFilings = true
		}
	}

	report.IsComplete = report.HasCompleteFinancials && report.HasOld10K && report.HasRecentFilings
	return report, nil
}

func statementKey(recordType string, year int) string {
	return fmt.Sprintf("%s %d %s", recordType, year, models.PeriodFY)
}

// filingDate reads the filing date stored in the period column, falling back
// to January 1 of the record year.
func filingDate(r keyRow) time.Time {
	if t, err := time.Parse(time.DateOnly, r.Period); err == nil {
		return t
	}
	return time.Date(r.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
