package services

import (
	"context"

	"finsight/internal/models"
	"finsight/internal/normalize"
	"finsight/internal/pagination"
	"finsight/internal/scoring"
)

// CompanyInput carries the descriptive fields used when a company is first seen.
type CompanyInput struct {
	Ticker   string
	Name     string
	Sector   string
	Industry string
}

// RecordFilter holds optional filter parameters for listing period records.
type RecordFilter struct {
	Year   *int
	Period string
	Type   string
}

// StoredCompanyData is a company with its stored records, newest year first.
type StoredCompanyData struct {
	Company *models.Company       `json:"company"`
	Records []models.PeriodRecord `json:"records"`
}

// CompanyServicer defines the contract for company lookups and creation.
type CompanyServicer interface {
	// EnsureCompany returns the company for in.Ticker, creating it when it
	// does not exist. created reports whether this call inserted the row.
	EnsureCompany(ctx context.Context, in CompanyInput) (company *models.Company, created bool, err error)
	UpdateProfile(ctx context.Context, companyID string, in CompanyInput) (*models.Company, error)
	GetCompanyByTicker(ctx context.Context, ticker string) (*models.Company, error)
	ListCompanies(ctx context.Context, page pagination.PageRequest) (*pagination.PageResponse[models.Company], error)
	GetStoredCompanyData(ctx context.Context, ticker string, filter RecordFilter) (*StoredCompanyData, error)
}

// FinancialDataServicer persists statements and filings under their natural
// key (company, year, period, type).
type FinancialDataServicer interface {
	// StoreFinancialData inserts or updates the record for the natural key.
	// With merge, list values are appended to existing lists and other keys
	// are overwritten; without it the payload replaces the stored one.
	StoreFinancialData(ctx context.Context, companyID string, year int, period, recordType string, payload map[string]any, merge bool) (string, error)
	// StoreSECFiling stores a filing keyed by its filing date and form. It
	// returns false when the filing was already stored or could not be
	// written; errors are logged, never returned.
	StoreSECFiling(ctx context.Context, companyID string, filing normalize.FilingRecord) (string, bool)
	ListPeriodRecords(ctx context.Context, companyID string, filter RecordFilter) ([]models.PeriodRecord, error)
	GetPeriodRecord(ctx context.Context, id string) (*models.PeriodRecord, error)
}

// CompletenessReport describes how well stored data covers a set of years.
type CompletenessReport struct {
	CompanyID             string   `json:"company_id"`
	RequiredYears         []int    `json:"required_years"`
	HasCompleteFinancials bool     `json:"has_complete_financials"`
	HasOld10K             bool     `json:"has_old_10k"`
	HasRecentFilings      bool     `json:"has_recent_filings"`
	IsComplete            bool     `json:"is_complete"`
	MissingFinancialData  []string `json:"missing_financial_data"`
}

// CompletenessServicer decides whether stored data satisfies a coverage window.
type CompletenessServicer interface {
	Check(ctx context.Context, companyID string, requiredYears []int) (*CompletenessReport, error)
}

// TemplateServicer defines the contract for stored scoring templates.
type TemplateServicer interface {
	// GetByName returns ErrTemplateNotFound when no row exists and
	// ErrTemplateInvalid when the stored definition cannot be decoded.
	GetByName(ctx context.Context, name string) (*scoring.Template, error)
	List(ctx context.Context) ([]scoring.Template, error)
	Upsert(ctx context.Context, t *scoring.Template) (*scoring.Template, error)
}

// ScoringRequest is the inbound scoring contract.
type ScoringRequest struct {
	FinancialMetrics map[string]float64 `json:"financial_metrics" binding:"required"`
	TemplateName     string             `json:"template_name"`
	Mode             string             `json:"mode"`
}

// ScoringResult is the outbound scoring contract.
type ScoringResult struct {
	Score            *scoring.FinalScore `json:"score"`
	TemplateUsed     string              `json:"template_used"`
	MetricsProcessed int                 `json:"metrics_processed"`
	MissingMetrics   []string            `json:"missing_metrics"`
}

// ScoringServicer resolves a template and scores metrics against it.
type ScoringServicer interface {
	Calculate(ctx context.Context, req ScoringRequest) (*ScoringResult, error)
}
