package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "finsight/internal/errors"
	"finsight/internal/models"
	"finsight/internal/pagination"
)

// companyService handles company lookups and creation.
type companyService struct {
	db      *gorm.DB
	records FinancialDataServicer
}

// NewCompanyService creates a new CompanyServicer.
func NewCompanyService(db *gorm.DB, records FinancialDataServicer) CompanyServicer {
	return &companyService{db: db, records: records}
}

// EnsureCompany returns the company for the ticker, creating it if needed.
// Concurrent first sightings of a ticker resolve to the same row.
func (s *companyService) EnsureCompany(ctx context.Context, in CompanyInput) (*models.Company, bool, error) {
	ticker := normalizeTicker(in.Ticker)
	if ticker == "" {
		return nil, false, apperrors.WithMessage(apperrors.ErrInvalidInput, "Ticker is required")
	}

	db := s.db.WithContext(ctx)
	var company models.Company
	err := db.Where("ticker = ?", ticker).First(&company).Error
	if err == nil {
		return &company, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = ticker
	}
	company = models.Company{
		Ticker:   ticker,
		Name:     name,
		Sector:   in.Sector,
		Industry: in.Industry,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&company)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return s.reload(ctx, ticker)
		}
		return nil, false, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.reload(ctx, ticker)
	}
	return &company, true, nil
}

func (s *companyService) reload(ctx context.Context, ticker string) (*models.Company, bool, error) {
	c, err := s.GetCompanyByTicker(ctx, ticker)
	if err != nil {
		return nil, false, err
	}
	return c, false, nil
}

// UpdateProfile fills descriptive fields from a provider profile. Empty
// inputs leave stored values unchanged.
func (s *companyService) UpdateProfile(ctx context.Context, companyID string, in CompanyInput) (*models.Company, error) {
	var company models.Company
	db := s.db.WithContext(ctx)
	if err := db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	changed := false
	if v := strings.TrimSpace(in.Name); v != "" {
		company.Name, changed = v, true
	}
	if v := strings.TrimSpace(in.Sector); v != "" {
		company.Sector, changed = v, true
	}
	if v := strings.TrimSpace(in.Industry); v != "" {
		company.Industry, changed = v, true
	}
	if !changed {
		return &company, nil
	}

	if err := db.Save(&company).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &company, nil
}

// GetCompanyByTicker returns a company by ticker, case-insensitively.
func (s *companyService) GetCompanyByTicker(ctx context.Context, ticker string) (*models.Company, error) {
	var company models.Company
	if err := s.db.WithContext(ctx).Where("ticker = ?", normalizeTicker(ticker)).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCompanyNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &company, nil
}

// ListCompanies returns a paginated list of companies, ordered by ticker
// unless the request names another sort.
func (s *companyService) ListCompanies(ctx context.Context, page pagination.PageRequest) (*pagination.PageResponse[models.Company], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.WithContext(ctx).Model(&models.Company{})
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var companies []models.Company
	if err := base.Scopes(pagination.Paginate(page, "ticker")).Find(&companies).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(companies, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetStoredCompanyData returns the company and its matching records.
func (s *companyService) GetStoredCompanyData(ctx context.Context, ticker string, filter RecordFilter) (*StoredCompanyData, error) {
	company, err := s.GetCompanyByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListPeriodRecords(ctx, company.ID, filter)
	if err != nil {
		return nil, err
	}
	return &StoredCompanyData{Company: company, Records: records}, nil
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// isUniqueConstraintError checks if a GORM error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}
