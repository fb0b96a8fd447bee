package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "finsight/internal/errors"
	"finsight/internal/ingestion"
	"finsight/internal/pagination"
	"finsight/internal/services"
)

// CompanyHandler serves stored companies and their records.
type CompanyHandler struct {
	companyService      services.CompanyServicer
	completenessService services.CompletenessServicer
	now                 func() time.Time
}

// NewCompanyHandler creates a new CompanyHandler.
func NewCompanyHandler(companyService services.CompanyServicer, completenessService services.CompletenessServicer) *CompanyHandler {
	return &CompanyHandler{
		companyService:      companyService,
		completenessService: completenessService,
		now:                 time.Now,
	}
}

// ListCompanies handles listing stored companies.
// @Summary     List companies
// @Tags        companies
// @Produce     json
// @Security    ApiKeyAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Param       sort      query string false "ticker, name or created_at; prefix with - for descending"
// @Success     200 {object} pagination.PageResponse[models.Company] "Paginated companies"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /companies [get]
func (h *CompanyHandler) ListCompanies(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.companyService.ListCompanies(c.Request.Context(), page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetCompany handles retrieving a company with its stored records.
// @Summary     Get company data
// @Tags        companies
// @Produce     json
// @Security    ApiKeyAuth
// @Param       ticker path  string true  "Ticker"
// @Param       year   query int    false "Fiscal year"
// @Param       period query string false "Period (FY, Q1..Q4, or a filing date)"
// @Param       type   query string false "Record type"
// @Success     200 {object} services.StoredCompanyData "Company and records"
// @Failure     404 {object} ErrorResponse "Company not found"
// @Router      /companies/{ticker} [get]
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	ticker, err := pathTicker(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	filter := services.RecordFilter{
		Period: c.Query("period"),
		Type:   c.Query("type"),
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year"))
			return
		}
		filter.Year = &year
	}

	data, err := h.companyService.GetStoredCompanyData(c.Request.Context(), ticker, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// GetCompleteness handles checking a company's stored coverage.
// @Summary     Check coverage
// @Tags        companies
// @Produce     json
// @Security    ApiKeyAuth
// @Param       ticker path  string true  "Ticker"
// @Param       years  query string false "Comma-separated fiscal years (default: last two)"
// @Success     200 {object} services.CompletenessReport "Completeness report"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Company not found"
// @Router      /companies/{ticker}/completeness [get]
func (h *CompanyHandler) GetCompleteness(c *gin.Context) {
	ticker, err := pathTicker(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	years, err := parseYears(c.Query("years"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	if len(years) == 0 {
		years = ingestion.DefaultYears(h.now())
	}

	ctx := c.Request.Context()
	company, err := h.companyService.GetCompanyByTicker(ctx, ticker)
	if err != nil {
		respondWithError(c, err)
		return
	}
	report, err := h.completenessService.Check(ctx, company.ID, years)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
