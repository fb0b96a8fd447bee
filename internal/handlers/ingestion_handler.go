package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finsight/internal/errors"
	"finsight/internal/ingestion"
)

// Ingester runs ingestion batches. *ingestion.Orchestrator implements it.
type Ingester interface {
	FetchAndStoreForTickers(ctx context.Context, tickers []string, years []int, periods []string) (map[string]map[string][]string, error)
	FetchWithBudget(ctx context.Context, tickers []string, years []int, periods []string, budget int) (map[string]map[string][]string, error)
	FetchAndStoreSECFilingsForTickers(ctx context.Context, tickers []string, from, to string) (map[string][]string, error)
	FetchSECFilingsWithBudget(ctx context.Context, tickers []string, from, to string, maxFilings int) (map[string][]string, error)
	EnsureCoverage(ctx context.Context, req ingestion.CoverageRequest) (map[string]*ingestion.CoverageResult, error)
}

var _ Ingester = (*ingestion.Orchestrator)(nil)

// IngestionHandler triggers ingestion batches.
type IngestionHandler struct {
	ingester Ingester
}

// NewIngestionHandler creates a new IngestionHandler.
func NewIngestionHandler(ingester Ingester) *IngestionHandler {
	return &IngestionHandler{ingester: ingester}
}

// FinancialsRequest represents the request payload for statement ingestion.
type FinancialsRequest struct {
	Tickers []string `json:"tickers" binding:"required,min=1,max=100,dive,ticker"`
	Years   []int    `json:"years" binding:"omitempty,dive,min=1900,max=2100"`
	Periods []string `json:"periods" binding:"omitempty,dive,statement_period"`
	Budget  int      `json:"budget" binding:"omitempty,min=1"`
}

// FilingsRequest represents the request payload for filing ingestion.
type FilingsRequest struct {
	Tickers    []string `json:"tickers" binding:"required,min=1,max=100,dive,ticker"`
	From       string   `json:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string   `json:"to" binding:"omitempty,datetime=2006-01-02"`
	MaxFilings int      `json:"max_filings" binding:"omitempty,min=1"`
}

// CoverageRequest represents the request payload for coverage ingestion.
type CoverageRequest struct {
	Tickers    []string `json:"tickers" binding:"required,min=1,max=100,dive,ticker"`
	Years      []int    `json:"years" binding:"omitempty,dive,min=1900,max=2100"`
	Periods    []string `json:"periods" binding:"omitempty,dive,statement_period"`
	From       string   `json:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string   `json:"to" binding:"omitempty,datetime=2006-01-02"`
	Budget     int      `json:"budget" binding:"omitempty,min=1"`
	MaxFilings int      `json:"max_filings" binding:"omitempty,min=1"`
}

// IngestFinancials handles fetching and storing statements for tickers.
// @Summary     Ingest financial statements
// @Description Fetch statements for each ticker, optionally limited by a data-point budget
// @Tags        ingestion
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body FinancialsRequest true "Tickers, years and periods"
// @Success     200 {object} map[string]any "Stored record IDs per ticker and endpoint"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     502 {object} ErrorResponse "Provider call failed"
// @Router      /ingestion/financials [post]
func (h *IngestionHandler) IngestFinancials(c *gin.Context) {
	var req FinancialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ctx := c.Request.Context()
	var (
		results map[string]map[string][]string
		err     error
	)
	if req.Budget > 0 {
		results, err = h.ingester.FetchWithBudget(ctx, req.Tickers, req.Years, req.Periods, req.Budget)
	} else {
		results, err = h.ingester.FetchAndStoreForTickers(ctx, req.Tickers, req.Years, req.Periods)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// IngestFilings handles fetching and storing SEC filings for tickers.
// @Summary     Ingest SEC filings
// @Tags        ingestion
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body FilingsRequest true "Tickers and date range"
// @Success     200 {object} map[string]any "Stored record IDs per ticker"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     502 {object} ErrorResponse "Provider call failed"
// @Router      /ingestion/filings [post]
func (h *IngestionHandler) IngestFilings(c *gin.Context) {
	var req FilingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ctx := c.Request.Context()
	var (
		results map[string][]string
		err     error
	)
	if req.MaxFilings > 0 {
		results, err = h.ingester.FetchSECFilingsWithBudget(ctx, req.Tickers, req.From, req.To, req.MaxFilings)
	} else {
		results, err = h.ingester.FetchAndStoreSECFilingsForTickers(ctx, req.Tickers, req.From, req.To)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// EnsureCoverage handles fetching only what is missing from each ticker's
// coverage window.
// @Summary     Ensure coverage
// @Tags        ingestion
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body CoverageRequest true "Tickers and coverage window"
// @Success     200 {object} map[string]any "Coverage results per ticker"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     502 {object} ErrorResponse "Provider call failed"
// @Router      /ingestion/coverage [post]
func (h *IngestionHandler) EnsureCoverage(c *gin.Context) {
	var req CoverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	results, err := h.ingester.EnsureCoverage(c.Request.Context(), ingestion.CoverageRequest{
		Tickers:    req.Tickers,
		Years:      req.Years,
		Periods:    req.Periods,
		From:       req.From,
		To:         req.To,
		Budget:     req.Budget,
		MaxFilings: req.MaxFilings,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
