package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finsight/internal/errors"
	"finsight/internal/scoring"
	"finsight/internal/services"
)

// ScoringHandler handles scoring and template requests.
type ScoringHandler struct {
	scoringService  services.ScoringServicer
	templateService services.TemplateServicer
}

// NewScoringHandler creates a new ScoringHandler.
func NewScoringHandler(scoringService services.ScoringServicer, templateService services.TemplateServicer) *ScoringHandler {
	return &ScoringHandler{scoringService: scoringService, templateService: templateService}
}

// Calculate handles scoring a metric map against a template.
// @Summary     Calculate score
// @Description Score financial metrics against a stored or built-in template
// @Tags        scoring
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body services.ScoringRequest true "Metrics and template"
// @Success     200 {object} services.ScoringResult "Score"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Failure     500 {object} ErrorResponse "Stored template is malformed"
// @Router      /scoring/calculate [post]
func (h *ScoringHandler) Calculate(c *gin.Context) {
	var req services.ScoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.scoringService.Calculate(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListTemplates handles listing stored templates.
// @Summary     List templates
// @Tags        scoring
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} map[string][]scoring.Template "Templates"
// @Router      /scoring/templates [get]
func (h *ScoringHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templateService.List(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// GetTemplate handles retrieving one template by name. The built-in default
// is served when it has not been stored.
// @Summary     Get template
// @Tags        scoring
// @Produce     json
// @Security    ApiKeyAuth
// @Param       name path string true "Template name"
// @Success     200 {object} scoring.Template "Template"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Router      /scoring/templates/{name} [get]
func (h *ScoringHandler) GetTemplate(c *gin.Context) {
	name := c.Param("name")
	tmpl, err := h.templateService.GetByName(c.Request.Context(), name)
	if errors.Is(err, apperrors.ErrTemplateNotFound) && name == scoring.DefaultSlug {
		tmpl, err = scoring.DefaultTemplate(), nil
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"template": tmpl})
}
