package services

import (
	"context"
	"errors"
	"strings"

	apperrors "finsight/internal/errors"
	"finsight/internal/observability"
	"finsight/internal/scoring"
)

// scoringService resolves templates and runs the scoring engine.
type scoringService struct {
	templates TemplateServicer
	metrics   *observability.Metrics
}

// NewScoringService creates a new ScoringServicer. metrics may be nil.
func NewScoringService(templates TemplateServicer, metrics *observability.Metrics) ScoringServicer {
	return &scoringService{templates: templates, metrics: metrics}
}

// Calculate scores req.FinancialMetrics. The template name defaults to
// default_tech, which resolves to the built-in template when no row with
// that name is stored.
func (s *scoringService) Calculate(ctx context.Context, req ScoringRequest) (*ScoringResult, error) {
	name := strings.TrimSpace(req.TemplateName)
	if name == "" {
		name = scoring.DefaultSlug
	}

	mode, err := scoring.ParseMode(req.Mode)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}

	tmpl, err := s.resolve(ctx, name)
	if err != nil {
		s.metrics.Scored(name, err)
		return nil, err
	}

	final := scoring.Score(req.FinancialMetrics, tmpl, mode)
	s.metrics.Scored(name, nil)

	return &ScoringResult{
		Score:            final,
		TemplateUsed:     tmpl.Name,
		MetricsProcessed: len(req.FinancialMetrics),
		MissingMetrics:   final.InsufficientDataFlags,
	}, nil
}

func (s *scoringService) resolve(ctx context.Context, name string) (*scoring.Template, error) {
	tmpl, err := s.templates.GetByName(ctx, name)
	if err == nil {
		return tmpl, nil
	}
	if name == scoring.DefaultSlug && errors.Is(err, apperrors.ErrTemplateNotFound) {
		return scoring.DefaultTemplate(), nil
	}
	return nil, err
}
