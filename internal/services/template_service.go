package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "finsight/internal/errors"
	"finsight/internal/models"
	"finsight/internal/scoring"
)

// templateService stores scoring templates as JSON definitions keyed by slug.
type templateService struct {
	db *gorm.DB
}

// NewTemplateService creates a new TemplateServicer.
func NewTemplateService(db *gorm.DB) TemplateServicer {
	return &templateService{db: db}
}

// GetByName returns the stored template with the given slug.
func (s *templateService) GetByName(ctx context.Context, name string) (*scoring.Template, error) {
	var row models.ScoringTemplate
	if err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessagef(apperrors.ErrTemplateNotFound, "Template '%s' not found", name)
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return decodeTemplate(&row)
}

// List returns every stored template ordered by slug. Rows that fail to
// decode are reported as ErrTemplateInvalid.
func (s *templateService) List(ctx context.Context) ([]scoring.Template, error) {
	var rows []models.ScoringTemplate
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	templates := make([]scoring.Template, 0, len(rows))
	for i := range rows {
		t, err := decodeTemplate(&rows[i])
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, nil
}

// Upsert validates t and stores it under its slug, replacing any existing
// definition.
func (s *templateService) Upsert(ctx context.Context, t *scoring.Template) (*scoring.Template, error) {
	if err := t.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}

	definition, err := json.Marshal(t)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	sectors, err := json.Marshal(t.Sectors)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	row := models.ScoringTemplate{
		Name:        t.Slug,
		Description: t.Description,
		Sectors:     datatypes.JSON(sectors),
		Definition:  datatypes.JSON(definition),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "sectors", "definition", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return s.GetByName(ctx, t.Slug)
}

func decodeTemplate(row *models.ScoringTemplate) (*scoring.Template, error) {
	var t scoring.Template
	if err := json.Unmarshal(row.Definition, &t); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTemplateInvalid, err)
	}
	if t.Slug == "" {
		t.Slug = row.Name
	}
	if err := t.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTemplateInvalid, err)
	}
	if t.ID == "" {
		t.ID = row.ID
	}
	return &t, nil
}
