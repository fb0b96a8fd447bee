package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "finsight/internal/errors"
	"finsight/internal/logger"
	"finsight/internal/models"
	"finsight/internal/normalize"
	"finsight/internal/observability"
)

// financialDataService writes period records under their natural key.
type financialDataService struct {
	db      *gorm.DB
	now     func() time.Time
	metrics *observability.Metrics
	log     *zap.SugaredLogger
}

// NewFinancialDataService creates a new FinancialDataServicer. metrics may be nil.
func NewFinancialDataService(db *gorm.DB, metrics *observability.Metrics) FinancialDataServicer {
	return &financialDataService{
		db:      db,
		now:     time.Now,
		metrics: metrics,
		log:     logger.Named("persistence"),
	}
}

type naturalKey struct {
	companyID  string
	year       int
	period     string
	recordType string
}

func (k naturalKey) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", k.companyID, k.year, k.period, k.recordType)
}

// StoreFinancialData upserts a record. The read-modify-write runs in one
// transaction; on postgres the existing row is locked for update, and an
// insert that loses a race against a concurrent writer is retried as an
// update of the winner's row.
func (s *financialDataService) StoreFinancialData(
	ctx context.Context,
	companyID string,
	year int,
	period, recordType string,
	payload map[string]any,
	merge bool,
) (string, error) {
	if companyID == "" || strings.TrimSpace(period) == "" || strings.TrimSpace(recordType) == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "Company, period and type are required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	key := naturalKey{companyID: companyID, year: year, period: period, recordType: recordType}

	var id, op string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findForUpdate(tx, key)
		switch {
		case err == nil:
			id, op = existing.ID, "updated"
			if merge {
				op = "merged"
			}
			return s.update(tx, existing, payload, merge)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		record := &models.PeriodRecord{
			CompanyID: companyID,
			Year:      year,
			Period:    period,
			Type:      recordType,
			Data:      datatypes.JSON(raw),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			id, op = record.ID, "inserted"
			return nil
		}

		existing, err = s.findForUpdate(tx, key)
		if err != nil {
			return fmt.Errorf("re-reading %s after insert conflict: %w", key, err)
		}
		id, op = existing.ID, "updated"
		if merge {
			op = "merged"
		}
		return s.update(tx, existing, payload, merge)
	})
	if err != nil {
		s.log.Errorw("failed to store financial data", "key", key.String(), "error", err)
		return "", apperrors.Wrap(apperrors.ErrPersistence, err)
	}

	s.metrics.Stored(recordType, op)
	s.log.Debugw("stored financial data", "key", key.String(), "op", op, "id", id)
	return id, nil
}

func (s *financialDataService) findForUpdate(tx *gorm.DB, key naturalKey) (*models.PeriodRecord, error) {
	q := tx.Where("company_id = ? AND year = ? AND period = ? AND type = ?",
		key.companyID, key.year, key.period, key.recordType)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var record models.PeriodRecord
	if err := q.First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *financialDataService) update(tx *gorm.DB, record *models.PeriodRecord, payload map[string]any, merge bool) error {
	data := payload
	if merge {
		existing := map[string]any{}
		if len(record.Data) > 0 {
			if err := json.Unmarshal(record.Data, &existing); err != nil {
				return fmt.Errorf("decoding stored payload %s: %w", record.ID, err)
			}
		}
		data = mergePayload(existing, payload)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return tx.Model(record).Updates(map[string]any{
		"data":       datatypes.JSON(raw),
		"updated_at": s.now(),
	}).Error
}

// mergePayload appends incoming values to keys that already hold lists and
// overwrites every other key.
func mergePayload(existing, incoming map[string]any) map[string]any {
	for k, v := range incoming {
		current, ok := existing[k].([]any)
		if !ok {
			existing[k] = v
			continue
		}
		switch add := v.(type) {
		case []any:
			existing[k] = append(current, add...)
		case []map[string]any:
			for _, item := range add {
				current = append(current, item)
			}
			existing[k] = current
		default:
			existing[k] = append(current, v)
		}
	}
	return existing
}

// StoreSECFiling inserts a filing unless one with the same date and form is
// already stored for the company. Two different filings of the same form on
// the same day share a key, so the second is skipped.
func (s *financialDataService) StoreSECFiling(ctx context.Context, companyID string, filing normalize.FilingRecord) (string, bool) {
	f := filing.FilingData()
	key := naturalKey{
		companyID:  companyID,
		year:       s.filingYear(f),
		period:     f.FilingDate,
		recordType: strings.ToUpper(strings.TrimSpace(f.Form)),
	}

	var existing int64
	err := s.db.WithContext(ctx).Model(&models.PeriodRecord{}).
		Where("company_id = ? AND year = ? AND period = ? AND type = ?", key.companyID, key.year, key.period, key.recordType).
		Count(&existing).Error
	if err != nil {
		s.log.Errorw("failed to check existing SEC filing", "key", key.String(), "error", err)
		return "", false
	}
	if existing > 0 {
		s.metrics.FilingSkipped()
		s.log.Debugw("SEC filing already stored", "key", key.String())
		return "", false
	}

	values := filing.Values()
	if values == nil {
		values = map[string]any{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		s.log.Errorw("failed to encode SEC filing", "key", key.String(), "error", err)
		return "", false
	}
	record := &models.PeriodRecord{
		CompanyID: key.companyID,
		Year:      key.year,
		Period:    key.period,
		Type:      key.recordType,
		Data:      datatypes.JSON(raw),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		s.log.Errorw("failed to store SEC filing", "key", key.String(), "error", res.Error)
		return "", false
	}
	if res.RowsAffected == 0 {
		s.metrics.FilingSkipped()
		return "", false
	}

	s.metrics.Stored(key.recordType, "inserted")
	return record.ID, true
}

// filingYear takes the year from the filing date, then the fiscal year, then
// the current year.
func (s *financialDataService) filingYear(f *normalize.Filing) int {
	if len(f.FilingDate) >= 4 {
		if y, err := strconv.Atoi(f.FilingDate[:4]); err == nil {
			return y
		}
	}
	if y, err := strconv.Atoi(strings.TrimSpace(f.FiscalYear)); err == nil {
		return y
	}
	return s.now().Year()
}

// ListPeriodRecords returns a company's records ordered by year DESC, period, type.
func (s *financialDataService) ListPeriodRecords(ctx context.Context, companyID string, filter RecordFilter) ([]models.PeriodRecord, error) {
	q := s.db.WithContext(ctx).Where("company_id = ?", companyID)
	if filter.Year != nil {
		q = q.Where("year = ?", *filter.Year)
	}
	if filter.Period != "" {
		q = q.Where("period = ?", filter.Period)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}

	var records []models.PeriodRecord
	if err := q.Order("year DESC").Order("period ASC").Order("type ASC").Find(&records).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if records == nil {
		records = []models.PeriodRecord{}
	}
	return records, nil
}

// GetPeriodRecord returns a record by ID.
func (s *financialDataService) GetPeriodRecord(ctx context.Context, id string) (*models.PeriodRecord, error) {
	var record models.PeriodRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &record, nil
}
