package ingestion

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "finsight/internal/errors"
	"finsight/internal/models"
	"finsight/internal/normalize"
	"finsight/internal/provider"
	"finsight/internal/testutil"
)

func TestTask_FetchAndStoreCompanyFinancials_Annual(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp)
	ctx := context.Background()

	res, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(ctx, " aapl ", []int{2023}, []string{"annual"})
	require.NoError(t, err)

	for _, endpoint := range provider.StatementEndpoints {
		assert.Len(t, res[endpoint], 1, endpoint)
	}
	assert.Equal(t, int32(3), fmp.calls.Load())

	var company models.Company
	require.NoError(t, db.Where("ticker = ?", "AAPL").First(&company).Error)
	assert.Equal(t, "AAPL", company.Name)

	var records []models.PeriodRecord
	require.NoError(t, db.Where("company_id = ?", company.ID).Order("type").Find(&records).Error)
	require.Len(t, records, 3)
	types := []string{}
	for _, r := range records {
		assert.Equal(t, 2023, r.Year)
		assert.Equal(t, models.PeriodFY, r.Period)
		types = append(types, r.Type)
	}
	assert.ElementsMatch(t, models.StatementTypes, types)

	var income models.PeriodRecord
	require.NoError(t, db.Where("company_id = ? AND type = ?", company.ID, models.TypeIncomeStatement).First(&income).Error)
	payload := testutil.DecodePayload(t, &income)
	assert.Len(t, payload["income_statements"], 1)
	assert.Empty(t, payload["balance_sheets"])
	assert.Empty(t, payload["cash_flows"])
	meta := payload["metadata"].(map[string]any)
	assert.Equal(t, "fmp", meta["source"])
	assert.Equal(t, "2025-03-01T12:00:00Z", meta["stored_at"])

	stmt := payload["income_statements"].([]any)[0].(map[string]any)
	assert.Equal(t, "2023", stmt["fiscalYear"])
	assert.InDelta(t, 1000.0, stmt["revenue"], 1e-9)
}

func TestTask_FetchAndStoreCompanyFinancials_MergesRepeatedFetches(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp)
	ctx := context.Background()

	first, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(ctx, "AAPL", []int{2023}, []string{"annual"})
	require.NoError(t, err)
	second, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(ctx, "AAPL", []int{2023}, []string{"annual"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// The second run is answered from the shared cache.
	assert.Equal(t, int32(3), fmp.calls.Load())

	var count int64
	db.Model(&models.PeriodRecord{}).Count(&count)
	assert.Equal(t, int64(3), count)

	var income models.PeriodRecord
	require.NoError(t, db.Where("type = ?", models.TypeIncomeStatement).First(&income).Error)
	assert.Len(t, testutil.DecodePayload(t, &income)["income_statements"], 2)
}

func TestTask_FetchAndStoreCompanyFinancials_Quarterly(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp)

	res, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(context.Background(), "MSFT", []int{2024}, []string{"quarter"})
	require.NoError(t, err)
	for _, endpoint := range provider.StatementEndpoints {
		assert.Len(t, res[endpoint], 2, endpoint)
	}

	var periods []string
	require.NoError(t, db.Model(&models.PeriodRecord{}).Distinct("period").Order("period").Pluck("period", &periods).Error)
	assert.Equal(t, []string{"Q3", "Q4"}, periods)
}

func TestTask_FetchAndStoreCompanyFinancials_RecoveredYearFollowsItem(t *testing.T) {
	fmp := newFakeFMP(t)
	item := statementItem("AAPL", 2019, "FY")
	item["date"] = "2019-09-28"
	item["calendarYear"] = "2019"
	delete(item, "fiscalYear")
	fmp.serveStatements("annual", item)
	f, db := newTestFactory(t, fmp)

	res, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(context.Background(), "AAPL", []int{2019}, []string{"annual"})
	require.NoError(t, err)
	for _, endpoint := range provider.StatementEndpoints {
		assert.Len(t, res[endpoint], 1, endpoint)
	}

	var years []int
	require.NoError(t, db.Model(&models.PeriodRecord{}).Distinct("year").Pluck("year", &years).Error)
	assert.Equal(t, []int{2019}, years)
}

func TestTask_FetchAndStoreCompanyFinancials_QuarterlySkipsAnnualLabels(t *testing.T) {
	fmp := newFakeFMP(t)
	unlabelled := statementItem("MSFT", 2024, "")
	delete(unlabelled, "period")
	fmp.serveStatements("quarter", statementItem("MSFT", 2024, "Q3"), unlabelled)
	f, db := newTestFactory(t, fmp)

	res, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(context.Background(), "MSFT", []int{2024}, []string{"quarter"})
	require.NoError(t, err)
	for _, endpoint := range provider.StatementEndpoints {
		assert.Len(t, res[endpoint], 1, endpoint)
	}

	var periods []string
	require.NoError(t, db.Model(&models.PeriodRecord{}).Distinct("period").Pluck("period", &periods).Error)
	assert.Equal(t, []string{"Q3"}, periods)
}

func TestTask_FetchAndStoreCompanyFinancials_ProviderFailure(t *testing.T) {
	fmp := newFakeFMP(t)
	fmp.failSymbol("BAD")
	f, db := newTestFactory(t, fmp)

	_, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(context.Background(), "BAD", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrProviderCall)

	var count int64
	db.Model(&models.Company{}).Count(&count)
	assert.Equal(t, int64(0), count, "no company is created before a successful fetch")
}

func TestTask_FetchAndStoreCompanyFinancials_EmptyTicker(t *testing.T) {
	fmp := newFakeFMP(t)
	f, _ := newTestFactory(t, fmp)

	_, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(context.Background(), "  ", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, int32(0), fmp.calls.Load())
}

func TestTask_FetchAndStoreData(t *testing.T) {
	fmp := newFakeFMP(t)
	f, _ := newTestFactory(t, fmp)
	task := newTestTask(t, f)
	ctx := context.Background()

	ids, err := task.FetchAndStoreData(ctx, provider.EndpointIncomeStatement, url.Values{"symbol": {"NVDA"}, "period": {"annual"}})
	require.NoError(t, err)
	assert.Len(t, ids, 3, "no year filter keeps every fiscal year")

	ids, err = task.FetchAndStoreData(ctx, provider.EndpointSECFilings, url.Values{"symbol": {"NVDA"}})
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	_, err = task.FetchAndStoreData(ctx, provider.EndpointProfile, url.Values{"symbol": {"NVDA"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTask_ProfileEnrichment(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp, func(o *FactoryOptions) { o.FetchProfiles = true })
	ctx := context.Background()

	_, err := newTestTask(t, f).FetchAndStoreCompanyFinancials(ctx, "AAPL", []int{2024}, []string{"annual"})
	require.NoError(t, err)
	_, err = newTestTask(t, f).FetchAndStoreSECFilings(ctx, "AAPL", "", "", Unlimited)
	require.NoError(t, err)

	var company models.Company
	require.NoError(t, db.Where("ticker = ?", "AAPL").First(&company).Error)
	assert.Equal(t, "AAPL Corp", company.Name)
	assert.Equal(t, "Technology", company.Sector)
	assert.Equal(t, "Software", company.Industry)
	assert.Equal(t, 1, fmp.count(provider.EndpointProfile, "AAPL"), "profile is fetched on first sight only")
}

func TestTask_ProfileEnrichmentFailureIsIgnored(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp, func(o *FactoryOptions) { o.FetchProfiles = true })
	fmp.failPath(provider.EndpointProfile)

	ids, err := newTestTask(t, f).FetchAndStoreSECFilings(context.Background(), "ORCL", "", "", Unlimited)
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	var company models.Company
	require.NoError(t, db.Where("ticker = ?", "ORCL").First(&company).Error)
	assert.Equal(t, "ORCL", company.Name)
}

func TestTask_FetchAndStoreSECFilings(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp)
	ctx := context.Background()

	ids, err := newTestTask(t, f).FetchAndStoreSECFilings(ctx, "aapl", "2015-01-01", "2025-03-01", Unlimited)
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	f.opts.Store.FlushAll(ctx)
	again, err := newTestTask(t, f).FetchAndStoreSECFilings(ctx, "AAPL", "2015-01-01", "2025-03-01", Unlimited)
	require.NoError(t, err)
	assert.Empty(t, again, "stored filings are skipped")
	assert.Equal(t, int32(2), fmp.calls.Load())

	fmp.mu.Lock()
	q := fmp.requests[0].query
	fmp.mu.Unlock()
	assert.Equal(t, "2015-01-01", q.Get("from"))
	assert.Equal(t, "2025-03-01", q.Get("to"))

	var forms []string
	require.NoError(t, db.Model(&models.PeriodRecord{}).Order("type").Pluck("type", &forms).Error)
	assert.Equal(t, []string{"10-K", "10-Q", "10-Q", "8-K"}, forms)
}

func TestTask_FetchAndStoreSECFilings_Prioritized(t *testing.T) {
	fmp := newFakeFMP(t)
	f, db := newTestFactory(t, fmp)
	ctx := context.Background()

	ids, err := newTestTask(t, f).FetchAndStoreSECFilings(ctx, "AAPL", "", "", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	var forms []string
	require.NoError(t, db.Model(&models.PeriodRecord{}).Order("type").Pluck("type", &forms).Error)
	assert.Equal(t, []string{"10-K", "8-K"}, forms)
}

func TestTask_FetchAndStoreSECFilings_ZeroBudget(t *testing.T) {
	fmp := newFakeFMP(t)
	f, _ := newTestFactory(t, fmp)

	ids, err := newTestTask(t, f).FetchAndStoreSECFilings(context.Background(), "AAPL", "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, int32(0), fmp.calls.Load())
}

func TestTask_GetStoredCompanyData(t *testing.T) {
	fmp := newFakeFMP(t)
	f, _ := newTestFactory(t, fmp)
	task := newTestTask(t, f)
	ctx := context.Background()

	data, err := task.GetStoredCompanyData(ctx, "NONE")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = task.FetchAndStoreCompanyFinancials(ctx, "AAPL", []int{2023, 2024}, []string{"annual"})
	require.NoError(t, err)

	data, err = task.GetStoredCompanyData(ctx, "aapl")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "AAPL", data.Company.Ticker)
	require.Len(t, data.Records, 6)
	assert.Equal(t, 2024, data.Records[0].Year)
}

func TestTask_Completeness(t *testing.T) {
	fmp := newFakeFMP(t)
	f, _ := newTestFactory(t, fmp)
	task := newTestTask(t, f)
	ctx := context.Background()

	_, err := task.Completeness(ctx, "AAPL", []int{2023})
	assert.ErrorIs(t, err, apperrors.ErrCompanyNotFound)

	_, err = task.FetchAndStoreCompanyFinancials(ctx, "AAPL", []int{2023}, []string{"annual"})
	require.NoError(t, err)

	report, err := task.Completeness(ctx, "AAPL", []int{2023})
	require.NoError(t, err)
	assert.True(t, report.HasCompleteFinancials)
	assert.False(t, report.HasOld10K)
	assert.False(t, report.IsComplete)
}

func TestNormalizePeriod(t *testing.T) {
	tests := map[string]string{
		"FY":     "FY",
		"annual": "FY",
		" Q2 ":   "Q2",
		"first":  "Q1",
		"FOURTH": "Q4",
		"H1":     "H1",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePeriod(in), in)
	}
}

func TestFiscalYear(t *testing.T) {
	y, ok := fiscalYear(normalize.StatementHeader{FiscalYear: "2023"})
	assert.True(t, ok)
	assert.Equal(t, 2023, y)

	y, ok = fiscalYear(normalize.StatementHeader{FiscalYear: "FY23", CalendarYear: "2022"})
	assert.True(t, ok)
	assert.Equal(t, 2022, y)

	y, ok = fiscalYear(normalize.StatementHeader{FiscalYear: "n/a", Date: "2021-12-31"})
	assert.True(t, ok)
	assert.Equal(t, 2021, y)

	_, ok = fiscalYear(normalize.StatementHeader{FiscalYear: "n/a"})
	assert.False(t, ok)
}

func TestDefaultYears(t *testing.T) {
	assert.Equal(t, []int{2024, 2023}, DefaultYears(fixedNow))
}
