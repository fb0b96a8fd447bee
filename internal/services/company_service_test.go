package services

import (
	"context"
	"sync"
	"testing"

	"finsight/internal/models"
	"finsight/internal/pagination"
	"finsight/internal/testutil"
)

func newCompanyService(t *testing.T) (CompanyServicer, FinancialDataServicer, func()) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	records := NewFinancialDataService(db, nil)
	return NewCompanyService(db, records), records, func() { testutil.TeardownTestDB(t, db) }
}

func TestEnsureCompany(t *testing.T) {
	ctx := context.Background()

	t.Run("creates_then_reuses", func(t *testing.T) {
		svc, _, done := newCompanyService(t)
		defer done()

		first, created, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: " aapl ", Name: "Apple Inc.", Sector: "Technology"})
		testutil.AssertNoError(t, err)
		if !created {
			t.Error("expected first call to create the company")
		}
		if first.Ticker != "AAPL" {
			t.Errorf("expected ticker AAPL, got %s", first.Ticker)
		}

		second, created, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "AAPL"})
		testutil.AssertNoError(t, err)
		if created {
			t.Error("expected second call to reuse the company")
		}
		if second.ID != first.ID {
			t.Errorf("expected same ID, got %s and %s", first.ID, second.ID)
		}
		if second.Name != "Apple Inc." {
			t.Errorf("expected stored name to be kept, got %s", second.Name)
		}
	})

	t.Run("name_defaults_to_ticker", func(t *testing.T) {
		svc, _, done := newCompanyService(t)
		defer done()

		c, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "MSFT"})
		testutil.AssertNoError(t, err)
		if c.Name != "MSFT" {
			t.Errorf("expected name MSFT, got %s", c.Name)
		}
	})

	t.Run("empty_ticker", func(t *testing.T) {
		svc, _, done := newCompanyService(t)
		defer done()

		_, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "  "})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("concurrent_first_sighting", func(t *testing.T) {
		svc, _, done := newCompanyService(t)
		defer done()

		ids := make([]string, 6)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "NVDA"})
				if err != nil {
					t.Errorf("ensure %d: %v", i, err)
					return
				}
				ids[i] = c.ID
			}(i)
		}
		wg.Wait()

		for _, id := range ids[1:] {
			if id != ids[0] {
				t.Fatalf("expected one company, got IDs %v", ids)
			}
		}
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _, done := newCompanyService(t)
	defer done()

	c, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "AMD"})
	testutil.AssertNoError(t, err)

	updated, err := svc.UpdateProfile(ctx, c.ID, CompanyInput{Name: "Advanced Micro Devices", Industry: "Semiconductors"})
	testutil.AssertNoError(t, err)
	if updated.Name != "Advanced Micro Devices" || updated.Industry != "Semiconductors" {
		t.Errorf("unexpected profile: %+v", updated)
	}

	_, err = svc.UpdateProfile(ctx, "0190d6b3-0000-7000-8000-000000000000", CompanyInput{Name: "x"})
	testutil.AssertAppError(t, err, "COMPANY_NOT_FOUND")
}

func TestGetCompanyByTicker(t *testing.T) {
	ctx := context.Background()
	svc, _, done := newCompanyService(t)
	defer done()

	_, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "GOOG"})
	testutil.AssertNoError(t, err)

	c, err := svc.GetCompanyByTicker(ctx, "goog")
	testutil.AssertNoError(t, err)
	if c.Ticker != "GOOG" {
		t.Errorf("expected GOOG, got %s", c.Ticker)
	}

	_, err = svc.GetCompanyByTicker(ctx, "NOPE")
	testutil.AssertAppError(t, err, "COMPANY_NOT_FOUND")
}

func TestListCompanies(t *testing.T) {
	ctx := context.Background()
	svc, _, done := newCompanyService(t)
	defer done()

	for _, ticker := range []string{"MSFT", "AAPL", "NVDA"} {
		_, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: ticker})
		testutil.AssertNoError(t, err)
	}

	page, err := svc.ListCompanies(ctx, pagination.PageRequest{Page: 1, PageSize: 2})
	testutil.AssertNoError(t, err)
	if page.TotalItems != 3 || page.TotalPages != 2 {
		t.Errorf("expected 3 items over 2 pages, got %d over %d", page.TotalItems, page.TotalPages)
	}
	if len(page.Data) != 2 || page.Data[0].Ticker != "AAPL" {
		t.Errorf("expected AAPL first, got %+v", page.Data)
	}
}

func TestGetStoredCompanyData(t *testing.T) {
	ctx := context.Background()
	svc, records, done := newCompanyService(t)
	defer done()

	c, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: "X"})
	testutil.AssertNoError(t, err)
	for _, st := range models.StatementTypes {
		_, err := records.StoreFinancialData(ctx, c.ID, 2023, models.PeriodFY, st, map[string]any{}, true)
		testutil.AssertNoError(t, err)
	}

	data, err := svc.GetStoredCompanyData(ctx, "X", RecordFilter{})
	testutil.AssertNoError(t, err)
	if data.Company.ID != c.ID {
		t.Errorf("expected company %s, got %s", c.ID, data.Company.ID)
	}
	if len(data.Records) != 3 {
		t.Errorf("expected 3 records, got %d", len(data.Records))
	}

	_, err = svc.GetStoredCompanyData(ctx, "Y", RecordFilter{})
	testutil.AssertAppError(t, err, "COMPANY_NOT_FOUND")
}

func TestListCompanies_Sorted(t *testing.T) {
	ctx := context.Background()
	svc, _, done := newCompanyService(t)
	defer done()

	for _, ticker := range []string{"MSFT", "AAPL", "NVDA"} {
		_, _, err := svc.EnsureCompany(ctx, CompanyInput{Ticker: ticker})
		testutil.AssertNoError(t, err)
	}

	page, err := svc.ListCompanies(ctx, pagination.PageRequest{Sort: "-ticker"})
	testutil.AssertNoError(t, err)
	if page.PageSize != pagination.DefaultPageSize {
		t.Errorf("expected default page size, got %d", page.PageSize)
	}
	if len(page.Data) != 3 || page.Data[0].Ticker != "NVDA" || page.Data[2].Ticker != "AAPL" {
		t.Errorf("expected descending tickers, got %+v", page.Data)
	}
}
