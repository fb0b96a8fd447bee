package normalize

// Kind identifies the typed shape a record was normalized into.
type Kind string

const (
	KindIncomeStatement Kind = "income-statement"
	KindBalanceSheet    Kind = "balance-sheet-statement"
	KindCashFlow        Kind = "cash-flow-statement"
	KindFiling          Kind = "sec-filing"
	KindAnnualFiling    Kind = "sec-filing-10k"
	KindQuarterlyFiling Kind = "sec-filing-10q"
	KindProfile         Kind = "profile"
)

// Record is one normalized provider item.
type Record interface {
	Kind() Kind
	// Values returns the cleaned field map the record was decoded from. It is
	// the payload persisted for the record.
	Values() map[string]any
}

// Statement is a record carrying a statement header.
type Statement interface {
	Record
	Header() StatementHeader
}

// FilingRecord is any regulatory filing variant.
type FilingRecord interface {
	Record
	FilingData() *Filing
	FormType() string
	SortDate() string
}

type payload struct {
	values map[string]any
}

func (p *payload) Values() map[string]any { return p.values }

// StatementHeader holds the fields shared by every financial statement.
type StatementHeader struct {
	Date             string `json:"date" validate:"required"`
	Symbol           string `json:"symbol" validate:"required"`
	ReportedCurrency string `json:"reportedCurrency" validate:"required"`
	CIK              string `json:"cik" validate:"required"`
	FilingDate       string `json:"filingDate" validate:"required"`
	AcceptedDate     string `json:"acceptedDate" validate:"required"`
	FiscalYear       string `json:"fiscalYear" validate:"required"`
	Period           string `json:"period" validate:"required"`
	CalendarYear     string `json:"calendarYear,omitempty"`
	Link             string `json:"link,omitempty"`
	FinalLink        string `json:"finalLink,omitempty"`
}

// IncomeStatement is one income statement period.
type IncomeStatement struct {
	payload
	StatementHeader
	Revenue                  *float64 `json:"revenue" validate:"required"`
	CostOfRevenue            *float64 `json:"costOfRevenue" validate:"required"`
	GrossProfit              *float64 `json:"grossProfit" validate:"required"`
	ResearchAndDevelopment   *float64 `json:"researchAndDevelopmentExpenses" validate:"required"`
	SellingGeneralAndAdmin   *float64 `json:"sellingGeneralAndAdministrativeExpenses" validate:"required"`
	OperatingExpenses        *float64 `json:"operatingExpenses" validate:"required"`
	OperatingIncome          *float64 `json:"operatingIncome" validate:"required"`
	InterestExpense          *float64 `json:"interestExpense" validate:"required"`
	EBITDA                   *float64 `json:"ebitda" validate:"required"`
	IncomeBeforeTax          *float64 `json:"incomeBeforeTax" validate:"required"`
	IncomeTaxExpense         *float64 `json:"incomeTaxExpense" validate:"required"`
	NetIncome                *float64 `json:"netIncome" validate:"required"`
	EPS                      *float64 `json:"eps" validate:"required"`
	EPSDiluted               *float64 `json:"epsDiluted" validate:"required"`
	WeightedAverageShsOut    *float64 `json:"weightedAverageShsOut" validate:"required"`
	WeightedAverageShsOutDil *float64 `json:"weightedAverageShsOutDil" validate:"required"`
}

func (*IncomeStatement) Kind() Kind { return KindIncomeStatement }
func (s *IncomeStatement) Header() StatementHeader { return s.StatementHeader }

// BalanceSheet is one balance sheet period.
type BalanceSheet struct {
	payload
	StatementHeader
	CashAndCashEquivalents  *float64 `json:"cashAndCashEquivalents" validate:"required"`
	ShortTermInvestments    *float64 `json:"shortTermInvestments" validate:"required"`
	NetReceivables          *float64 `json:"netReceivables" validate:"required"`
	Inventory               *float64 `json:"inventory" validate:"required"`
	TotalCurrentAssets      *float64 `json:"totalCurrentAssets" validate:"required"`
	PropertyPlantEquipment  *float64 `json:"propertyPlantEquipmentNet" validate:"required"`
	Goodwill                *float64 `json:"goodwill" validate:"required"`
	TotalAssets             *float64 `json:"totalAssets" validate:"required"`
	AccountPayables         *float64 `json:"accountPayables" validate:"required"`
	TotalCurrentLiabilities *float64 `json:"totalCurrentLiabilities" validate:"required"`
	LongTermDebt            *float64 `json:"longTermDebt" validate:"required"`
	TotalLiabilities        *float64 `json:"totalLiabilities" validate:"required"`
	RetainedEarnings        *float64 `json:"retainedEarnings" validate:"required"`
	TotalStockholdersEquity *float64 `json:"totalStockholdersEquity" validate:"required"`
	TotalEquity             *float64 `json:"totalEquity" validate:"required"`
	TotalDebt               *float64 `json:"totalDebt" validate:"required"`
	NetDebt                 *float64 `json:"netDebt" validate:"required"`
}

func (*BalanceSheet) Kind() Kind { return KindBalanceSheet }
func (s *BalanceSheet) Header() StatementHeader { return s.StatementHeader }

// CashFlowStatement is one cash flow statement period.
type CashFlowStatement struct {
	payload
	StatementHeader
	NetIncome              *float64 `json:"netIncome" validate:"required"`
	DepreciationAndAmort   *float64 `json:"depreciationAndAmortization" validate:"required"`
	StockBasedCompensation *float64 `json:"stockBasedCompensation" validate:"required"`
	ChangeInWorkingCapital *float64 `json:"changeInWorkingCapital" validate:"required"`
	NetCashFromOperations  *float64 `json:"netCashProvidedByOperatingActivities" validate:"required"`
	CapitalExpenditure     *float64 `json:"capitalExpenditure" validate:"required"`
	NetCashFromInvesting   *float64 `json:"netCashProvidedByInvestingActivities" validate:"required"`
	NetDebtIssuance        *float64 `json:"netDebtIssuance" validate:"required"`
	CommonDividendsPaid    *float64 `json:"commonDividendsPaid" validate:"required"`
	NetCashFromFinancing   *float64 `json:"netCashProvidedByFinancingActivities" validate:"required"`
	NetChangeInCash        *float64 `json:"netChangeInCash" validate:"required"`
	OperatingCashFlow      *float64 `json:"operatingCashFlow" validate:"required"`
	FreeCashFlow           *float64 `json:"freeCashFlow" validate:"required"`
}

func (*CashFlowStatement) Kind() Kind { return KindCashFlow }
func (s *CashFlowStatement) Header() StatementHeader { return s.StatementHeader }

// Filing is a regulatory filing of any form. Forms without special handling
// are returned as *Filing.
type Filing struct {
	payload
	Symbol       string `json:"symbol" validate:"required"`
	CIK          string `json:"cik" validate:"required"`
	FilingDate   string `json:"filingDate" validate:"required"`
	AcceptedDate string `json:"acceptedDate" validate:"required"`
	Form         string `json:"form" validate:"required"`
	FilingURL    string `json:"filingUrl" validate:"required"`
	ReportURL    string `json:"reportUrl,omitempty"`
	ReportDate   string `json:"reportDate,omitempty"`
	Type         string `json:"type,omitempty"`
	Period       string `json:"period,omitempty"`
	FiscalYear   string `json:"fiscalYear,omitempty"`
}

func (*Filing) Kind() Kind { return KindFiling }
func (f *Filing) FilingData() *Filing { return f }
func (f *Filing) FormType() string { return f.Form }
func (f *Filing) SortDate() string { return f.FilingDate }

// AnnualFiling is a 10-K.
type AnnualFiling struct {
	Filing
}

func (*AnnualFiling) Kind() Kind { return KindAnnualFiling }

// QuarterlyFiling is a 10-Q with the fiscal quarter it covers.
type QuarterlyFiling struct {
	Filing
	Quarter int `json:"quarter" validate:"min=1,max=4"`
}

func (*QuarterlyFiling) Kind() Kind { return KindQuarterlyFiling }

// CompanyProfile describes the company behind a ticker.
type CompanyProfile struct {
	payload
	Symbol      string   `json:"symbol" validate:"required"`
	CompanyName string   `json:"companyName" validate:"required"`
	CIK         string   `json:"cik,omitempty"`
	Exchange    string   `json:"exchange,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Sector      string   `json:"sector,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Country     string   `json:"country,omitempty"`
	Website     string   `json:"website,omitempty"`
	IPODate     string   `json:"ipoDate,omitempty"`
	MarketCap   *float64 `json:"marketCap,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Beta        *float64 `json:"beta,omitempty"`
}

func (*CompanyProfile) Kind() Kind { return KindProfile }
