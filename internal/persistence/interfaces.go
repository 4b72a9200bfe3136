// Package persistence defines the repository interfaces the engine's
// mutation lock (internal/engine) commits through on every mutation
// batch (spec §5's write-ahead semantics: a batch is durable before the
// caller is acknowledged). Row types here are the storage-facing mirror
// of internal/account's in-memory types — kept separate so the account
// package never imports database/sql tags.
package persistence

import (
	"context"
	"time"
)

// TimeRange bounds a query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// EngineStateRow is the engine_state singleton row.
type EngineStateRow struct {
	CurrentInstant          time.Time `db:"current_instant"`
	SpeedMultiplier         int       `db:"speed_multiplier"`
	Paused                  bool      `db:"paused"`
	LastDividendQuarter     int       `db:"last_dividend_quarter"`
	LastMonthlyFeeInstant   time.Time `db:"last_monthly_fee_instant"`
	LastInflationInstant    time.Time `db:"last_inflation_instant"`
	LastBuybackInstant      time.Time `db:"last_buyback_instant"`
	LastIssuanceQuarter     int       `db:"last_issuance_quarter"`
	LastRetentionRun        time.Time `db:"last_retention_run"`
	CumulativeInflation     float64   `db:"cumulative_inflation"`
	MarketPE                float64   `db:"market_pe"`
	RecentVolatilityEWMA    float64   `db:"recent_volatility_ewma"`
	LastCouponPeriod        int       `db:"last_coupon_period"`
	LastLoanInterestMonth   int       `db:"last_loan_interest_month"`
	LastMarginMonth         int       `db:"last_margin_month"`
	LastIndexExpenseInstant time.Time `db:"last_index_expense_instant"`
	UpdatedAt               time.Time `db:"updated_at"`
}

// EngineRepo persists the singleton engine_state row.
type EngineRepo interface {
	// Load returns the current engine_state row, or nil if never seeded.
	Load(ctx context.Context) (*EngineStateRow, error)
	// Save upserts the singleton row.
	Save(ctx context.Context, row EngineStateRow) error
}

// AccountRow is the accounts singleton row (one player per instance).
type AccountRow struct {
	ID            int64     `db:"id"`
	CashCents     int64     `db:"cash_cents"`
	CreditScore   int       `db:"credit_score"`
	LastTradeTime time.Time `db:"last_trade_time"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// PortfolioRow is one symbol -> shares entry.
type PortfolioRow struct {
	AccountID int64   `db:"account_id"`
	Symbol    string  `db:"symbol"`
	Shares    float64 `db:"shares"`
}

// IndexHoldingRow is one index-fund holding.
type IndexHoldingRow struct {
	AccountID int64   `db:"account_id"`
	Symbol    string  `db:"symbol"`
	Units     float64 `db:"units"`
}

// BondHoldingRow is one purchased bond lot.
type BondHoldingRow struct {
	ID            int64     `db:"id"`
	AccountID     int64     `db:"account_id"`
	Symbol        string    `db:"symbol"`
	FaceCents     int64     `db:"face_cents"`
	PurchasePrice float64   `db:"purchase_price"`
	PurchasedAt   time.Time `db:"purchased_at"`
	LastCouponAt  time.Time `db:"last_coupon_at"`
}

// ShortPositionRow is one open short position.
type ShortPositionRow struct {
	AccountID int64     `db:"account_id"`
	Symbol    string    `db:"symbol"`
	Qty       float64   `db:"qty"`
	OpenPrice float64   `db:"open_price"`
	OpenedAt  time.Time `db:"opened_at"`
}

// AccountSnapshot bundles the whole single-player account aggregate, as
// committed atomically each mutation batch.
type AccountSnapshot struct {
	Account        AccountRow
	Portfolio      []PortfolioRow
	IndexHoldings  []IndexHoldingRow
	BondHoldings   []BondHoldingRow
	ShortPositions []ShortPositionRow
}

// AccountRepo persists the accounts/portfolio/index_holdings/
// bond_holdings/short_positions tables as one atomically-committed
// aggregate.
type AccountRepo interface {
	// Load returns the full account snapshot, or nil if never seeded.
	Load(ctx context.Context, accountID int64) (*AccountSnapshot, error)
	// Save replaces the holdings tables and upserts the account row,
	// inside one transaction (spec §5: a mutation batch is atomic).
	Save(ctx context.Context, snap AccountSnapshot) error
}

// PurchaseLotRow is one FIFO cost-basis lot.
type PurchaseLotRow struct {
	ID            string    `db:"id"`
	AccountID     int64     `db:"account_id"`
	Symbol        string    `db:"symbol"`
	Qty           float64   `db:"qty"`
	CostBasis     float64   `db:"cost_basis"`
	AcquiredAt    time.Time `db:"acquired_at"`
}

// TransactionRow is one append-only ledger entry.
type TransactionRow struct {
	ID            string    `db:"id"`
	AccountID     int64     `db:"account_id"`
	Kind          string    `db:"kind"`
	Symbol        string    `db:"symbol"`
	Qty           float64   `db:"qty"`
	Price         float64   `db:"price"`
	CashDeltaCents int64    `db:"cash_delta_cents"`
	Instant       time.Time `db:"instant"`
	Note          string    `db:"note"`
}

// DividendRow is one paid dividend, mirroring the `dividends` table spec
// §9 names separately from the general transaction log (for
// per-symbol/per-year dividend reporting without scanning transactions).
type DividendRow struct {
	ID           int64     `db:"id"`
	AccountID    int64     `db:"account_id"`
	Symbol       string    `db:"symbol"`
	GrossCents   int64     `db:"gross_cents"`
	WithheldCents int64    `db:"withheld_cents"`
	PaidAt       time.Time `db:"paid_at"`
}

// TaxRow is one assessed tax (withholding or capital gains).
type TaxRow struct {
	ID          int64     `db:"id"`
	AccountID   int64     `db:"account_id"`
	Kind        string    `db:"kind"` // "dividend_withholding" | "capital_gains_short" | "capital_gains_long"
	Symbol      string    `db:"symbol"`
	AmountCents int64     `db:"amount_cents"`
	AssessedAt  time.Time `db:"assessed_at"`
}

// FeeRow is one assessed fee (trading, monthly, index expense).
type FeeRow struct {
	ID          int64     `db:"id"`
	AccountID   int64     `db:"account_id"`
	Kind        string    `db:"kind"`
	Symbol      string    `db:"symbol"`
	AmountCents int64     `db:"amount_cents"`
	AssessedAt  time.Time `db:"assessed_at"`
}

// LedgerRepo persists purchase_lots, transactions, dividends, taxes, and
// fees. Every Insert* call is part of the same mutation-batch transaction
// the caller (internal/engine) wraps around the whole commit.
type LedgerRepo interface {
	InsertTransaction(ctx context.Context, tx TransactionRow) error
	InsertTransactionBatch(ctx context.Context, txs []TransactionRow) error
	ListTransactions(ctx context.Context, accountID int64, tr TimeRange, limit int) ([]TransactionRow, error)

	UpsertPurchaseLot(ctx context.Context, lot PurchaseLotRow) error
	ListPurchaseLots(ctx context.Context, accountID int64, symbol string) ([]PurchaseLotRow, error)

	InsertDividend(ctx context.Context, d DividendRow) error
	ListDividends(ctx context.Context, accountID int64, tr TimeRange) ([]DividendRow, error)

	InsertTax(ctx context.Context, t TaxRow) error
	ListTaxes(ctx context.Context, accountID int64, tr TimeRange) ([]TaxRow, error)

	InsertFee(ctx context.Context, f FeeRow) error
	ListFees(ctx context.Context, accountID int64, tr TimeRange) ([]FeeRow, error)
}

// LoanRow is one outstanding or closed loan.
type LoanRow struct {
	ID               string     `db:"id"`
	AccountID        int64      `db:"account_id"`
	LenderID         string     `db:"lender_id"`
	PrincipalCents   int64      `db:"principal_cents"`
	BalanceCents     int64      `db:"balance_cents"`
	RateAnnual       float64    `db:"rate_annual"`
	OriginatedAt     time.Time  `db:"originated_at"`
	TermDays         int        `db:"term_days"`
	LastInterestAt   time.Time  `db:"last_interest_at"`
	MissedPayments   int        `db:"missed_payments"`
	CureDeadline     *time.Time `db:"cure_deadline"`
	ClosedAt         *time.Time `db:"closed_at"`
}

// LoanHistoryRow is one immutable loan lifecycle event (originated,
// interest accrued, payment missed, cured, defaulted, paid off).
type LoanHistoryRow struct {
	ID        int64     `db:"id"`
	LoanID    string    `db:"loan_id"`
	Event     string    `db:"event"`
	AmountCents int64   `db:"amount_cents"`
	Instant   time.Time `db:"instant"`
}

// PendingOrderRow is one not-yet-filled limit order.
type PendingOrderRow struct {
	ID         string    `db:"id"`
	AccountID  int64     `db:"account_id"`
	Symbol     string    `db:"symbol"`
	Side       string    `db:"side"`
	Qty        float64   `db:"qty"`
	LimitPrice float64   `db:"limit_price"`
	PlacedAt   time.Time `db:"placed_at"`
	ExpiresAt  time.Time `db:"expires_at"`
	Status     string    `db:"status"`
}

// LoanRepo persists loans, loan_history, and pending_orders.
type LoanRepo interface {
	UpsertLoan(ctx context.Context, loan LoanRow) error
	ListLoans(ctx context.Context, accountID int64) ([]LoanRow, error)
	AppendLoanHistory(ctx context.Context, ev LoanHistoryRow) error
	ListLoanHistory(ctx context.Context, loanID string) ([]LoanHistoryRow, error)

	UpsertPendingOrder(ctx context.Context, o PendingOrderRow) error
	ListPendingOrders(ctx context.Context, accountID int64, status string) ([]PendingOrderRow, error)
	DeletePendingOrder(ctx context.Context, id string) error
}

// CorporateEventRow mirrors refdata.CorporateEvent's persisted status.
type CorporateEventRow struct {
	ID               string    `db:"id"`
	Kind             string    `db:"kind"`
	EffectiveInstant time.Time `db:"effective_instant"`
	PrimarySymbol    string    `db:"primary_symbol"`
	Status           string    `db:"status"`
	AppliedAt        *time.Time `db:"applied_at"`
}

// CrashEventRow mirrors a crash scenario's activation window.
type CrashEventRow struct {
	ID          string    `db:"id"`
	ScenarioID  string    `db:"scenario_id"`
	TriggeredAt time.Time `db:"triggered_at"`
	Active      bool      `db:"active"`
}

// StockSplitRow is a denormalized, query-friendly record of every applied
// split (a subset of corporate_events, kept separate per spec §9's table
// list for fast "split history for symbol X" lookups).
type StockSplitRow struct {
	ID               int64     `db:"id"`
	Symbol           string    `db:"symbol"`
	Ratio            float64   `db:"ratio"`
	EffectiveInstant time.Time `db:"effective_instant"`
}

// RebalancingEventRow records one buyback/issuance cycle outcome.
type RebalancingEventRow struct {
	ID         int64     `db:"id"`
	Symbol     string    `db:"symbol"`
	Kind       string    `db:"kind"` // "buyback" | "issuance"
	DeltaPct   float64   `db:"delta_pct"`
	OccurredAt time.Time `db:"occurred_at"`
}

// EventRepo persists corporate_events, market_crash_events, stock_splits,
// and rebalancing_events.
type EventRepo interface {
	UpsertCorporateEvent(ctx context.Context, ev CorporateEventRow) error
	ListCorporateEvents(ctx context.Context, status string) ([]CorporateEventRow, error)

	UpsertCrashEvent(ctx context.Context, ev CrashEventRow) error
	ListActiveCrashEvents(ctx context.Context, asOf time.Time) ([]CrashEventRow, error)

	InsertStockSplit(ctx context.Context, s StockSplitRow) error
	ListStockSplits(ctx context.Context, symbol string) ([]StockSplitRow, error)

	InsertRebalancingEvent(ctx context.Context, r RebalancingEventRow) error
	ListRebalancingEvents(ctx context.Context, symbol string, tr TimeRange) ([]RebalancingEventRow, error)
}

// ShareAvailabilityRow mirrors one symbol's availability.Counts.
type ShareAvailabilityRow struct {
	Symbol              string  `db:"symbol"`
	TotalOutstanding     float64 `db:"total_outstanding"`
	PublicFloat          float64 `db:"public_float"`
	AvailableForTrading  float64 `db:"available_for_trading"`
	PlayerOwned          float64 `db:"player_owned"`
}

// AvailabilityRepo persists share_availability, one row per symbol.
type AvailabilityRepo interface {
	Save(ctx context.Context, row ShareAvailabilityRow) error
	SaveBatch(ctx context.Context, rows []ShareAvailabilityRow) error
	Load(ctx context.Context, symbol string) (*ShareAvailabilityRow, error)
	LoadAll(ctx context.Context) ([]ShareAvailabilityRow, error)
}

// RetentionConfigRow is the data_retention_config singleton row (spec
// §5's "configurable schedule, default monthly" pruning policy).
type RetentionConfigRow struct {
	PruneIntervalDays int  `db:"prune_interval_days"`
	PreserveOpenLoans bool `db:"preserve_open_loans"`
	PreserveUnreadMail bool `db:"preserve_unread_mail"`
	PreserveUnsettledTaxes bool `db:"preserve_unsettled_taxes"`
}

// RetentionRepo persists data_retention_config and executes pruning.
type RetentionRepo interface {
	LoadConfig(ctx context.Context) (*RetentionConfigRow, error)
	SaveConfig(ctx context.Context, cfg RetentionConfigRow) error
	// Prune deletes records older than olderThan, excepting whatever the
	// config marks as business-critical (spec §5). Returns the number of
	// rows removed, for logging.
	Prune(ctx context.Context, olderThan time.Time, cfg RetentionConfigRow) (int64, error)
}

// Repository aggregates every repo the engine's mutation lock commits
// through, mirroring the teacher's `persistence.Repository{Trades,
// Regimes, Premove}` bundling shape.
type Repository struct {
	Engine       EngineRepo
	Account      AccountRepo
	Ledger       LedgerRepo
	Loans        LoanRepo
	Events       EventRepo
	Availability AvailabilityRepo
	Retention    RetentionRepo
}

// HealthCheck reports persistence-layer health for the HTTP boundary.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth exposes connectivity/pool diagnostics independent of
// any single repo.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}
