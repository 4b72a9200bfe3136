// Package account defines Account and EngineState (spec §3): the
// player's portfolio/trading state and the engine-wide scalar state.
// These types are shared by internal/engine (which owns the mutation
// lock and tick loop around them), internal/corpevents,
// internal/cashevents, internal/tradegate, and internal/persistence —
// kept in their own package so none of those need to import the engine
// orchestration package itself.
package account

import (
	"time"

	"github.com/sawpanic/marketsim/internal/money"
)

// PurchaseLot is one cost-basis lot, consumed FIFO on sells unless a
// specific lot is requested (spec §4.8). Qty is a share count
// (floating-point per spec §9: "fractional shares are not supported" in
// this port, so quantities stay float64); CostBasis is per-share, in
// dollars, since price paths are inherently floating-point.
type PurchaseLot struct {
	ID          string
	Symbol      string
	Qty         float64
	CostBasis   float64
	AcquiredAt  time.Time
}

// TransactionKind tags a ledger entry.
type TransactionKind string

const (
	TxBuy              TransactionKind = "buy"
	TxSell             TransactionKind = "sell"
	TxShort            TransactionKind = "short"
	TxCover            TransactionKind = "cover"
	TxDividend         TransactionKind = "dividend"
	TxCoupon           TransactionKind = "coupon"
	TxBondMaturity     TransactionKind = "bond_maturity"
	TxFee              TransactionKind = "fee"
	TxTax              TransactionKind = "tax"
	TxLoanInterest     TransactionKind = "loan_interest"
	TxLoanPenalty      TransactionKind = "loan_penalty"
	TxMarginInterest   TransactionKind = "margin_interest"
	TxCorporateEvent   TransactionKind = "corporate_event"
	TxIndexExpense     TransactionKind = "index_expense"
)

// Transaction is an immutable, append-only ledger entry.
type Transaction struct {
	ID      string
	Kind    TransactionKind
	Symbol  string
	Qty     float64
	Price   float64
	CashDelta money.Cents // positive = cash inflow
	Instant time.Time
	Note    string
}

// ShortPosition tracks one open short position.
type ShortPosition struct {
	Symbol      string
	Qty         float64
	OpenPrice   float64
	OpenedAt    time.Time
}

// IndexHolding tracks player ownership of an index fund.
type IndexHolding struct {
	Symbol string
	Units  float64
}

// BondHolding tracks one purchased bond lot.
type BondHolding struct {
	Symbol        string
	Face          float64
	PurchasePrice float64
	PurchasedAt   time.Time
	LastCouponAt  time.Time
}

// Loan is one outstanding loan against a lender from the catalog.
type Loan struct {
	ID               string
	LenderID         string
	Principal        money.Cents
	Balance          money.Cents
	RateAnnual       float64
	OriginatedAt     time.Time
	TermDays         int
	LastInterestAt   time.Time
	MissedPayments   int
	CureDeadline     *time.Time
}

// MarginState tracks the player's margin usage.
type MarginState struct {
	BorrowedCash money.Cents
	LastAccrual  time.Time
}

// OrderSide enumerates trade directions (spec §4.8).
type OrderSide string

const (
	SideBuy   OrderSide = "buy"
	SideSell  OrderSide = "sell"
	SideShort OrderSide = "short"
	SideCover OrderSide = "cover"
)

// OrderKind distinguishes market vs limit orders.
type OrderKind string

const (
	KindMarket OrderKind = "market"
	KindLimit  OrderKind = "limit"
)

// PendingOrderStatus tracks a limit order's lifecycle.
type PendingOrderStatus string

const (
	PendingOpen    PendingOrderStatus = "open"
	PendingFilled  PendingOrderStatus = "filled"
	PendingExpired PendingOrderStatus = "expired"
	PendingCanceled PendingOrderStatus = "canceled"
)

// PendingOrder is a limit order that could not fill immediately (spec
// §4.8): re-evaluated on each price update while the market is open,
// expiring after a configurable number of game days (default 30).
type PendingOrder struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Qty        float64
	LimitPrice float64
	PlacedAt   time.Time
	ExpiresAt  time.Time
	Status     PendingOrderStatus
}

// Account is the single player's portfolio and trading state (spec §3).
type Account struct {
	Cash            money.Cents
	CreditScore     int
	Portfolio       map[string]float64 // symbol -> shares
	CostBasisLots   map[string][]PurchaseLot
	ShortPositions  map[string]*ShortPosition
	IndexHoldings   map[string]*IndexHolding
	BondHoldings    map[string][]BondHolding
	Loans           []*Loan
	MarginState     MarginState
	Transactions    []Transaction
	PendingOrders   []*PendingOrder
	LastTradeTime   time.Time
}

// NewAccount constructs an empty Account with the given starting cash, in
// dollars.
func NewAccount(startingCash float64) *Account {
	return &Account{
		Cash:           money.FromFloat(startingCash),
		CreditScore:    700,
		Portfolio:      make(map[string]float64),
		CostBasisLots:  make(map[string][]PurchaseLot),
		ShortPositions: make(map[string]*ShortPosition),
		IndexHoldings:  make(map[string]*IndexHolding),
		BondHoldings:   make(map[string][]BondHolding),
	}
}

// EngineState is the engine-wide scalar state (spec §3), persisted on
// every mutation batch.
type EngineState struct {
	CurrentInstant        time.Time
	SpeedMultiplier        int
	Paused                 bool
	LastDividendQuarter    int // quarters since epoch already processed
	LastMonthlyFeeInstant  time.Time
	LastInflationInstant   time.Time
	LastBuybackInstant     time.Time
	LastIssuanceQuarter    int
	LastRetentionRun       time.Time
	CumulativeInflation    float64
	MarketPE               float64
	RecentVolatilityEWMA   float64

	// Catch-up markers for cash-event categories spec §3 does not name
	// individually but §4.7 requires each maintain its own "last
	// processed boundary": bond coupons (semi-annual period index),
	// loan interest and margin interest (monthly indices).
	LastCouponPeriod       int
	LastLoanInterestMonth  int
	LastMarginMonth        int
	LastIndexExpenseInstant time.Time
}

// NewEngineState constructs a fresh EngineState anchored at start. The
// catch-up markers start at -1 (rather than the zero value) so that
// period index 0 is still eligible for processing on the first tick.
func NewEngineState(start time.Time) *EngineState {
	return &EngineState{
		CurrentInstant:        start,
		SpeedMultiplier:       1,
		MarketPE:              18,
		LastDividendQuarter:   -1,
		LastIssuanceQuarter:   -1,
		LastCouponPeriod:      -1,
		LastLoanInterestMonth: -1,
		LastMarginMonth:       -1,
	}
}
