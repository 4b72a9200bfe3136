package engine

import (
	"context"
	"fmt"

	"github.com/sawpanic/marketsim/internal/account"
	"github.com/sawpanic/marketsim/internal/money"
	"github.com/sawpanic/marketsim/internal/persistence"
)

// accountID is fixed: this is a single-player simulation (spec §3), so
// every persisted row hangs off account 1.
const accountID int64 = 1

// commit writes the current EngineState and Account aggregate through
// the circuit breaker, guarding every tick and every order fill with the
// same write-ahead-before-acknowledge discipline (spec §5).
func (e *Engine) commit(ctx context.Context) error {
	_, err := e.breaker.Execute(func() (any, error) {
		if err := e.repo.Engine.Save(ctx, toEngineStateRow(e.state)); err != nil {
			return nil, err
		}
		snap := toAccountSnapshot(e.acct)
		if err := e.repo.Account.Save(ctx, snap); err != nil {
			return nil, err
		}
		if len(e.acct.Transactions) > 0 {
			rows := make([]persistence.TransactionRow, len(e.acct.Transactions))
			for i, tx := range e.acct.Transactions {
				rows[i] = toTransactionRow(tx)
			}
			if err := e.repo.Ledger.InsertTransactionBatch(ctx, rows); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func toEngineStateRow(s *account.EngineState) persistence.EngineStateRow {
	return persistence.EngineStateRow{
		CurrentInstant:          s.CurrentInstant,
		SpeedMultiplier:         s.SpeedMultiplier,
		Paused:                  s.Paused,
		LastDividendQuarter:     s.LastDividendQuarter,
		LastMonthlyFeeInstant:   s.LastMonthlyFeeInstant,
		LastInflationInstant:    s.LastInflationInstant,
		LastBuybackInstant:      s.LastBuybackInstant,
		LastIssuanceQuarter:     s.LastIssuanceQuarter,
		LastRetentionRun:        s.LastRetentionRun,
		CumulativeInflation:     s.CumulativeInflation,
		MarketPE:                s.MarketPE,
		RecentVolatilityEWMA:    s.RecentVolatilityEWMA,
		LastCouponPeriod:        s.LastCouponPeriod,
		LastLoanInterestMonth:   s.LastLoanInterestMonth,
		LastMarginMonth:         s.LastMarginMonth,
		LastIndexExpenseInstant: s.LastIndexExpenseInstant,
	}
}

func fromEngineStateRow(row persistence.EngineStateRow) *account.EngineState {
	return &account.EngineState{
		CurrentInstant:          row.CurrentInstant,
		SpeedMultiplier:         row.SpeedMultiplier,
		Paused:                  row.Paused,
		LastDividendQuarter:     row.LastDividendQuarter,
		LastMonthlyFeeInstant:   row.LastMonthlyFeeInstant,
		LastInflationInstant:    row.LastInflationInstant,
		LastBuybackInstant:      row.LastBuybackInstant,
		LastIssuanceQuarter:     row.LastIssuanceQuarter,
		LastRetentionRun:        row.LastRetentionRun,
		CumulativeInflation:     row.CumulativeInflation,
		MarketPE:                row.MarketPE,
		RecentVolatilityEWMA:    row.RecentVolatilityEWMA,
		LastCouponPeriod:        row.LastCouponPeriod,
		LastLoanInterestMonth:   row.LastLoanInterestMonth,
		LastMarginMonth:         row.LastMarginMonth,
		LastIndexExpenseInstant: row.LastIndexExpenseInstant,
	}
}

func toAccountSnapshot(a *account.Account) persistence.AccountSnapshot {
	snap := persistence.AccountSnapshot{
		Account: persistence.AccountRow{
			ID:            accountID,
			CashCents:     int64(a.Cash),
			CreditScore:   a.CreditScore,
			LastTradeTime: a.LastTradeTime,
		},
	}
	for symbol, shares := range a.Portfolio {
		snap.Portfolio = append(snap.Portfolio, persistence.PortfolioRow{
			AccountID: accountID, Symbol: symbol, Shares: shares,
		})
	}
	for symbol, h := range a.IndexHoldings {
		snap.IndexHoldings = append(snap.IndexHoldings, persistence.IndexHoldingRow{
			AccountID: accountID, Symbol: symbol, Units: h.Units,
		})
	}
	for symbol, bonds := range a.BondHoldings {
		for _, b := range bonds {
			snap.BondHoldings = append(snap.BondHoldings, persistence.BondHoldingRow{
				AccountID: accountID, Symbol: symbol, FaceCents: int64(b.Face * 100),
				PurchasePrice: b.PurchasePrice, PurchasedAt: b.PurchasedAt, LastCouponAt: b.LastCouponAt,
			})
		}
	}
	for symbol, sp := range a.ShortPositions {
		snap.ShortPositions = append(snap.ShortPositions, persistence.ShortPositionRow{
			AccountID: accountID, Symbol: symbol, Qty: sp.Qty, OpenPrice: sp.OpenPrice, OpenedAt: sp.OpenedAt,
		})
	}
	return snap
}

func fromAccountSnapshot(snap *persistence.AccountSnapshot) *account.Account {
	a := account.NewAccount(0)
	a.Cash = money.Cents(snap.Account.CashCents)
	a.CreditScore = snap.Account.CreditScore
	a.LastTradeTime = snap.Account.LastTradeTime
	for _, p := range snap.Portfolio {
		a.Portfolio[p.Symbol] = p.Shares
	}
	for _, h := range snap.IndexHoldings {
		a.IndexHoldings[h.Symbol] = &account.IndexHolding{Symbol: h.Symbol, Units: h.Units}
	}
	for _, b := range snap.BondHoldings {
		a.BondHoldings[b.Symbol] = append(a.BondHoldings[b.Symbol], account.BondHolding{
			Symbol: b.Symbol, Face: float64(b.FaceCents) / 100, PurchasePrice: b.PurchasePrice,
			PurchasedAt: b.PurchasedAt, LastCouponAt: b.LastCouponAt,
		})
	}
	for _, s := range snap.ShortPositions {
		a.ShortPositions[s.Symbol] = &account.ShortPosition{
			Symbol: s.Symbol, Qty: s.Qty, OpenPrice: s.OpenPrice, OpenedAt: s.OpenedAt,
		}
	}
	return a
}

func toTransactionRow(tx account.Transaction) persistence.TransactionRow {
	return persistence.TransactionRow{
		ID:             tx.ID,
		AccountID:      accountID,
		Kind:           string(tx.Kind),
		Symbol:         tx.Symbol,
		Qty:            tx.Qty,
		Price:          tx.Price,
		CashDeltaCents: int64(tx.CashDelta),
		Instant:        tx.Instant,
		Note:           tx.Note,
	}
}
