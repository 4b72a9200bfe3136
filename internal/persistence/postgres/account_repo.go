package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// accountRepo implements persistence.AccountRepo: the accounts row plus
// its four holding tables, committed together inside one transaction
// (spec §5: a mutation batch is atomic).
type accountRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAccountRepo constructs a PostgreSQL-backed AccountRepo.
func NewAccountRepo(db *sqlx.DB, timeout time.Duration) persistence.AccountRepo {
	return &accountRepo{db: db, timeout: timeout}
}

func (r *accountRepo) Load(ctx context.Context, accountID int64) (*persistence.AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var snap persistence.AccountSnapshot
	err := r.db.GetContext(ctx, &snap.Account, `
		SELECT id, cash_cents, credit_score, last_trade_time, updated_at
		FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if err := r.db.SelectContext(ctx, &snap.Portfolio, `
		SELECT account_id, symbol, shares FROM portfolio WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.IndexHoldings, `
		SELECT account_id, symbol, units FROM index_holdings WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("failed to load index_holdings: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.BondHoldings, `
		SELECT id, account_id, symbol, face_cents, purchase_price, purchased_at, last_coupon_at
		FROM bond_holdings WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("failed to load bond_holdings: %w", err)
	}
	if err := r.db.SelectContext(ctx, &snap.ShortPositions, `
		SELECT account_id, symbol, qty, open_price, opened_at
		FROM short_positions WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("failed to load short_positions: %w", err)
	}

	return &snap, nil
}

// Save replaces every holding table's rows for this account and upserts
// the account row, in a single transaction.
func (r *accountRepo) Save(ctx context.Context, snap persistence.AccountSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin account save transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, cash_cents, credit_score, last_trade_time, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			cash_cents = EXCLUDED.cash_cents,
			credit_score = EXCLUDED.credit_score,
			last_trade_time = EXCLUDED.last_trade_time,
			updated_at = now()`,
		snap.Account.ID, snap.Account.CashCents, snap.Account.CreditScore, snap.Account.LastTradeTime)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio WHERE account_id = $1`, snap.Account.ID); err != nil {
		return fmt.Errorf("failed to clear portfolio: %w", err)
	}
	for _, p := range snap.Portfolio {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO portfolio (account_id, symbol, shares) VALUES ($1, $2, $3)`,
			p.AccountID, p.Symbol, p.Shares); err != nil {
			return fmt.Errorf("failed to insert portfolio row: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_holdings WHERE account_id = $1`, snap.Account.ID); err != nil {
		return fmt.Errorf("failed to clear index_holdings: %w", err)
	}
	for _, h := range snap.IndexHoldings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_holdings (account_id, symbol, units) VALUES ($1, $2, $3)`,
			h.AccountID, h.Symbol, h.Units); err != nil {
			return fmt.Errorf("failed to insert index_holdings row: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bond_holdings WHERE account_id = $1`, snap.Account.ID); err != nil {
		return fmt.Errorf("failed to clear bond_holdings: %w", err)
	}
	for _, b := range snap.BondHoldings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bond_holdings (account_id, symbol, face_cents, purchase_price, purchased_at, last_coupon_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			b.AccountID, b.Symbol, b.FaceCents, b.PurchasePrice, b.PurchasedAt, b.LastCouponAt); err != nil {
			return fmt.Errorf("failed to insert bond_holdings row: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM short_positions WHERE account_id = $1`, snap.Account.ID); err != nil {
		return fmt.Errorf("failed to clear short_positions: %w", err)
	}
	for _, s := range snap.ShortPositions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO short_positions (account_id, symbol, qty, open_price, opened_at)
			VALUES ($1, $2, $3, $4, $5)`,
			s.AccountID, s.Symbol, s.Qty, s.OpenPrice, s.OpenedAt); err != nil {
			return fmt.Errorf("failed to insert short_positions row: %w", err)
		}
	}

	return tx.Commit()
}
