package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// ledgerRepo implements persistence.LedgerRepo: purchase_lots,
// transactions, dividends, taxes, fees.
type ledgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLedgerRepo constructs a PostgreSQL-backed LedgerRepo.
func NewLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.LedgerRepo {
	return &ledgerRepo{db: db, timeout: timeout}
}

func (r *ledgerRepo) InsertTransaction(ctx context.Context, tx persistence.TransactionRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, kind, symbol, qty, price, cash_delta_cents, instant, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.AccountID, tx.Kind, tx.Symbol, tx.Qty, tx.Price, tx.CashDeltaCents, tx.Instant, tx.Note)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *ledgerRepo) InsertTransactionBatch(ctx context.Context, txs []persistence.TransactionRow) error {
	if len(txs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, account_id, kind, symbol, qty, price, cash_delta_cents, instant, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction batch statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx, t.ID, t.AccountID, t.Kind, t.Symbol, t.Qty, t.Price, t.CashDeltaCents, t.Instant, t.Note); err != nil {
			return fmt.Errorf("failed to insert transaction in batch: %w", err)
		}
	}
	return tx.Commit()
}

func (r *ledgerRepo) ListTransactions(ctx context.Context, accountID int64, tr persistence.TimeRange, limit int) ([]persistence.TransactionRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.TransactionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, symbol, qty, price, cash_delta_cents, instant, note
		FROM transactions
		WHERE account_id = $1 AND instant >= $2 AND instant <= $3
		ORDER BY instant DESC
		LIMIT $4`, accountID, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, nil
}

func (r *ledgerRepo) UpsertPurchaseLot(ctx context.Context, lot persistence.PurchaseLotRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_lots (id, account_id, symbol, qty, cost_basis, acquired_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET qty = EXCLUDED.qty`,
		lot.ID, lot.AccountID, lot.Symbol, lot.Qty, lot.CostBasis, lot.AcquiredAt)
	if err != nil {
		return fmt.Errorf("failed to upsert purchase lot: %w", err)
	}
	return nil
}

func (r *ledgerRepo) ListPurchaseLots(ctx context.Context, accountID int64, symbol string) ([]persistence.PurchaseLotRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.PurchaseLotRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, symbol, qty, cost_basis, acquired_at
		FROM purchase_lots
		WHERE account_id = $1 AND symbol = $2 AND qty > 0
		ORDER BY acquired_at ASC`, accountID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase lots: %w", err)
	}
	return rows, nil
}

func (r *ledgerRepo) InsertDividend(ctx context.Context, d persistence.DividendRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dividends (account_id, symbol, gross_cents, withheld_cents, paid_at)
		VALUES ($1, $2, $3, $4, $5)`,
		d.AccountID, d.Symbol, d.GrossCents, d.WithheldCents, d.PaidAt)
	if err != nil {
		return fmt.Errorf("failed to insert dividend: %w", err)
	}
	return nil
}

func (r *ledgerRepo) ListDividends(ctx context.Context, accountID int64, tr persistence.TimeRange) ([]persistence.DividendRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.DividendRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, symbol, gross_cents, withheld_cents, paid_at
		FROM dividends
		WHERE account_id = $1 AND paid_at >= $2 AND paid_at <= $3
		ORDER BY paid_at DESC`, accountID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list dividends: %w", err)
	}
	return rows, nil
}

func (r *ledgerRepo) InsertTax(ctx context.Context, t persistence.TaxRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO taxes (account_id, kind, symbol, amount_cents, assessed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.AccountID, t.Kind, t.Symbol, t.AmountCents, t.AssessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tax: %w", err)
	}
	return nil
}

func (r *ledgerRepo) ListTaxes(ctx context.Context, accountID int64, tr persistence.TimeRange) ([]persistence.TaxRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.TaxRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, symbol, amount_cents, assessed_at
		FROM taxes
		WHERE account_id = $1 AND assessed_at >= $2 AND assessed_at <= $3
		ORDER BY assessed_at DESC`, accountID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxes: %w", err)
	}
	return rows, nil
}

func (r *ledgerRepo) InsertFee(ctx context.Context, f persistence.FeeRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fees (account_id, kind, symbol, amount_cents, assessed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		f.AccountID, f.Kind, f.Symbol, f.AmountCents, f.AssessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert fee: %w", err)
	}
	return nil
}

func (r *ledgerRepo) ListFees(ctx context.Context, accountID int64, tr persistence.TimeRange) ([]persistence.FeeRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.FeeRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, kind, symbol, amount_cents, assessed_at
		FROM fees
		WHERE account_id = $1 AND assessed_at >= $2 AND assessed_at <= $3
		ORDER BY assessed_at DESC`, accountID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list fees: %w", err)
	}
	return rows, nil
}
