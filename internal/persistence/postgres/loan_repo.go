package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// loanRepo implements persistence.LoanRepo: loans, loan_history,
// pending_orders.
type loanRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLoanRepo constructs a PostgreSQL-backed LoanRepo.
func NewLoanRepo(db *sqlx.DB, timeout time.Duration) persistence.LoanRepo {
	return &loanRepo{db: db, timeout: timeout}
}

func (r *loanRepo) UpsertLoan(ctx context.Context, loan persistence.LoanRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loans (
			id, account_id, lender_id, principal_cents, balance_cents, rate_annual,
			originated_at, term_days, last_interest_at, missed_payments, cure_deadline, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			balance_cents = EXCLUDED.balance_cents,
			last_interest_at = EXCLUDED.last_interest_at,
			missed_payments = EXCLUDED.missed_payments,
			cure_deadline = EXCLUDED.cure_deadline,
			closed_at = EXCLUDED.closed_at`,
		loan.ID, loan.AccountID, loan.LenderID, loan.PrincipalCents, loan.BalanceCents, loan.RateAnnual,
		loan.OriginatedAt, loan.TermDays, loan.LastInterestAt, loan.MissedPayments, loan.CureDeadline, loan.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert loan: %w", err)
	}
	return nil
}

func (r *loanRepo) ListLoans(ctx context.Context, accountID int64) ([]persistence.LoanRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.LoanRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, lender_id, principal_cents, balance_cents, rate_annual,
		       originated_at, term_days, last_interest_at, missed_payments, cure_deadline, closed_at
		FROM loans WHERE account_id = $1 ORDER BY originated_at ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return rows, nil
}

func (r *loanRepo) AppendLoanHistory(ctx context.Context, ev persistence.LoanHistoryRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loan_history (loan_id, event, amount_cents, instant)
		VALUES ($1, $2, $3, $4)`,
		ev.LoanID, ev.Event, ev.AmountCents, ev.Instant)
	if err != nil {
		return fmt.Errorf("failed to append loan history: %w", err)
	}
	return nil
}

func (r *loanRepo) ListLoanHistory(ctx context.Context, loanID string) ([]persistence.LoanHistoryRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.LoanHistoryRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, loan_id, event, amount_cents, instant
		FROM loan_history WHERE loan_id = $1 ORDER BY instant ASC`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan history: %w", err)
	}
	return rows, nil
}

func (r *loanRepo) UpsertPendingOrder(ctx context.Context, o persistence.PendingOrderRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_orders (id, account_id, symbol, side, qty, limit_price, placed_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		o.ID, o.AccountID, o.Symbol, o.Side, o.Qty, o.LimitPrice, o.PlacedAt, o.ExpiresAt, o.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert pending order: %w", err)
	}
	return nil
}

func (r *loanRepo) ListPendingOrders(ctx context.Context, accountID int64, status string) ([]persistence.PendingOrderRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.PendingOrderRow
	query := `
		SELECT id, account_id, symbol, side, qty, limit_price, placed_at, expires_at, status
		FROM pending_orders WHERE account_id = $1`
	args := []interface{}{accountID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY placed_at ASC`

	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	return rows, nil
}

func (r *loanRepo) DeletePendingOrder(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pending order: %w", err)
	}
	return nil
}
