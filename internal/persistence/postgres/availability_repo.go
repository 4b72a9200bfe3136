package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// availabilityRepo implements persistence.AvailabilityRepo against the
// share_availability table (float outstanding/issued per symbol).
type availabilityRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAvailabilityRepo constructs a PostgreSQL-backed AvailabilityRepo.
func NewAvailabilityRepo(db *sqlx.DB, timeout time.Duration) persistence.AvailabilityRepo {
	return &availabilityRepo{db: db, timeout: timeout}
}

func (r *availabilityRepo) Save(ctx context.Context, row persistence.ShareAvailabilityRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO share_availability (symbol, shares_outstanding, shares_issued, shares_shorted, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (symbol) DO UPDATE SET
			shares_outstanding = EXCLUDED.shares_outstanding,
			shares_issued = EXCLUDED.shares_issued,
			shares_shorted = EXCLUDED.shares_shorted,
			updated_at = now()`,
		row.Symbol, row.SharesOutstanding, row.SharesIssued, row.SharesShorted)
	if err != nil {
		return fmt.Errorf("failed to save share_availability: %w", err)
	}
	return nil
}

func (r *availabilityRepo) SaveBatch(ctx context.Context, rows []persistence.ShareAvailabilityRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin share_availability batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO share_availability (symbol, shares_outstanding, shares_issued, shares_shorted, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (symbol) DO UPDATE SET
			shares_outstanding = EXCLUDED.shares_outstanding,
			shares_issued = EXCLUDED.shares_issued,
			shares_shorted = EXCLUDED.shares_shorted,
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("failed to prepare share_availability batch statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Symbol, row.SharesOutstanding, row.SharesIssued, row.SharesShorted); err != nil {
			return fmt.Errorf("failed to save share_availability row in batch: %w", err)
		}
	}
	return tx.Commit()
}

func (r *availabilityRepo) Load(ctx context.Context, symbol string) (*persistence.ShareAvailabilityRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row persistence.ShareAvailabilityRow
	err := r.db.GetContext(ctx, &row, `
		SELECT symbol, shares_outstanding, shares_issued, shares_shorted, updated_at
		FROM share_availability WHERE symbol = $1`, symbol)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load share_availability: %w", err)
	}
	return &row, nil
}

func (r *availabilityRepo) LoadAll(ctx context.Context) ([]persistence.ShareAvailabilityRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.ShareAvailabilityRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT symbol, shares_outstanding, shares_issued, shares_shorted, updated_at
		FROM share_availability ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load all share_availability: %w", err)
	}
	return rows, nil
}
