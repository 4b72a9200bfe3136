package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// engineRepo implements persistence.EngineRepo against the engine_state
// singleton table.
type engineRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEngineRepo constructs a PostgreSQL-backed EngineRepo.
func NewEngineRepo(db *sqlx.DB, timeout time.Duration) persistence.EngineRepo {
	return &engineRepo{db: db, timeout: timeout}
}

func (r *engineRepo) Load(ctx context.Context) (*persistence.EngineStateRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row persistence.EngineStateRow
	err := r.db.GetContext(ctx, &row, `
		SELECT current_instant, speed_multiplier, paused, last_dividend_quarter,
		       last_monthly_fee_instant, last_inflation_instant, last_buyback_instant,
		       last_issuance_quarter, last_retention_run, cumulative_inflation,
		       market_pe, recent_volatility_ewma, last_coupon_period,
		       last_loan_interest_month, last_margin_month, last_index_expense_instant,
		       updated_at
		FROM engine_state
		WHERE id = 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load engine_state: %w", err)
	}
	return &row, nil
}

func (r *engineRepo) Save(ctx context.Context, row persistence.EngineStateRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engine_state (
			id, current_instant, speed_multiplier, paused, last_dividend_quarter,
			last_monthly_fee_instant, last_inflation_instant, last_buyback_instant,
			last_issuance_quarter, last_retention_run, cumulative_inflation,
			market_pe, recent_volatility_ewma, last_coupon_period,
			last_loan_interest_month, last_margin_month, last_index_expense_instant,
			updated_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now()
		)
		ON CONFLICT (id) DO UPDATE SET
			current_instant = EXCLUDED.current_instant,
			speed_multiplier = EXCLUDED.speed_multiplier,
			paused = EXCLUDED.paused,
			last_dividend_quarter = EXCLUDED.last_dividend_quarter,
			last_monthly_fee_instant = EXCLUDED.last_monthly_fee_instant,
			last_inflation_instant = EXCLUDED.last_inflation_instant,
			last_buyback_instant = EXCLUDED.last_buyback_instant,
			last_issuance_quarter = EXCLUDED.last_issuance_quarter,
			last_retention_run = EXCLUDED.last_retention_run,
			cumulative_inflation = EXCLUDED.cumulative_inflation,
			market_pe = EXCLUDED.market_pe,
			recent_volatility_ewma = EXCLUDED.recent_volatility_ewma,
			last_coupon_period = EXCLUDED.last_coupon_period,
			last_loan_interest_month = EXCLUDED.last_loan_interest_month,
			last_margin_month = EXCLUDED.last_margin_month,
			last_index_expense_instant = EXCLUDED.last_index_expense_instant,
			updated_at = now()`,
		row.CurrentInstant, row.SpeedMultiplier, row.Paused, row.LastDividendQuarter,
		row.LastMonthlyFeeInstant, row.LastInflationInstant, row.LastBuybackInstant,
		row.LastIssuanceQuarter, row.LastRetentionRun, row.CumulativeInflation,
		row.MarketPE, row.RecentVolatilityEWMA, row.LastCouponPeriod,
		row.LastLoanInterestMonth, row.LastMarginMonth, row.LastIndexExpenseInstant)
	if err != nil {
		return fmt.Errorf("failed to save engine_state: %w", err)
	}
	return nil
}
