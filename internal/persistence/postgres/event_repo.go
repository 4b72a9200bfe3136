package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// eventRepo implements persistence.EventRepo: corporate_events,
// market_crash_events, stock_splits, rebalancing_events.
type eventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventRepo constructs a PostgreSQL-backed EventRepo.
func NewEventRepo(db *sqlx.DB, timeout time.Duration) persistence.EventRepo {
	return &eventRepo{db: db, timeout: timeout}
}

func (r *eventRepo) UpsertCorporateEvent(ctx context.Context, ev persistence.CorporateEventRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO corporate_events (id, kind, effective_instant, primary_symbol, status, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, applied_at = EXCLUDED.applied_at`,
		ev.ID, ev.Kind, ev.EffectiveInstant, ev.PrimarySymbol, ev.Status, ev.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert corporate event: %w", err)
	}
	return nil
}

func (r *eventRepo) ListCorporateEvents(ctx context.Context, status string) ([]persistence.CorporateEventRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.CorporateEventRow
	query := `SELECT id, kind, effective_instant, primary_symbol, status, applied_at FROM corporate_events`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY effective_instant ASC`

	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list corporate events: %w", err)
	}
	return rows, nil
}

func (r *eventRepo) UpsertCrashEvent(ctx context.Context, ev persistence.CrashEventRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_crash_events (id, scenario_id, triggered_at, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`,
		ev.ID, ev.ScenarioID, ev.TriggeredAt, ev.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert crash event: %w", err)
	}
	return nil
}

func (r *eventRepo) ListActiveCrashEvents(ctx context.Context, asOf time.Time) ([]persistence.CrashEventRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.CrashEventRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, scenario_id, triggered_at, active
		FROM market_crash_events
		WHERE active = true AND triggered_at <= $1
		ORDER BY triggered_at ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list active crash events: %w", err)
	}
	return rows, nil
}

func (r *eventRepo) InsertStockSplit(ctx context.Context, s persistence.StockSplitRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_splits (symbol, ratio, effective_instant)
		VALUES ($1, $2, $3)`,
		s.Symbol, s.Ratio, s.EffectiveInstant)
	if err != nil {
		return fmt.Errorf("failed to insert stock split: %w", err)
	}
	return nil
}

func (r *eventRepo) ListStockSplits(ctx context.Context, symbol string) ([]persistence.StockSplitRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.StockSplitRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, symbol, ratio, effective_instant
		FROM stock_splits WHERE symbol = $1 ORDER BY effective_instant ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock splits: %w", err)
	}
	return rows, nil
}

func (r *eventRepo) InsertRebalancingEvent(ctx context.Context, rv persistence.RebalancingEventRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rebalancing_events (symbol, kind, delta_pct, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		rv.Symbol, rv.Kind, rv.DeltaPct, rv.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert rebalancing event: %w", err)
	}
	return nil
}

func (r *eventRepo) ListRebalancingEvents(ctx context.Context, symbol string, tr persistence.TimeRange) ([]persistence.RebalancingEventRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.RebalancingEventRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, symbol, kind, delta_pct, occurred_at
		FROM rebalancing_events
		WHERE symbol = $1 AND occurred_at >= $2 AND occurred_at <= $3
		ORDER BY occurred_at ASC`, symbol, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list rebalancing events: %w", err)
	}
	return rows, nil
}
