package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// healthRepo implements persistence.RepositoryHealth against the
// underlying *sql.DB connection pool.
type healthRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHealthRepo constructs a PostgreSQL-backed RepositoryHealth.
func NewHealthRepo(db *sqlx.DB, timeout time.Duration) persistence.RepositoryHealth {
	return &healthRepo{db: db, timeout: timeout}
}

func (r *healthRepo) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()
	hc := persistence.HealthCheck{
		ConnectionPool: map[string]int{},
		LastCheck:      start,
	}

	if err := r.Ping(ctx); err != nil {
		hc.Healthy = false
		hc.Errors = append(hc.Errors, err.Error())
	} else {
		hc.Healthy = true
	}

	stats := r.db.Stats()
	hc.ConnectionPool["open"] = stats.OpenConnections
	hc.ConnectionPool["in_use"] = stats.InUse
	hc.ConnectionPool["idle"] = stats.Idle
	hc.ResponseTimeMS = time.Since(start).Milliseconds()
	return hc
}

func (r *healthRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *healthRepo) Stats(ctx context.Context) map[string]interface{} {
	stats := r.db.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}
