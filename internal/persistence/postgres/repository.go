package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// Connect opens a PostgreSQL connection pool and bundles every repo the
// engine's mutation lock commits through into one persistence.Repository,
// mirroring the teacher's one-constructor-per-table convention.
func Connect(dsn string, queryTimeout time.Duration) (*sqlx.DB, persistence.Repository, persistence.RepositoryHealth, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, persistence.Repository{}, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	repo := persistence.Repository{
		Engine:       NewEngineRepo(db, queryTimeout),
		Account:      NewAccountRepo(db, queryTimeout),
		Ledger:       NewLedgerRepo(db, queryTimeout),
		Loans:        NewLoanRepo(db, queryTimeout),
		Events:       NewEventRepo(db, queryTimeout),
		Availability: NewAvailabilityRepo(db, queryTimeout),
		Retention:    NewRetentionRepo(db, queryTimeout),
	}
	health := NewHealthRepo(db, queryTimeout)

	return db, repo, health, nil
}
