package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/marketsim/internal/persistence"
)

// retentionRepo implements persistence.RetentionRepo against the
// data_retention_config singleton and executes pruning across the
// transactional tables it governs.
type retentionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRetentionRepo constructs a PostgreSQL-backed RetentionRepo.
func NewRetentionRepo(db *sqlx.DB, timeout time.Duration) persistence.RetentionRepo {
	return &retentionRepo{db: db, timeout: timeout}
}

func (r *retentionRepo) LoadConfig(ctx context.Context) (*persistence.RetentionConfigRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var cfg persistence.RetentionConfigRow
	err := r.db.GetContext(ctx, &cfg, `
		SELECT prune_interval_days, preserve_open_loans, preserve_unread_mail, preserve_unsettled_taxes
		FROM data_retention_config WHERE id = 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load data_retention_config: %w", err)
	}
	return &cfg, nil
}

func (r *retentionRepo) SaveConfig(ctx context.Context, cfg persistence.RetentionConfigRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO data_retention_config (id, prune_interval_days, preserve_open_loans, preserve_unread_mail, preserve_unsettled_taxes)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			prune_interval_days = EXCLUDED.prune_interval_days,
			preserve_open_loans = EXCLUDED.preserve_open_loans,
			preserve_unread_mail = EXCLUDED.preserve_unread_mail,
			preserve_unsettled_taxes = EXCLUDED.preserve_unsettled_taxes`,
		cfg.PruneIntervalDays, cfg.PreserveOpenLoans, cfg.PreserveUnreadMail, cfg.PreserveUnsettledTaxes)
	if err != nil {
		return fmt.Errorf("failed to save data_retention_config: %w", err)
	}
	return nil
}

// Prune removes transaction/tax/fee/dividend/read-mail rows older than
// olderThan. With PreserveOpenLoans, accounts holding a loan with no
// closed_at keep their transactions and fees; with PreserveUnsettledTaxes,
// accounts with a tax assessed after olderThan keep theirs too, and no tax
// rows are pruned at all; with PreserveUnreadMail, no mail is pruned
// (otherwise only mail already read is). Dividends are always pruned.
func (r *retentionRepo) Prune(ctx context.Context, olderThan time.Time, cfg persistence.RetentionConfigRow) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin prune transaction: %w", err)
	}
	defer tx.Rollback()

	exemptAccounts := `SELECT id FROM accounts WHERE false`
	var clauses []string
	if cfg.PreserveOpenLoans {
		clauses = append(clauses, `SELECT account_id FROM loans WHERE closed_at IS NULL`)
	}
	if cfg.PreserveUnsettledTaxes {
		clauses = append(clauses, `SELECT account_id FROM taxes WHERE assessed_at > $1`)
	}
	if len(clauses) > 0 {
		exemptAccounts = joinUnion(clauses)
	}

	var total int64

	res, err := tx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE instant < $1 AND account_id NOT IN (`+exemptAccounts+`)`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = tx.ExecContext(ctx, `
		DELETE FROM fees
		WHERE assessed_at < $1 AND account_id NOT IN (`+exemptAccounts+`)`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune fees: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	if !cfg.PreserveUnsettledTaxes {
		res, err = tx.ExecContext(ctx, `DELETE FROM taxes WHERE assessed_at < $1`, olderThan)
		if err != nil {
			return 0, fmt.Errorf("failed to prune taxes: %w", err)
		}
		n, _ = res.RowsAffected()
		total += n
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM dividends WHERE paid_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune dividends: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	if !cfg.PreserveUnreadMail {
		res, err = tx.ExecContext(ctx, `DELETE FROM mail_messages WHERE sent_at < $1 AND read_at IS NOT NULL`, olderThan)
		if err != nil {
			return 0, fmt.Errorf("failed to prune mail_messages: %w", err)
		}
		n, _ = res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune transaction: %w", err)
	}
	return total, nil
}

func joinUnion(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " UNION " + c
	}
	return out
}
