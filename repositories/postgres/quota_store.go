package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finvera/invoicing-backend/services/quota"
)

// QuotaStore persists quota attempts in the quota_attempts table. It
// implements quota.Store; admission ordering is enforced above it by the
// ledger's per-key locking.
type QuotaStore struct {
	db     *DB
	logger *zap.Logger
}

// NewQuotaStore creates a postgres-backed quota attempt store
func NewQuotaStore(db *DB, logger *zap.Logger) *QuotaStore {
	return &QuotaStore{
		db:     db,
		logger: logger,
	}
}

var _ quota.Store = (*QuotaStore)(nil)

// CountSince removes attempts older than cutoff for the key and returns
// how many remain inside the window.
func (s *QuotaStore) CountSince(ctx context.Context, key string, cutoff time.Time) (int, error) {
	executor := GetExecutor(ctx, s.db)

	deleteQuery := `DELETE FROM quota_attempts WHERE scope_key = $1 AND attempted_at < $2`
	if _, err := executor.ExecContext(ctx, deleteQuery, key, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune quota attempts: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM quota_attempts WHERE scope_key = $1 AND attempted_at >= $2`
	var count int
	if err := executor.QueryRowContext(ctx, countQuery, key, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count quota attempts: %w", err)
	}

	return count, nil
}

// Append records one attempt for the key
func (s *QuotaStore) Append(ctx context.Context, key string, ts time.Time) error {
	executor := GetExecutor(ctx, s.db)

	query := `INSERT INTO quota_attempts (scope_key, attempted_at) VALUES ($1, $2)`
	if _, err := executor.ExecContext(ctx, query, key, ts); err != nil {
		return fmt.Errorf("failed to append quota attempt: %w", err)
	}

	return nil
}

// Expire deletes attempts across all keys older than cutoff. Called by
// the ledger's cleanup worker.
func (s *QuotaStore) Expire(ctx context.Context, cutoff time.Time) (int64, error) {
	executor := GetExecutor(ctx, s.db)

	query := `DELETE FROM quota_attempts WHERE attempted_at < $1`
	result, err := executor.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire quota attempts: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		s.logger.Debug("expired quota attempts", zap.Int64("deleted", deleted))
	}

	return deleted, nil
}
