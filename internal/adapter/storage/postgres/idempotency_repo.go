package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository. Rows are the
// durable copy of what the redis cache holds for a limited TTL.
type IdempotencyRepo struct {
	pool Pool
}

func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create must run in the ledger transaction that produced the response. The
// primary key turns a concurrent duplicate into domain.ErrIdempotencyKeyUsed.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO idempotency_logs (key, user_id, scope, transaction_id, response_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		log.Key, log.UserID, log.Scope, log.TransactionID, log.ResponseJSON, log.CreatedAt)
	switch {
	case isUniqueViolation(err, "idempotency_logs_pkey"):
		return domain.ErrIdempotencyKeyUsed
	case err != nil:
		return fmt.Errorf("insert idempotency log %s: %w", log.Scope, err)
	}
	return nil
}

// Get returns nil, nil for an unknown key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	var log domain.IdempotencyLog
	err := r.pool.QueryRow(ctx,
		`SELECT key, user_id, scope, transaction_id, response_json, created_at
		FROM idempotency_logs WHERE key = $1`, key).
		Scan(&log.Key, &log.UserID, &log.Scope, &log.TransactionID, &log.ResponseJSON, &log.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency log: %w", err)
	}
	return &log, nil
}

// PurgeBefore deletes logs recorded before cutoff. A purged key can be
// reused by the client as a new request.
func (r *IdempotencyRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
