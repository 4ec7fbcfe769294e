package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/models"
)

type WithdrawRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawRepo(pool *pgxpool.Pool) *WithdrawRepo {
	return &WithdrawRepo{pool: pool}
}

const withdrawalColumns = `id, identity, to_address, amount::text, status, attempts, last_error, created_at, sent_at`

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var amount string
	if err := row.Scan(&w.ID, &w.Identity, &w.ToAddress, &amount, &w.Status, &w.Attempts,
		&w.LastError, &w.CreatedAt, &w.SentAt); err != nil {
		return nil, err
	}
	a, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	w.Amount = a
	return &w, nil
}

func (r *WithdrawRepo) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO withdrawals (identity, to_address, amount, status)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at
	`, w.Identity, w.ToAddress, w.Amount.Dec(), w.Status).Scan(&w.ID, &w.CreatedAt)
}

func (r *WithdrawRepo) Get(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrWithdrawalNotFound
	}
	return w, err
}

func (r *WithdrawRepo) ListByIdentity(ctx context.Context, identity string, limit, offset int) ([]*models.Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE identity = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, identity, limit, offset)
}

// ListPending returns the oldest unsent withdrawals first.
func (r *WithdrawRepo) ListPending(ctx context.Context, limit int) ([]*models.Withdrawal, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE status = 'pending'
		ORDER BY created_at LIMIT $1`, limit)
}

func (r *WithdrawRepo) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE withdrawals SET status = 'sent', sent_at = now(), attempts = attempts + 1
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

// RecordAttemptFailure bumps attempts and flips to failed once maxAttempts is
// reached. It reports whether the withdrawal is now failed.
func (r *WithdrawRepo) RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) (bool, error) {
	var status string
	err := r.pool.QueryRow(ctx, `
		UPDATE withdrawals
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE status END
		WHERE id = $1 AND status = 'pending'
		RETURNING status
	`, id, reason, maxAttempts).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == models.WithdrawalStatusFailed, nil
}

func (r *WithdrawRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Withdrawal, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
