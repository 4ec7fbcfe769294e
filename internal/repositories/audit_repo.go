package repositories

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/models"
)

const (
	auditColumns      = `id, actor_id, actor_type, action, entity_type, entity_id, meta, created_at`
	defaultAuditLimit = 50
)

// AuditRepo is append-only; rows are never updated.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActorID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	return err
}

// GetByEntity returns the trail of one listing, proposal or treasury account, newest first.
func (r *AuditRepo) GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	return r.query(ctx, `WHERE entity_type = $1 AND entity_id = $2`, limit, offset, entityType, entityID)
}

// ListByActor returns what one identity did on the exchange.
func (r *AuditRepo) ListByActor(ctx context.Context, actor string, limit, offset int) ([]models.AuditLog, error) {
	return r.query(ctx, `WHERE actor_id = $1`, limit, offset, actor)
}

func (r *AuditRepo) query(ctx context.Context, where string, limit, offset int, args ...any) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	n := len(args)
	args = append(args, limit, offset)
	sql := `SELECT ` + auditColumns + ` FROM audit_log ` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AuditLog, error) {
		var l models.AuditLog
		err := row.Scan(&l.ID, &l.ActorID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt)
		return l, err
	})
}
