package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/escrow"
	"github.com/asset-exchange/backend/internal/models"
)

// AssetRepo is the Postgres-backed asset registry.
type AssetRepo struct {
	pool *pgxpool.Pool
}

var _ escrow.ManagedRegistry = (*AssetRepo)(nil)

func NewAssetRepo(pool *pgxpool.Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

func (r *AssetRepo) Mint(ctx context.Context, asset models.AssetRef, owner string) error {
	if !asset.Valid() || owner == "" {
		return apperr.ErrInvalidIdentity
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO assets (contract, token_id, owner) VALUES ($1, $2, $3)
		ON CONFLICT (contract, token_id) DO NOTHING
	`, asset.Contract, int64(asset.TokenID), owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrAssetAlreadyListed
	}
	return nil
}

func (r *AssetRepo) OwnerOf(ctx context.Context, asset models.AssetRef) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT owner FROM assets WHERE contract = $1 AND token_id = $2`,
		asset.Contract, int64(asset.TokenID)).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.ErrAssetNotFound
	}
	return owner, err
}

func (r *AssetRepo) GetApproved(ctx context.Context, asset models.AssetRef) (string, error) {
	var approved string
	err := r.pool.QueryRow(ctx, `SELECT approved FROM assets WHERE contract = $1 AND token_id = $2`,
		asset.Contract, int64(asset.TokenID)).Scan(&approved)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.ErrAssetNotFound
	}
	return approved, err
}

func (r *AssetRepo) IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM operator_approvals WHERE owner = $1 AND operator = $2)`,
		owner, operator).Scan(&ok)
	return ok, err
}

func (r *AssetRepo) Approve(ctx context.Context, caller string, asset models.AssetRef, operator string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE assets SET approved = $4, updated_at = now()
		WHERE contract = $1 AND token_id = $2 AND owner = $3
	`, asset.Contract, int64(asset.TokenID), caller, operator)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.ownershipError(ctx, asset)
	}
	return nil
}

func (r *AssetRepo) SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error {
	if owner == "" || operator == "" {
		return apperr.ErrInvalidIdentity
	}
	if !approved {
		_, err := r.pool.Exec(ctx, `DELETE FROM operator_approvals WHERE owner = $1 AND operator = $2`, owner, operator)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO operator_approvals (owner, operator) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, owner, operator)
	return err
}

// Transfer is a compare-and-set on the owner column; it clears the per-asset
// approval in the same statement.
func (r *AssetRepo) Transfer(ctx context.Context, asset models.AssetRef, from, to string) error {
	if to == "" {
		return apperr.ErrInvalidIdentity
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE assets SET owner = $4, approved = '', updated_at = now()
		WHERE contract = $1 AND token_id = $2 AND owner = $3
	`, asset.Contract, int64(asset.TokenID), from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.ownershipError(ctx, asset)
	}
	return nil
}

// ListByOwner returns assets currently owned by owner.
func (r *AssetRepo) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.AssetRef, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT contract, token_id FROM assets WHERE owner = $1
		ORDER BY contract, token_id LIMIT $2 OFFSET $3
	`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.AssetRef, 0)
	for rows.Next() {
		var a models.AssetRef
		var tokenID int64
		if err := rows.Scan(&a.Contract, &tokenID); err != nil {
			return nil, err
		}
		a.TokenID = uint64(tokenID)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssetRepo) ownershipError(ctx context.Context, asset models.AssetRef) error {
	if _, err := r.OwnerOf(ctx, asset); err != nil {
		return err
	}
	return apperr.ErrNotOwner
}
