package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/market"
	"github.com/asset-exchange/backend/internal/models"
)

// ListingRepo implements market.Store on Postgres. The partial unique index on
// (contract, token_id) WHERE active backs the one-active-listing rule.
type ListingRepo struct {
	pool *pgxpool.Pool
}

var _ market.Store = (*ListingRepo)(nil)

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `id, contract, token_id, seller, price::text, active, status, buyer, listed_at, closed_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	var tokenID int64
	var price string
	if err := row.Scan(&l.ID, &l.Asset.Contract, &tokenID, &l.Seller, &price,
		&l.Active, &l.Status, &l.Buyer, &l.ListedAt, &l.ClosedAt); err != nil {
		return nil, err
	}
	l.Asset.TokenID = uint64(tokenID)
	p, err := parseAmount(price)
	if err != nil {
		return nil, fmt.Errorf("listing %d price: %w", l.ID, err)
	}
	l.Price = p
	return &l, nil
}

func (r *ListingRepo) InsertListing(ctx context.Context, l *models.Listing) (uint64, error) {
	var id uint64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO listings (contract, token_id, seller, price, active, status, listed_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		RETURNING id
	`, l.Asset.Contract, int64(l.Asset.TokenID), l.Seller, l.Price.Dec(), l.Active, l.Status, l.ListedAt).Scan(&id)
	if isPgCode(err, pgUniqueViolation) {
		return 0, apperr.ErrAssetAlreadyListed
	}
	if isPgCode(err, pgCheckViolation) {
		return 0, apperr.ErrInvalidPrice
	}
	return id, err
}

func (r *ListingRepo) GetListing(ctx context.Context, id uint64) (*models.Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrListingNotFound
	}
	return l, err
}

func (r *ListingRepo) ActiveListingByAsset(ctx context.Context, asset models.AssetRef) (*models.Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE contract = $1 AND token_id = $2 AND active`,
		asset.Contract, int64(asset.TokenID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrListingNotFound
	}
	return l, err
}

func (r *ListingRepo) CloseListing(ctx context.Context, id uint64, status, buyer string, closedAt int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE listings SET active = false, status = $2, buyer = $3, closed_at = $4
		WHERE id = $1 AND active
	`, id, status, buyer, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, apperr.ErrNotActive)
	}
	return nil
}

func (r *ListingRepo) ReopenListing(ctx context.Context, id uint64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE listings SET active = true, status = 'active', buyer = '', closed_at = 0
		WHERE id = $1 AND NOT active AND status <> 'settlement_failed'
	`, id)
	if isPgCode(err, pgUniqueViolation) {
		return apperr.ErrAssetAlreadyListed
	}
	return err
}

func (r *ListingRepo) FailSettlement(ctx context.Context, id uint64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE listings SET status = 'settlement_failed'
		WHERE id = $1 AND NOT active AND status = 'sold'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, apperr.ErrNotActive)
	}
	return nil
}

func (r *ListingRepo) ListListings(ctx context.Context, f market.ListFilter) ([]*models.Listing, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE ($1 = '' OR seller = $1) AND (NOT $2 OR active)
		ORDER BY id DESC LIMIT $3 OFFSET $4
	`, f.Seller, f.ActiveOnly, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *ListingRepo) missingOr(ctx context.Context, id uint64, stateErr error) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.ErrListingNotFound
	}
	return stateErr
}
