package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/models"
)

// WalletRepo stores TON Proof nonces and the identities that proved them.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// --- Proof Payloads (nonce) ---

func (r *WalletRepo) CreateProofPayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error) {
	p := &models.TonProofPayload{Payload: generateNonce(32)}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ton_proof_payloads (payload, expires_at)
		VALUES ($1, now() + make_interval(secs => $2))
		RETURNING id, created_at, expires_at
	`, p.Payload, ttl.Seconds()).Scan(&p.ID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConsumeProofPayload marks a live nonce used. A nonce works exactly once.
func (r *WalletRepo) ConsumeProofPayload(ctx context.Context, payload string) (*models.TonProofPayload, error) {
	var p models.TonProofPayload
	err := r.pool.QueryRow(ctx, `
		UPDATE ton_proof_payloads
		SET used = true
		WHERE payload = $1 AND used = false AND expires_at > now()
		RETURNING id, payload, created_at, expires_at, used
	`, payload).Scan(&p.ID, &p.Payload, &p.CreatedAt, &p.ExpiresAt, &p.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrInvalidProof
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Identities ---

func (r *WalletRepo) UpsertIdentity(ctx context.Context, id *models.Identity) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO identities (
			address_friendly, address, network, public_key,
			proof_payload, proof_signature, proof_timestamp, proof_domain
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (address_friendly) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			proof_payload = EXCLUDED.proof_payload,
			proof_signature = EXCLUDED.proof_signature,
			proof_timestamp = EXCLUDED.proof_timestamp,
			proof_domain = EXCLUDED.proof_domain,
			last_active_at = now()
		RETURNING connected_at, last_active_at
	`, id.AddressFriendly, id.Address, id.Network, id.PublicKey,
		id.ProofPayload, id.ProofSignature, id.ProofTimestamp, id.ProofDomain,
	).Scan(&id.ConnectedAt, &id.LastActiveAt)
}

func (r *WalletRepo) GetIdentity(ctx context.Context, friendly string) (*models.Identity, error) {
	var id models.Identity
	err := r.pool.QueryRow(ctx, `
		SELECT address_friendly, address, network, public_key, connected_at, last_active_at
		FROM identities WHERE address_friendly = $1
	`, friendly).Scan(&id.AddressFriendly, &id.Address, &id.Network, &id.PublicKey, &id.ConnectedAt, &id.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrInvalidIdentity
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (r *WalletRepo) Touch(ctx context.Context, friendly string) error {
	_, err := r.pool.Exec(ctx, `UPDATE identities SET last_active_at = now() WHERE address_friendly = $1`, friendly)
	return err
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
