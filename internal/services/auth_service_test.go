package services

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/auth"
	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/rbac"
	"github.com/asset-exchange/backend/internal/ton"
)

type memIdentities struct {
	mu         sync.Mutex
	nonces     map[string]bool
	identities map[string]*models.Identity
}

func newMemIdentities() *memIdentities {
	return &memIdentities{nonces: map[string]bool{}, identities: map[string]*models.Identity{}}
}

func (m *memIdentities) CreateProofPayload(_ context.Context, _ time.Duration) (*models.TonProofPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := uuid.NewString()
	m.nonces[p] = true
	return &models.TonProofPayload{Payload: p}, nil
}

func (m *memIdentities) ConsumeProofPayload(_ context.Context, payload string) (*models.TonProofPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nonces[payload] {
		return nil, apperr.ErrInvalidProof
	}
	delete(m.nonces, payload)
	return &models.TonProofPayload{Payload: payload, Used: true}, nil
}

func (m *memIdentities) UpsertIdentity(_ context.Context, id *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.AddressFriendly] = id
	return nil
}

func (m *memIdentities) GetIdentity(_ context.Context, friendly string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[friendly]
	if !ok {
		return nil, apperr.ErrInvalidIdentity
	}
	return id, nil
}

const testDomain = "exchange.example.com"

func signLogin(t *testing.T, payload string) ton.Login {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	raw := "0:" + hex.EncodeToString(pub)
	addr, err := address.ParseRawAddr(raw)
	require.NoError(t, err)

	l := ton.Login{
		Address:   raw,
		Network:   ton.NetworkTestnet,
		PublicKey: hex.EncodeToString(pub),
		Proof: ton.Proof{
			Timestamp: time.Now().Unix(),
			Domain:    ton.ProofDomain{LengthBytes: len(testDomain), Value: testDomain},
			Payload:   payload,
		},
	}
	digest := l.Proof.Digest(addr.Workchain(), addr.Data())
	l.Proof.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, digest[:]))
	return l
}

func newAuthService(store IdentityStore, owner string) *AuthService {
	cfg := &config.Config{
		TONNetwork:             "testnet",
		TONProofAllowedDomains: []string{testDomain},
		JWTSecret:              "test-secret",
		JWTExpiration:          time.Hour,
		ProofTTL:               time.Minute,
		MarketplaceOwner:       owner,
	}
	return NewAuthService(store, &fakeAudit{}, cfg, zap.NewNop())
}

func TestAuthService_Login(t *testing.T) {
	store := newMemIdentities()
	svc := newAuthService(store, "")
	ctx := context.Background()

	nonce, err := svc.GeneratePayload(ctx)
	require.NoError(t, err)

	res, err := svc.Login(ctx, signLogin(t, nonce))
	require.NoError(t, err)
	require.Equal(t, rbac.RoleMember, res.Role)

	claims, err := auth.ParseJWT("test-secret", res.Token)
	require.NoError(t, err)
	require.Equal(t, res.Identity.AddressFriendly, claims.Identity)

	me, role, err := svc.Me(ctx, claims.Identity)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleMember, role)
	require.Equal(t, res.Identity.Address, me.Address)
}

func TestAuthService_NonceIsSingleUse(t *testing.T) {
	store := newMemIdentities()
	svc := newAuthService(store, "")
	ctx := context.Background()

	nonce, err := svc.GeneratePayload(ctx)
	require.NoError(t, err)
	login := signLogin(t, nonce)

	_, err = svc.Login(ctx, login)
	require.NoError(t, err)
	_, err = svc.Login(ctx, login)
	require.ErrorIs(t, err, apperr.ErrInvalidProof)
}

func TestAuthService_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("network mismatch", func(t *testing.T) {
		store := newMemIdentities()
		svc := newAuthService(store, "")
		nonce, _ := svc.GeneratePayload(ctx)
		login := signLogin(t, nonce)
		login.Network = ton.NetworkMainnet
		_, err := svc.Login(ctx, login)
		require.ErrorIs(t, err, apperr.ErrInvalidProof)
	})

	t.Run("tampered payload", func(t *testing.T) {
		store := newMemIdentities()
		svc := newAuthService(store, "")
		nonce, _ := svc.GeneratePayload(ctx)
		other, _ := svc.GeneratePayload(ctx)
		login := signLogin(t, nonce)
		login.Proof.Payload = other
		_, err := svc.Login(ctx, login)
		require.ErrorIs(t, err, apperr.ErrInvalidProof)
	})
}

func TestAuthService_OwnerRole(t *testing.T) {
	store := newMemIdentities()
	ctx := context.Background()

	issuer := newAuthService(store, "")
	nonce, _ := issuer.GeneratePayload(ctx)
	login := signLogin(t, nonce)
	friendly, err := ton.FriendlyAddress(login.Address, ton.NetworkTestnet)
	require.NoError(t, err)

	svc := newAuthService(store, friendly)
	res, err := svc.Login(ctx, login)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleOwner, res.Role)
}
