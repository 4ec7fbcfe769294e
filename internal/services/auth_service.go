package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/auth"
	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/rbac"
	"github.com/asset-exchange/backend/internal/ton"
)

// IdentityStore is satisfied by repositories.WalletRepo.
type IdentityStore interface {
	CreateProofPayload(ctx context.Context, ttl time.Duration) (*models.TonProofPayload, error)
	ConsumeProofPayload(ctx context.Context, payload string) (*models.TonProofPayload, error)
	UpsertIdentity(ctx context.Context, id *models.Identity) error
	GetIdentity(ctx context.Context, friendly string) (*models.Identity, error)
}

// AuthService logs wallets in with TON Proof and issues identity JWTs.
type AuthService struct {
	store IdentityStore
	audit AuditLogger
	cfg   *config.Config
	log   *zap.Logger
	now   func() time.Time
}

func NewAuthService(store IdentityStore, audit AuditLogger, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{store: store, audit: audit, cfg: cfg, log: log, now: time.Now}
}

type LoginResult struct {
	Token    string           `json:"token"`
	Identity *models.Identity `json:"identity"`
	Role     string           `json:"role"`
}

// GeneratePayload создаёт nonce для TON Proof.
// Клиент передаёт его в tonconnect при подключении кошелька.
func (s *AuthService) GeneratePayload(ctx context.Context) (string, error) {
	p, err := s.store.CreateProofPayload(ctx, s.cfg.ProofTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p.Payload, nil
}

// Login проверяет TON Proof и выдаёт JWT, с friendly адресом в subject.
func (s *AuthService) Login(ctx context.Context, req ton.Login) (*LoginResult, error) {
	// 1. Сеть должна совпадать с сетью биржи
	if want := s.expectedNetwork(); req.Network != "" && req.Network != want {
		return nil, fmt.Errorf("%w: network mismatch: expected %s, got %s", apperr.ErrInvalidProof, want, req.Network)
	}

	// 2. Consume payload (nonce), защита от replay
	if _, err := s.store.ConsumeProofPayload(ctx, req.Proof.Payload); err != nil {
		return nil, fmt.Errorf("%w: invalid or expired nonce: %w", apperr.ErrInvalidProof, err)
	}

	// 3. Подпись
	if err := ton.VerifyProof(req, s.cfg.TONProofAllowedDomains, s.now()); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidProof, err)
	}

	friendly, err := ton.FriendlyAddress(req.Address, s.expectedNetwork())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidProof, err)
	}

	identity := &models.Identity{
		Address:         req.Address,
		AddressFriendly: friendly,
		Network:         s.cfg.TONNetwork,
		PublicKey:       req.PublicKey,
		ProofPayload:    req.Proof.Payload,
		ProofSignature:  req.Proof.Signature,
		ProofTimestamp:  req.Proof.Timestamp,
		ProofDomain:     req.Proof.Domain.Value,
	}
	if err := s.store.UpsertIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to save identity: %w", err)
	}

	role := rbac.RoleFor(friendly, s.cfg.MarketplaceOwner, s.cfg.IsAdmin)
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, friendly, role, s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	record(ctx, s.audit, friendly, actorUser, "identity_login", "identity", friendly,
		map[string]any{"network": s.cfg.TONNetwork, "domain": req.Proof.Domain.Value})
	s.log.Info("identity logged in", zap.String("identity", friendly), zap.String("role", role))

	return &LoginResult{Token: token, Identity: identity, Role: role}, nil
}

func (s *AuthService) Me(ctx context.Context, identity string) (*models.Identity, string, error) {
	id, err := s.store.GetIdentity(ctx, identity)
	if err != nil {
		return nil, "", err
	}
	return id, rbac.RoleFor(identity, s.cfg.MarketplaceOwner, s.cfg.IsAdmin), nil
}

func (s *AuthService) expectedNetwork() string {
	if s.cfg.TONNetwork == "mainnet" {
		return ton.NetworkMainnet
	}
	return ton.NetworkTestnet
}
