package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/auth"
	"github.com/asset-exchange/backend/internal/config"
	"github.com/asset-exchange/backend/internal/escrow"
	"github.com/asset-exchange/backend/internal/governance"
	"github.com/asset-exchange/backend/internal/http/handlers"
	"github.com/asset-exchange/backend/internal/market"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
	"github.com/asset-exchange/backend/internal/services"
)

const (
	testSecret = "router-secret"
	ownerID    = "owner-id"
)

type noIdentities struct{}

func (noIdentities) CreateProofPayload(context.Context, time.Duration) (*models.TonProofPayload, error) {
	return &models.TonProofPayload{Payload: "nonce"}, nil
}
func (noIdentities) ConsumeProofPayload(context.Context, string) (*models.TonProofPayload, error) {
	return nil, nil
}
func (noIdentities) UpsertIdentity(context.Context, *models.Identity) error { return nil }
func (noIdentities) GetIdentity(_ context.Context, id string) (*models.Identity, error) {
	return &models.Identity{AddressFriendly: id}, nil
}

type noQueue struct{}

func (noQueue) Create(_ context.Context, w *models.Withdrawal) error {
	w.ID = uuid.New()
	return nil
}
func (noQueue) ListByIdentity(context.Context, string, int, int) ([]*models.Withdrawal, error) {
	return nil, nil
}
func (noQueue) ListPending(context.Context, int) ([]*models.Withdrawal, error) { return nil, nil }
func (noQueue) MarkSent(context.Context, uuid.UUID) error                      { return nil }
func (noQueue) RecordAttemptFailure(context.Context, uuid.UUID, string, int) (bool, error) {
	return false, nil
}

type testServer struct {
	app  *fiber.App
	bank *payments.MemoryTreasury
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	cfg := &config.Config{
		JWTSecret:        testSecret,
		JWTExpiration:    time.Hour,
		MarketplaceOwner: ownerID,
		TONNetwork:       "testnet",
	}

	registry := escrow.NewMemoryRegistry()
	bank := payments.NewMemoryTreasury()
	vault := escrow.NewVault(registry, "vault", log)
	ml, err := market.NewLedger(market.NewMemoryStore(), vault, bank, market.Config{
		Owner:           ownerID,
		ExchangeAccount: "exchange",
		FeeBps:          market.DefaultFeeBps,
	}, log)
	require.NoError(t, err)
	gl, err := governance.NewLedger(governance.NewMemoryStore(), governance.DefaultConfig(), log)
	require.NoError(t, err)

	marketSvc := services.NewMarketService(ml, registry, vault, bank, nil, log)
	govSvc := services.NewGovernanceService(gl, nil, log)
	treasurySvc := services.NewTreasuryService(bank, nil, noQueue{}, nil, nil, log)
	authSvc := services.NewAuthService(noIdentities{}, nil, cfg, log)

	app := fiber.New()
	SetupRouter(app, cfg, log, nil, Handlers{
		Auth:     handlers.NewAuthHandler(authSvc, log),
		Listing:  handlers.NewListingHandler(marketSvc, log),
		Proposal: handlers.NewProposalHandler(govSvc, log),
		Account:  handlers.NewAccountHandler(marketSvc, treasurySvc, nil, log),
		Admin:    handlers.NewAdminHandler(marketSvc, nil, log),
	})
	return &testServer{app: app, bank: bank}
}

func token(t *testing.T, identity string) string {
	t.Helper()
	tok, err := auth.GenerateJWT(testSecret, identity, "", time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (s *testServer) do(t *testing.T, method, path, identity string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, identity))
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, nethttp.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, status)
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, nethttp.MethodGet, "/api/v1/listings", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", env.Code)
}

func TestRouter_ListAndBuy(t *testing.T) {
	s := newTestServer(t)
	asset := map[string]any{"contract": "EQart", "token_id": 1}

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/admin/assets", ownerID, map[string]any{"contract": "EQart", "token_id": 1, "owner": "alice"})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/assets/approve", "alice", asset)
	require.Equal(t, fiber.StatusOK, status)

	status, env := s.do(t, nethttp.MethodPost, "/api/v1/listings", "alice", map[string]any{"contract": "EQart", "token_id": 1, "price": "1000"})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	var listing models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &listing))
	require.True(t, listing.Active)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/listings/1/buy", "alice", nil)
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, "self_trade", env.Code)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/listings/1/buy", "bob", nil)
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "insufficient_funds", env.Code)

	require.NoError(t, s.bank.Credit(context.Background(), "bob", uint256.NewInt(1000)))
	status, env = s.do(t, nethttp.MethodPost, "/api/v1/listings/1/buy", "bob", map[string]any{"paid": "1000"})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	var st struct {
		Fee      string `json:"fee"`
		Proceeds string `json:"proceeds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.Equal(t, "25", st.Fee)
	require.Equal(t, "975", st.Proceeds)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/assets/EQart/1", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	var view services.AssetView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, "bob", view.Owner)
	require.False(t, view.InEscrow)
}

func TestRouter_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodGet, "/api/v1/listings/42", "bob", nil)
	require.Equal(t, fiber.StatusNotFound, status)
	require.Equal(t, "listing_not_found", env.Code)

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/listings/abc", "bob", nil)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestRouter_ActivityWithoutAuditStore(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, nethttp.MethodGet, "/api/v1/me/activity", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `[]`, string(env.Data))
}

func TestRouter_AdminGuard(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodPut, "/api/v1/admin/fee", "bob", map[string]any{"fee_bps": 100})
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", env.Code)

	status, env = s.do(t, nethttp.MethodPut, "/api/v1/admin/fee", ownerID, map[string]any{"fee_bps": 5000})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "fee_too_high", env.Code)

	status, _ = s.do(t, nethttp.MethodPut, "/api/v1/admin/fee", ownerID, map[string]any{"fee_bps": 100})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/fee", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `{"fee_bps":100}`, string(env.Data))
}

func TestRouter_ProposalCommit(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodPost, "/api/v1/proposals", "alice", map[string]any{"description": "burn fees"})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	var p struct {
		ID    uint64 `json:"id"`
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Equal(t, models.PhaseCommit, p.Phase)

	// the server never sees support or salt before the reveal window
	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/commitments", "bob", map[string]any{"support": true})
	require.Equal(t, fiber.StatusNotFound, status)

	salt, err := governance.NewSalt()
	require.NoError(t, err)
	commit := governance.Commitment(true, salt, "bob")

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/proposals/1/commit", "bob", map[string]any{"commit_hash": commit.Hex()})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/proposals/1/commit", "bob", map[string]any{"commit_hash": commit.Hex()})
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "already_committed", env.Code)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/proposals/1/reveal", "bob", map[string]any{"support": true, "salt": salt.Hex()})
	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, "reveal_not_open", env.Code)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/proposals/1/votes/me", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	var v models.VoteRecord
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Equal(t, commit, v.CommitHash)
}
