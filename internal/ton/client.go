package ton

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

// Params selects how to reach the network.
type Params struct {
	Network        string // mainnet/testnet
	LiteServerHost string
	LiteServerPort int
	LiteServerKey  string
	ConfigURL      string
}

// Connect establishes a connection to the TON network.
// If a lite server host and key are set, connects to that server only.
// Otherwise, auto-discovers lite servers from the global config for Network.
func Connect(ctx context.Context, p Params, log *zap.Logger) (tonapi.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if p.LiteServerHost != "" && p.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", p.LiteServerHost, p.LiteServerPort)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, p.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := p.ConfigURL
		if configURL == "" {
			configURL = "https://ton.org/testnet-global.config.json"
			if strings.ToLower(p.Network) == "mainnet" {
				configURL = "https://ton.org/global.config.json"
			}
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", p.Network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := tonapi.ProofCheckPolicyFast
	if strings.ToLower(p.Network) == "mainnet" {
		proofPolicy = tonapi.ProofCheckPolicySecure
	}
	return tonapi.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

// Sender pays out from the hot wallet.
type Sender interface {
	SendTON(ctx context.Context, to string, amountNano *uint256.Int, comment string) error
}

// HotWallet sends payouts from a V4R2 wallet restored from its seed phrase.
type HotWallet struct {
	w   *wallet.Wallet
	log *zap.Logger
}

func NewHotWallet(api tonapi.APIClientWrapped, seed string, log *zap.Logger) (*HotWallet, error) {
	words := strings.Fields(seed)
	if len(words) != 24 {
		return nil, fmt.Errorf("hot wallet seed must have 24 words, got %d", len(words))
	}
	w, err := wallet.FromSeed(api, words, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("restore hot wallet: %w", err)
	}
	log.Info("hot wallet ready", zap.String("address", w.WalletAddress().String()))
	return &HotWallet{w: w, log: log}, nil
}

func (h *HotWallet) Address() *address.Address {
	return h.w.WalletAddress()
}

// SendTON transfers amountNano to a user-friendly address and waits for the
// transaction to be included.
func (h *HotWallet) SendTON(ctx context.Context, to string, amountNano *uint256.Int, comment string) error {
	dst, err := address.ParseAddr(to)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", to, err)
	}
	if err := h.w.Transfer(ctx, dst, tlb.FromNanoTON(amountNano.ToBig()), comment, true); err != nil {
		return fmt.Errorf("transfer to %s: %w", to, err)
	}
	h.log.Info("payout sent", zap.String("to", to), zap.String("amount_nano", amountNano.Dec()))
	return nil
}
