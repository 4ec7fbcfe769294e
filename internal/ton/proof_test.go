package ton

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const rawAddr = "0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

func signedLogin(t *testing.T, ts time.Time, domain string) Login {
	t.Helper()
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := address.ParseRawAddr(rawAddr)
	if err != nil {
		t.Fatal(err)
	}

	l := Login{
		Address:   rawAddr,
		Network:   NetworkTestnet,
		PublicKey: hex.EncodeToString(pubKey),
		Proof: Proof{
			Timestamp: ts.Unix(),
			Domain:    ProofDomain{LengthBytes: len(domain), Value: domain},
			Payload:   "test-nonce-12345",
		},
	}
	digest := l.Proof.Digest(addr.Workchain(), addr.Data())
	l.Proof.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privKey, digest[:]))
	return l
}

func TestVerifyProof_ValidSignature(t *testing.T) {
	now := time.Now()
	l := signedLogin(t, now, "test.example.com")

	if err := VerifyProof(l, []string{"test.example.com"}, now); err != nil {
		t.Fatalf("expected valid proof, got error: %v", err)
	}

	// hex-encoded signatures are accepted too
	sig, _ := base64.StdEncoding.DecodeString(l.Proof.Signature)
	l.Proof.Signature = hex.EncodeToString(sig)
	if err := VerifyProof(l, nil, now); err != nil {
		t.Fatalf("hex signature: %v", err)
	}
}

func TestVerifyProof_Rejections(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		mutate func(*Login)
		domain []string
		at     time.Time
	}{
		{"expired", func(*Login) {}, nil, now.Add(10 * time.Minute)},
		{"future", func(*Login) {}, nil, now.Add(-2 * time.Minute)},
		{"wrong domain", func(*Login) {}, []string{"good.com"}, now},
		{"tampered payload", func(l *Login) { l.Proof.Payload = "other" }, nil, now},
		{"other address", func(l *Login) { l.Address = "0:" + strings.Repeat("11", 32) }, nil, now},
		{"bad domain length", func(l *Login) { l.Proof.Domain.LengthBytes++ }, nil, now},
		{"zero signature", func(l *Login) { l.Proof.Signature = hex.EncodeToString(make([]byte, 64)) }, nil, now},
		{"garbage key", func(l *Login) { l.PublicKey = "zz" }, nil, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := signedLogin(t, now, "test.example.com")
			tt.mutate(&l)
			if err := VerifyProof(l, tt.domain, tt.at); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFriendlyAddress(t *testing.T) {
	friendly, err := FriendlyAddress(rawAddr, NetworkMainnet)
	if err != nil {
		t.Fatal(err)
	}
	if len(friendly) != 48 {
		t.Fatalf("friendly address length = %d, want 48", len(friendly))
	}
	if err := ValidateFriendly(friendly); err != nil {
		t.Fatalf("round trip: %v", err)
	}

	parsed, err := address.ParseAddr(friendly)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Workchain() != 0 || hex.EncodeToString(parsed.Data()) != rawAddr[2:] {
		t.Errorf("round trip mismatch: %d:%x", parsed.Workchain(), parsed.Data())
	}

	if _, err := FriendlyAddress("invalid", NetworkMainnet); err == nil {
		t.Error("expected error for invalid raw address")
	}
}
