package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const (
	// TonProofPrefix: фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	// TonConnectPrefix: префикс перед SHA256 хешем сообщения.
	TonConnectPrefix = "ton-connect"

	// MaxProofAge: максимальный возраст proof (защита от replay).
	MaxProofAge = 5 * time.Minute

	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

// Login is what the client sends after tonconnect returns a ton_proof.
type Login struct {
	Address   string `json:"address"` // raw: "0:<hex>"
	Network   string `json:"network"`
	PublicKey string `json:"public_key"` // hex
	Proof     Proof  `json:"proof"`
}

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // наш nonce
	Signature string      `json:"signature"` // base64 (tonconnect) или hex
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// Digest returns the 32 bytes the wallet signs:
//
//	message = "ton-proof-item-v2/" ++ workchain(4 LE) ++ address_hash(32) ++
//	          domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ payload
//	digest  = sha256(0xffff ++ "ton-connect" ++ sha256(message))
func (p Proof) Digest(workchain int32, addrHash []byte) [32]byte {
	message := make([]byte, 0, len(TonProofPrefix)+48+len(p.Domain.Value)+len(p.Payload))
	message = append(message, TonProofPrefix...)
	message = binary.LittleEndian.AppendUint32(message, uint32(workchain))
	message = append(message, addrHash...)
	message = binary.LittleEndian.AppendUint32(message, uint32(p.Domain.LengthBytes))
	message = append(message, p.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(p.Timestamp))
	message = append(message, p.Payload...)

	msgHash := sha256.Sum256(message)
	signatureMessage := append([]byte{0xff, 0xff}, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)
	return sha256.Sum256(signatureMessage)
}

// VerifyProof проверяет подпись TON Proof для raw-адреса на момент now.
func VerifyProof(l Login, allowedDomains []string, now time.Time) error {
	proofTime := time.Unix(l.Proof.Timestamp, 0)
	if now.Sub(proofTime) > MaxProofAge {
		return fmt.Errorf("proof expired: %s old", now.Sub(proofTime).Round(time.Second))
	}
	if proofTime.After(now.Add(time.Minute)) {
		return fmt.Errorf("proof timestamp is in the future")
	}
	if l.Proof.Domain.LengthBytes != len(l.Proof.Domain.Value) {
		return fmt.Errorf("domain length mismatch")
	}
	if !isDomainAllowed(l.Proof.Domain.Value, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", l.Proof.Domain.Value)
	}

	pubKey, err := hex.DecodeString(l.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(l.Proof.Signature)
	if err != nil {
		return err
	}

	addr, err := address.ParseRawAddr(l.Address)
	if err != nil {
		return fmt.Errorf("invalid raw address: %w", err)
	}

	digest := l.Proof.Digest(addr.Workchain(), addr.Data())
	if !ed25519.Verify(pubKey, digest[:], sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// FriendlyAddress converts a raw address to the non-bounceable user-friendly
// form used as the account identity everywhere in the exchange.
func FriendlyAddress(raw, network string) (string, error) {
	addr, err := address.ParseRawAddr(raw)
	if err != nil {
		return "", fmt.Errorf("invalid raw address: %w", err)
	}
	addr.SetBounce(false)
	addr.SetTestnetOnly(network == NetworkTestnet)
	return addr.String(), nil
}

// ValidateFriendly checks a user-friendly address such as a withdrawal target.
func ValidateFriendly(s string) error {
	if _, err := address.ParseAddr(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid TON address: %w", err)
	}
	return nil
}

func decodeSignature(s string) ([]byte, error) {
	if sig, err := hex.DecodeString(s); err == nil && len(sig) == ed25519.SignatureSize {
		return sig, nil
	}
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true // если список пуст, разрешаем всё (dev mode)
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
