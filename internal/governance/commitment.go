package governance

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/asset-exchange/backend/internal/models"
)

// Salt is the voter's secret blinding value.
type Salt = models.Hash

// Commitment returns Keccak256(support ‖ salt ‖ voter) where support is a
// single 0x00/0x01 byte and voter is the UTF-8 identity. Binding the voter
// into the preimage stops another account from replaying a seen commitment.
func Commitment(support bool, salt Salt, voter string) models.Hash {
	h := sha3.NewLegacyKeccak256()
	if support {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write(salt[:])
	h.Write([]byte(voter))

	var out models.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func NewSalt() (Salt, error) {
	var s Salt
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("read salt: %w", err)
	}
	return s, nil
}
