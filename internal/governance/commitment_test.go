package governance

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestCommitment_MatchesPreimageLayout(t *testing.T) {
	var salt Salt
	for i := range salt {
		salt[i] = byte(i)
	}

	preimage := append([]byte{1}, salt[:]...)
	preimage = append(preimage, []byte("alice")...)
	h := sha3.NewLegacyKeccak256()
	h.Write(preimage)

	got := Commitment(true, salt, "alice")
	require.Equal(t, h.Sum(nil), got[:])
}

func TestCommitment_BindsEveryInput(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	other, err := NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, salt, other)

	base := Commitment(true, salt, "alice")
	require.False(t, base.IsZero())
	require.Equal(t, base, Commitment(true, salt, "alice"))
	require.NotEqual(t, base, Commitment(false, salt, "alice"))
	require.NotEqual(t, base, Commitment(true, other, "alice"))
	require.NotEqual(t, base, Commitment(true, salt, "bob"))
}
