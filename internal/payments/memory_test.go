package payments

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/asset-exchange/backend/internal/apperr"
)

func balanceOf(t *testing.T, m *MemoryTreasury, account string) uint64 {
	t.Helper()
	b, err := m.Balance(context.Background(), account)
	require.NoError(t, err)
	return b.Uint64()
}

func TestPay_AppliesBatchInOrder(t *testing.T) {
	m := NewMemoryTreasury()
	ctx := context.Background()
	require.NoError(t, m.Credit(ctx, "bob", uint256.NewInt(120)))

	receipt, err := m.Pay(ctx,
		Transfer{From: "bob", To: "exchange", Amount: uint256.NewInt(120)},
		Transfer{From: "exchange", To: "alice", Amount: uint256.NewInt(98)},
		Transfer{From: "exchange", To: "bob", Amount: uint256.NewInt(20)},
		Transfer{From: "exchange", To: "fees", Amount: uint256.NewInt(0)},
	)
	require.NoError(t, err)
	require.Len(t, receipt.Transfers, 3)

	require.Equal(t, uint64(20), balanceOf(t, m, "bob"))
	require.Equal(t, uint64(98), balanceOf(t, m, "alice"))
	require.Equal(t, uint64(2), balanceOf(t, m, "exchange"))
}

func TestPay_AllOrNothing(t *testing.T) {
	m := NewMemoryTreasury()
	ctx := context.Background()
	require.NoError(t, m.Credit(ctx, "bob", uint256.NewInt(50)))

	_, err := m.Pay(ctx,
		Transfer{From: "bob", To: "exchange", Amount: uint256.NewInt(50)},
		Transfer{From: "exchange", To: "alice", Amount: uint256.NewInt(60)},
	)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	require.Equal(t, uint64(50), balanceOf(t, m, "bob"))
	require.Equal(t, uint64(0), balanceOf(t, m, "exchange"))
}

func TestReverse_RestoresBalancesOnce(t *testing.T) {
	m := NewMemoryTreasury()
	ctx := context.Background()
	require.NoError(t, m.Credit(ctx, "bob", uint256.NewInt(10)))

	receipt, err := m.Pay(ctx, Transfer{From: "bob", To: "alice", Amount: uint256.NewInt(10)})
	require.NoError(t, err)

	require.NoError(t, m.Reverse(ctx, receipt))
	require.NoError(t, m.Reverse(ctx, receipt))
	require.Equal(t, uint64(10), balanceOf(t, m, "bob"))
	require.Equal(t, uint64(0), balanceOf(t, m, "alice"))
}
