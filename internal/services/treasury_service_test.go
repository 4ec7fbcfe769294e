package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
	"github.com/asset-exchange/backend/internal/ton"
)

// memDeposits credits through the bank once per tx hash.
type memDeposits struct {
	bank payments.Bank
	seen map[string]bool
}

func (d *memDeposits) CreditDeposit(ctx context.Context, txHash, account string, amount *uint256.Int, _ uint64) (bool, error) {
	if d.seen[txHash] {
		return false, nil
	}
	if err := d.bank.Credit(ctx, account, amount); err != nil {
		return false, err
	}
	d.seen[txHash] = true
	return true, nil
}

type memQueue struct {
	mu        sync.Mutex
	items     []*models.Withdrawal
	createErr error
}

func (q *memQueue) Create(_ context.Context, w *models.Withdrawal) error {
	if q.createErr != nil {
		return q.createErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	w.ID = uuid.New()
	q.items = append(q.items, w)
	return nil
}

func (q *memQueue) ListByIdentity(_ context.Context, identity string, _, _ int) ([]*models.Withdrawal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range q.items {
		if w.Identity == identity {
			out = append(out, w)
		}
	}
	return out, nil
}

func (q *memQueue) ListPending(_ context.Context, _ int) ([]*models.Withdrawal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.Withdrawal
	for _, w := range q.items {
		if w.Status == models.WithdrawalStatusPending {
			out = append(out, w)
		}
	}
	return out, nil
}

func (q *memQueue) MarkSent(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range q.items {
		if w.ID == id {
			w.Status = models.WithdrawalStatusSent
			w.Attempts++
		}
	}
	return nil
}

func (q *memQueue) RecordAttemptFailure(_ context.Context, id uuid.UUID, reason string, maxAttempts int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range q.items {
		if w.ID == id && w.Status == models.WithdrawalStatusPending {
			w.Attempts++
			w.LastError = &reason
			if w.Attempts >= maxAttempts {
				w.Status = models.WithdrawalStatusFailed
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeSender struct {
	err  error
	sent []string
}

func (s *fakeSender) SendTON(_ context.Context, to string, amount *uint256.Int, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to+"="+amount.Dec())
	return nil
}

type treasuryFixture struct {
	svc      *TreasuryService
	bank     *payments.MemoryTreasury
	queue    *memQueue
	recorder *events.Recorder
	wallet   string
}

func newTreasuryFixture(t *testing.T) *treasuryFixture {
	t.Helper()
	wallet, err := ton.FriendlyAddress("0:"+repeatHex("ab"), ton.NetworkTestnet)
	require.NoError(t, err)

	bank := payments.NewMemoryTreasury()
	queue := &memQueue{}
	recorder := events.NewRecorder()
	svc := NewTreasuryService(bank, &memDeposits{bank: bank, seen: map[string]bool{}}, queue, recorder, &fakeAudit{}, zap.NewNop())
	return &treasuryFixture{svc: svc, bank: bank, queue: queue, recorder: recorder, wallet: wallet}
}

func repeatHex(b string) string {
	out := ""
	for i := 0; i < 32; i++ {
		out += b
	}
	return out
}

func (f *treasuryFixture) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := f.bank.Balance(context.Background(), account)
	require.NoError(t, err)
	return b.Uint64()
}

func TestTreasuryService_DepositOncePerTx(t *testing.T) {
	f := newTreasuryFixture(t)
	ctx := context.Background()
	in := &ton.Incoming{Hash: "aa", LT: 1, AmountNano: uint256.NewInt(500), Comment: ton.DepositMemoPrefix + f.wallet}

	ok, err := f.svc.Deposit(ctx, in)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.svc.Deposit(ctx, in)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.svc.Deposit(ctx, &ton.Incoming{Hash: "bb", AmountNano: uint256.NewInt(1), Comment: "thanks"})
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, uint64(500), f.balance(t, f.wallet))
	require.Equal(t, []string{events.EventDepositReceived}, f.recorder.Types())
}

func TestTreasuryService_WithdrawalSent(t *testing.T) {
	f := newTreasuryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bank.Credit(ctx, "alice", uint256.NewInt(100)))

	w, err := f.svc.RequestWithdrawal(ctx, "alice", f.wallet, uint256.NewInt(60))
	require.NoError(t, err)
	require.Equal(t, models.WithdrawalStatusPending, w.Status)
	require.Equal(t, uint64(40), f.balance(t, "alice"))
	require.Equal(t, uint64(60), f.balance(t, WithdrawalsAccount))

	sender := &fakeSender{}
	sent, err := f.svc.ProcessPending(ctx, sender)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, []string{f.wallet + "=60"}, sender.sent)
	require.Zero(t, f.balance(t, WithdrawalsAccount))
	require.Equal(t, uint64(60), f.balance(t, PaidOutAccount))
	require.Equal(t, []string{events.EventWithdrawalSent}, f.recorder.Types())
}

func TestTreasuryService_WithdrawalRefundedAfterRetries(t *testing.T) {
	f := newTreasuryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bank.Credit(ctx, "alice", uint256.NewInt(100)))

	_, err := f.svc.RequestWithdrawal(ctx, "alice", f.wallet, uint256.NewInt(100))
	require.NoError(t, err)

	sender := &fakeSender{err: errors.New("liteserver timeout")}
	for i := 0; i < MaxWithdrawalAttempts; i++ {
		sent, err := f.svc.ProcessPending(ctx, sender)
		require.NoError(t, err)
		require.Zero(t, sent)
	}

	list, err := f.svc.ListWithdrawals(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, models.WithdrawalStatusFailed, list[0].Status)
	require.Equal(t, uint64(100), f.balance(t, "alice"))
	require.Zero(t, f.balance(t, WithdrawalsAccount))
}

func TestTreasuryService_WithdrawalValidation(t *testing.T) {
	f := newTreasuryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bank.Credit(ctx, "alice", uint256.NewInt(10)))

	_, err := f.svc.RequestWithdrawal(ctx, "alice", f.wallet, uint256.NewInt(11))
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	_, err = f.svc.RequestWithdrawal(ctx, "alice", "not-an-address", uint256.NewInt(1))
	require.ErrorIs(t, err, apperr.ErrInvalidIdentity)

	_, err = f.svc.RequestWithdrawal(ctx, "alice", f.wallet, new(uint256.Int))
	require.ErrorIs(t, err, apperr.ErrInvalidPrice)

	f.queue.createErr = errors.New("db down")
	_, err = f.svc.RequestWithdrawal(ctx, "alice", f.wallet, uint256.NewInt(5))
	require.Error(t, err)
	require.Equal(t, uint64(10), f.balance(t, "alice"))
}
