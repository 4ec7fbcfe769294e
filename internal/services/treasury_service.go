package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/events"
	"github.com/asset-exchange/backend/internal/models"
	"github.com/asset-exchange/backend/internal/payments"
	"github.com/asset-exchange/backend/internal/ton"
)

const (
	// WithdrawalsAccount holds balances queued for an on-chain payout.
	WithdrawalsAccount = "exchange:withdrawals"
	// PaidOutAccount accumulates everything that already left on-chain.
	PaidOutAccount = "exchange:paid-out"

	MaxWithdrawalAttempts = 5
	withdrawalBatch       = 20
)

// DepositLedger is satisfied by repositories.BalanceRepo.
type DepositLedger interface {
	CreditDeposit(ctx context.Context, txHash, account string, amount *uint256.Int, lt uint64) (bool, error)
}

// WithdrawalQueue is satisfied by repositories.WithdrawRepo.
type WithdrawalQueue interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	ListByIdentity(ctx context.Context, identity string, limit, offset int) ([]*models.Withdrawal, error)
	ListPending(ctx context.Context, limit int) ([]*models.Withdrawal, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	RecordAttemptFailure(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) (bool, error)
}

// TreasuryService moves value between TON and exchange balances.
type TreasuryService struct {
	bank     payments.Bank
	deposits DepositLedger
	queue    WithdrawalQueue
	emitter  events.Emitter
	audit    AuditLogger
	log      *zap.Logger
}

func NewTreasuryService(
	bank payments.Bank,
	deposits DepositLedger,
	queue WithdrawalQueue,
	emitter events.Emitter,
	audit AuditLogger,
	log *zap.Logger,
) *TreasuryService {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &TreasuryService{
		bank:     bank,
		deposits: deposits,
		queue:    queue,
		emitter:  emitter,
		audit:    audit,
		log:      log,
	}
}

func (s *TreasuryService) Balance(ctx context.Context, identity string) (*uint256.Int, error) {
	return s.bank.Balance(ctx, identity)
}

// Deposit credits an incoming transfer whose memo names an identity. It
// reports false for transfers that carry no deposit memo or were seen before.
func (s *TreasuryService) Deposit(ctx context.Context, in *ton.Incoming) (bool, error) {
	identity, ok := ton.ParseDepositMemo(in.Comment)
	if !ok {
		return false, nil
	}
	credited, err := s.deposits.CreditDeposit(ctx, in.Hash, identity, in.AmountNano, in.LT)
	if err != nil {
		return false, fmt.Errorf("credit deposit %s: %w", in.Hash, err)
	}
	if !credited {
		return false, nil
	}

	s.emitter.Emit(ctx, events.Event{Type: events.EventDepositReceived, Payload: map[string]any{
		"identity": identity,
		"amount":   in.AmountNano.Dec(),
		"tx_hash":  in.Hash,
	}})
	record(ctx, s.audit, "", actorSystem, "deposit_credited", "balance", identity,
		map[string]any{"amount": in.AmountNano.Dec(), "tx_hash": in.Hash, "from": in.From})
	s.log.Info("deposit credited",
		zap.String("identity", identity),
		zap.String("amount", in.AmountNano.Dec()),
		zap.String("tx_hash", in.Hash),
	)
	return true, nil
}

// RequestWithdrawal moves amount out of the identity balance and queues the
// on-chain payout.
func (s *TreasuryService) RequestWithdrawal(ctx context.Context, identity, to string, amount *uint256.Int) (*models.Withdrawal, error) {
	if identity == "" {
		return nil, apperr.ErrInvalidIdentity
	}
	if amount == nil || amount.IsZero() {
		return nil, apperr.ErrInvalidPrice
	}
	if err := ton.ValidateFriendly(to); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidIdentity, err)
	}

	receipt, err := s.bank.Pay(ctx, payments.Transfer{From: identity, To: WithdrawalsAccount, Amount: amount})
	if err != nil {
		return nil, err
	}

	w := &models.Withdrawal{
		Identity:  identity,
		ToAddress: to,
		Amount:    amount,
		Status:    models.WithdrawalStatusPending,
	}
	if err := s.queue.Create(ctx, w); err != nil {
		if rerr := s.bank.Reverse(ctx, receipt); rerr != nil {
			s.log.Error("withdrawal hold not reversed", zap.String("identity", identity), zap.Error(rerr))
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}

	record(ctx, s.audit, identity, actorUser, "withdrawal_requested", "withdrawal", w.ID.String(),
		map[string]any{"amount": amount.Dec(), "to": to})
	return w, nil
}

func (s *TreasuryService) ListWithdrawals(ctx context.Context, identity string, limit, offset int) ([]*models.Withdrawal, error) {
	return s.queue.ListByIdentity(ctx, identity, limit, offset)
}

// ProcessPending sends queued withdrawals through sender. A withdrawal that
// exhausts its attempts is marked failed and the held amount goes back to
// the identity.
func (s *TreasuryService) ProcessPending(ctx context.Context, sender ton.Sender) (sent int, err error) {
	pending, err := s.queue.ListPending(ctx, withdrawalBatch)
	if err != nil {
		return 0, err
	}

	for _, w := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		comment := "withdrawal " + w.ID.String()
		if err := sender.SendTON(ctx, w.ToAddress, w.Amount, comment); err != nil {
			s.failAttempt(ctx, w, err)
			continue
		}

		if err := s.queue.MarkSent(ctx, w.ID); err != nil {
			// деньги уже ушли: повторная отправка хуже, чем ручная сверка
			s.log.Error("withdrawal sent but not marked", zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
			continue
		}
		if _, err := s.bank.Pay(ctx, payments.Transfer{From: WithdrawalsAccount, To: PaidOutAccount, Amount: w.Amount}); err != nil {
			s.log.Error("paid-out booking failed", zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
		}

		sent++
		s.emitter.Emit(ctx, events.Event{Type: events.EventWithdrawalSent, Payload: map[string]any{
			"withdrawal_id": w.ID.String(),
			"identity":      w.Identity,
			"to":            w.ToAddress,
			"amount":        w.Amount.Dec(),
		}})
		record(ctx, s.audit, "", actorSystem, "withdrawal_sent", "withdrawal", w.ID.String(),
			map[string]any{"amount": w.Amount.Dec(), "to": w.ToAddress})
	}
	return sent, nil
}

func (s *TreasuryService) failAttempt(ctx context.Context, w *models.Withdrawal, cause error) {
	log := s.log.With(zap.String("withdrawal_id", w.ID.String()), zap.Error(cause))
	failed, err := s.queue.RecordAttemptFailure(ctx, w.ID, cause.Error(), MaxWithdrawalAttempts)
	if err != nil {
		log.Error("failed to record withdrawal attempt", zap.NamedError("record_error", err))
		return
	}
	if !failed {
		log.Warn("withdrawal attempt failed, will retry")
		return
	}

	if _, err := s.bank.Pay(ctx, payments.Transfer{From: WithdrawalsAccount, To: w.Identity, Amount: w.Amount}); err != nil {
		log.Error("withdrawal refund failed", zap.NamedError("refund_error", err))
		return
	}
	log.Warn("withdrawal failed permanently, refunded", zap.String("identity", w.Identity))
	record(ctx, s.audit, "", actorSystem, "withdrawal_refunded", "withdrawal", w.ID.String(),
		map[string]any{"amount": w.Amount.Dec(), "reason": cause.Error()})
}
