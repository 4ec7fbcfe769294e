package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asset-exchange/backend/internal/apperr"
	"github.com/asset-exchange/backend/internal/payments"
)

// BalanceRepo implements payments.Bank. Each Pay batch and its receipt are
// written in one transaction; debits are conditional on a sufficient balance.
type BalanceRepo struct {
	pool *pgxpool.Pool
}

var _ payments.Bank = (*BalanceRepo)(nil)

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

type receiptTransfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (r *BalanceRepo) Balance(ctx context.Context, account string) (*uint256.Int, error) {
	var amount string
	err := r.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE account = $1`, account).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(amount)
}

func (r *BalanceRepo) Credit(ctx context.Context, account string, amount *uint256.Int) error {
	if account == "" {
		return apperr.ErrInvalidIdentity
	}
	return credit(ctx, r.pool, account, amount)
}

func (r *BalanceRepo) Pay(ctx context.Context, transfers ...payments.Transfer) (*payments.Receipt, error) {
	batch := payments.Compact(transfers)
	receipt := &payments.Receipt{ID: uuid.New(), Transfers: batch, CreatedAt: time.Now()}

	encoded := make([]receiptTransfer, 0, len(batch))
	for _, t := range batch {
		encoded = append(encoded, receiptTransfer{From: t.From, To: t.To, Amount: t.Amount.Dec()})
	}
	body, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := applyTransfers(ctx, tx, batch); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO payment_receipts (id, transfers, created_at) VALUES ($1, $2, $3)`,
			receipt.ID, body, receipt.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (r *BalanceRepo) Reverse(ctx context.Context, receipt *payments.Receipt) error {
	if receipt == nil {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE payment_receipts SET reversed = true WHERE id = $1 AND NOT reversed`, receipt.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return applyTransfers(ctx, tx, payments.Inverse(receipt))
	})
}

// CreditDeposit credits an on-chain deposit once per transaction hash. It
// reports whether this call did the credit.
func (r *BalanceRepo) CreditDeposit(ctx context.Context, txHash, account string, amount *uint256.Int, lt uint64) (bool, error) {
	credited := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ton_deposits (tx_hash, identity, amount, lt)
			VALUES ($1, $2, $3::numeric, $4)
			ON CONFLICT (tx_hash) DO NOTHING
		`, txHash, account, amount.Dec(), int64(lt))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		credited = true
		return credit(ctx, tx, account, amount)
	})
	return credited, err
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func credit(ctx context.Context, db execer, account string, amount *uint256.Int) error {
	_, err := db.Exec(ctx, `
		INSERT INTO balances (account, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, account, amount.Dec())
	return err
}

func applyTransfers(ctx context.Context, tx pgx.Tx, batch []payments.Transfer) error {
	for _, t := range batch {
		if t.From == "" || t.To == "" {
			return apperr.ErrInvalidIdentity
		}
		if t.From == t.To {
			continue
		}
		tag, err := tx.Exec(ctx, `
			UPDATE balances SET amount = amount - $2::numeric, updated_at = now()
			WHERE account = $1 AND amount >= $2::numeric
		`, t.From, t.Amount.Dec())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s: %w", t.From, apperr.ErrInsufficientFunds)
		}
		if err := credit(ctx, tx, t.To, t.Amount); err != nil {
			return err
		}
	}
	return nil
}
