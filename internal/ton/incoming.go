package ton

import (
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"
	"github.com/xssnick/tonutils-go/tlb"
)

// DepositMemoPrefix marks a transfer comment that credits an identity.
const DepositMemoPrefix = "deposit:"

// Incoming is a plain incoming TON transfer with a text comment.
type Incoming struct {
	Hash       string
	LT         uint64
	From       string
	AmountNano *uint256.Int
	Comment    string
}

// ParseIncoming extracts a non-bounced, positive incoming transfer from tx.
func ParseIncoming(tx *tlb.Transaction) (*Incoming, bool) {
	if tx == nil || tx.IO.In == nil {
		return nil, false
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced {
		return nil, false
	}
	nano := inMsg.Amount.Nano()
	if nano.Sign() <= 0 {
		return nil, false
	}
	amount, overflow := uint256.FromBig(nano)
	if overflow {
		return nil, false
	}
	return &Incoming{
		Hash:       hex.EncodeToString(tx.Hash),
		LT:         tx.LT,
		From:       inMsg.SrcAddr.String(),
		AmountNano: amount,
		Comment:    ExtractComment(inMsg),
	}, true
}

// ExtractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func ExtractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ParseDepositMemo returns the identity named by a "deposit:<identity>" memo.
func ParseDepositMemo(comment string) (string, bool) {
	comment = strings.TrimSpace(comment)
	if !strings.HasPrefix(comment, DepositMemoPrefix) {
		return "", false
	}
	identity := strings.TrimSpace(strings.TrimPrefix(comment, DepositMemoPrefix))
	if identity == "" || ValidateFriendly(identity) != nil {
		return "", false
	}
	return identity, true
}
