package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawState string

const (
	WithdrawPrepared   WithdrawState = "prepared"
	WithdrawSubmitted  WithdrawState = "submitted"
	WithdrawCanceled   WithdrawState = "canceled"
	WithdrawAccepted   WithdrawState = "accepted"
	WithdrawSkipped    WithdrawState = "skipped"
	WithdrawRejected   WithdrawState = "rejected"
	WithdrawProcessing WithdrawState = "processing"
	WithdrawSucceed    WithdrawState = "succeed"
	WithdrawFailed     WithdrawState = "failed"
	WithdrawErrored    WithdrawState = "errored"
	WithdrawConfirming WithdrawState = "confirming"
)

// WithdrawCompletedStates are terminal; completed_at is stamped on entry.
var WithdrawCompletedStates = []WithdrawState{
	WithdrawSucceed,
	WithdrawRejected,
	WithdrawCanceled,
	WithdrawFailed,
}

// WithdrawError is one entry of the structured error log kept on the row.
// Entries are appended, never overwritten.
type WithdrawError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// Withdraw is an outgoing transfer of member funds. Sum is what the member
// pays (amount sent out plus fee); Amount = Sum - Fee.
type Withdraw struct {
	Id          string          `db:"id"`
	TID         string          `db:"tid"`
	MemberId    string          `db:"member_id"`
	CurrencyId  string          `db:"currency_id"`
	Amount      decimal.Decimal `db:"amount"`
	Fee         decimal.Decimal `db:"fee"`
	Sum         decimal.Decimal `db:"sum"`
	RID         string          `db:"rid"`
	TxId        string          `db:"txid"`
	BlockNumber int64           `db:"block_number"`
	State       WithdrawState   `db:"state"`
	Errors      []WithdrawError `db:"error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}

func (w *Withdraw) Completed() bool {
	for _, s := range WithdrawCompletedStates {
		if w.State == s {
			return true
		}
	}
	return false
}
