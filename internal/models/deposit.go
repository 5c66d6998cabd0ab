package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositState string

const (
	DepositSubmitted DepositState = "submitted"
	DepositCanceled  DepositState = "canceled"
	DepositRejected  DepositState = "rejected"
	DepositAccepted  DepositState = "accepted"
	DepositSkipped   DepositState = "skipped"
	DepositCollected DepositState = "collected"
)

// Deposit is an incoming on-chain (or fiat) transfer credited to a member.
// Created by external deposit detection, mutated only through lifecycle
// events, never deleted.
type Deposit struct {
	Id          string          `db:"id"`
	TID         string          `db:"tid"`
	MemberId    string          `db:"member_id"`
	CurrencyId  string          `db:"currency_id"`
	Amount      decimal.Decimal `db:"amount"`
	Fee         decimal.Decimal `db:"fee"`
	Address     string          `db:"address"`
	TxId        string          `db:"txid"`
	TxOut       int64           `db:"txout"`
	BlockNumber int64           `db:"block_number"`
	State       DepositState    `db:"state"`
	// Spread is the computed collection plan, serialized on the row so the
	// collection worker can resume after a restart.
	Spread      []TransferInstruction `db:"spread"`
	CreatedAt   time.Time             `db:"created_at"`
	UpdatedAt   time.Time             `db:"updated_at"`
	CompletedAt *time.Time            `db:"completed_at"`
}

// Completed reports whether the deposit has left its initial state.
func (d *Deposit) Completed() bool {
	return d.State != DepositSubmitted
}
