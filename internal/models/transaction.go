package models

import "github.com/shopspring/decimal"

const (
	TransferStatusPending = "pending"
	TransferStatusSent    = "sent"
)

// TransferInstruction is one leg of a deposit collection plan: move Amount
// to ToAddress. Produced by the spreader, consumed by the custody gateway.
type TransferInstruction struct {
	ToAddress  string          `json:"to_address"`
	Amount     decimal.Decimal `json:"amount"`
	CurrencyId string          `json:"currency_id"`
	Status     string          `json:"status"`
}

// ChainTransaction is an on-chain transaction as the custody gateway sees
// it. Hash is the blockchain transaction id, distinct from our TID.
type ChainTransaction struct {
	Hash        string
	TxOut       int64
	ToAddress   string
	Amount      decimal.Decimal
	BlockNumber int64
	CurrencyId  string
	Status      string
}

// DepositAddress is a gateway-generated address with its signing secret.
type DepositAddress struct {
	Address string
	Secret  string
}
