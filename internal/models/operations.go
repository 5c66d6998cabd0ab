package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

type AccountKind string

const (
	AccountKindMain   AccountKind = "main"
	AccountKindLocked AccountKind = "locked"
)

type ReferenceType string

const (
	ReferenceTypeDeposit  ReferenceType = "Deposit"
	ReferenceTypeWithdraw ReferenceType = "Withdraw"
)

// Reference ties a ledger operation back to the record whose transition
// produced it.
type Reference struct {
	Type ReferenceType
	ID   string
}

// Operation is a single immutable ledger posting. Never updated or deleted;
// an account's balance is the sum of credits minus debits over its
// operations.
type Operation struct {
	ID            string          `db:"id"`
	Code          int32           `db:"code"`
	AccountType   AccountType     `db:"account_type"`
	Kind          AccountKind     `db:"kind"`
	CurrencyID    string          `db:"currency_id"`
	MemberID      string          `db:"member_id"`
	ReferenceType ReferenceType   `db:"reference_type"`
	ReferenceID   string          `db:"reference_id"`
	Debit         decimal.Decimal `db:"debit"`
	Credit        decimal.Decimal `db:"credit"`
	CreatedAt     time.Time       `db:"created_at"`
}

// AccountBalance is the running-balance cache row for a member liability
// account (hot data); the operations table stays the source of truth.
type AccountBalance struct {
	ID              string          `db:"id"`
	MemberID        string          `db:"member_id"`
	CurrencyID      string          `db:"currency_id"`
	Kind            AccountKind     `db:"kind"`
	Balance         decimal.Decimal `db:"balance"`
	LastOperationID string          `db:"last_operation_id"`
	Version         int64           `db:"version"`
	UpdatedAt       time.Time       `db:"updated_at"`
}
