package ledger

import (
	"fmt"

	"github.com/QuantaEx/qfinex/internal/models"
)

// The chart of accounts partitions operation codes by account type and
// currency class. A code uniquely identifies a logical ledger account
// within a type; member liability accounts additionally key by kind and
// member id.
type accountKey struct {
	Type         models.AccountType
	Kind         models.AccountKind
	CurrencyType models.CurrencyType
}

var chart = map[accountKey]int32{
	{models.AccountTypeAsset, models.AccountKindMain, models.CurrencyTypeFiat}:      101,
	{models.AccountTypeAsset, models.AccountKindMain, models.CurrencyTypeCoin}:      102,
	{models.AccountTypeLiability, models.AccountKindMain, models.CurrencyTypeFiat}:   201,
	{models.AccountTypeLiability, models.AccountKindMain, models.CurrencyTypeCoin}:   202,
	{models.AccountTypeLiability, models.AccountKindLocked, models.CurrencyTypeFiat}: 211,
	{models.AccountTypeLiability, models.AccountKindLocked, models.CurrencyTypeCoin}: 212,
	{models.AccountTypeRevenue, models.AccountKindMain, models.CurrencyTypeFiat}:     301,
	{models.AccountTypeRevenue, models.AccountKindMain, models.CurrencyTypeCoin}:     302,
	{models.AccountTypeExpense, models.AccountKindMain, models.CurrencyTypeFiat}:     401,
	{models.AccountTypeExpense, models.AccountKindMain, models.CurrencyTypeCoin}:     402,
}

// AccountCode resolves the chart code for an account selector.
func AccountCode(t models.AccountType, kind models.AccountKind, ct models.CurrencyType) (int32, error) {
	if kind == "" {
		kind = models.AccountKindMain
	}
	code, ok := chart[accountKey{t, kind, ct}]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s/%s", ErrUnknownAccount, t, kind, ct)
	}
	return code, nil
}
