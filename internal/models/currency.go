package models

import "github.com/shopspring/decimal"

type CurrencyType string

const (
	CurrencyTypeCoin CurrencyType = "coin"
	CurrencyTypeFiat CurrencyType = "fiat"
)

// Currency describes a supported asset and its back-office limits.
// Loaded from currencies.yaml at startup; treated as immutable after that.
type Currency struct {
	ID                  string
	Type                CurrencyType
	DepositFee          decimal.Decimal
	WithdrawFee         decimal.Decimal
	MinDepositAmount    decimal.Decimal
	MinCollectionAmount decimal.Decimal
	MinWithdrawAmount   decimal.Decimal
	WithdrawLimit24h    decimal.Decimal
	WithdrawLimit72h    decimal.Decimal
	Enabled             bool
	// Options carries chain-specific settings (e.g. erc20_contract_address,
	// gas_limit, network id) passed through to the custody gateway.
	Options map[string]string
}

func (c Currency) Coin() bool {
	return c.Type == CurrencyTypeCoin
}

func (c Currency) Fiat() bool {
	return c.Type == CurrencyTypeFiat
}

// Token reports whether the currency is a contract token rather than the
// chain's native asset. Token collections need a fee-funding step first;
// native transfers do not.
func (c Currency) Token() bool {
	return c.Options["erc20_contract_address"] != ""
}
