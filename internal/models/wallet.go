package models

import "github.com/shopspring/decimal"

type WalletKind string

const (
	WalletKindDeposit WalletKind = "deposit"
	WalletKindHot     WalletKind = "hot"
	WalletKindWarm    WalletKind = "warm"
	WalletKindCold    WalletKind = "cold"
	WalletKindFee     WalletKind = "fee"
)

const (
	WalletStatusActive   = "active"
	WalletStatusDisabled = "disabled"
)

// Wallet is a custodial wallet known to the back-office. Wallets are ordered
// by Position ascending; the wallet with the greatest position is the
// most-trusted fallback for collection.
type Wallet struct {
	Address         string
	Kind            WalletKind
	CurrencyId      string
	MaxBalance      decimal.Decimal
	Status          string
	Position        int
	GatewayWalletId string
}

func (w Wallet) Active() bool {
	return w.Status == WalletStatusActive
}

// SpreadWallet is the destination-wallet snapshot the spreader works on:
// registry data plus the balance loaded from the custody gateway.
type SpreadWallet struct {
	Address             string
	Balance             decimal.Decimal
	BalanceUnavailable  bool
	MaxBalance          decimal.Decimal
	MinCollectionAmount decimal.Decimal
}
