package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/QuantaEx/qfinex/internal/models"
)

// currencyEntry mirrors one currencies.yaml item. Amounts are strings in
// the file and parsed into decimals on load.
type currencyEntry struct {
	ID                  string            `yaml:"id"`
	Type                string            `yaml:"type"`
	DepositFee          string            `yaml:"deposit_fee"`
	WithdrawFee         string            `yaml:"withdraw_fee"`
	MinDepositAmount    string            `yaml:"min_deposit_amount"`
	MinCollectionAmount string            `yaml:"min_collection_amount"`
	MinWithdrawAmount   string            `yaml:"min_withdraw_amount"`
	WithdrawLimit24h    string            `yaml:"withdraw_limit_24h"`
	WithdrawLimit72h    string            `yaml:"withdraw_limit_72h"`
	Enabled             *bool             `yaml:"enabled"`
	Options             map[string]string `yaml:"options"`
}

type currenciesFile struct {
	Currencies []currencyEntry `yaml:"currencies"`
}

type walletEntry struct {
	Address         string `yaml:"address"`
	Kind            string `yaml:"kind"`
	CurrencyId      string `yaml:"currency_id"`
	MaxBalance      string `yaml:"max_balance"`
	Status          string `yaml:"status"`
	Position        int    `yaml:"position"`
	GatewayWalletId string `yaml:"gateway_wallet_id"`
}

type walletsFile struct {
	Wallets []walletEntry `yaml:"wallets"`
}

// CurrencyRegistry resolves currencies by id.
type CurrencyRegistry struct {
	currencies map[string]models.Currency
}

// WalletRegistry resolves custodial wallets per currency.
type WalletRegistry struct {
	wallets []models.Wallet
}

// NewCurrencyRegistry builds a registry from already-constructed currency
// records. Used by tests.
func NewCurrencyRegistry(currencies ...models.Currency) *CurrencyRegistry {
	reg := &CurrencyRegistry{currencies: make(map[string]models.Currency, len(currencies))}
	for _, c := range currencies {
		reg.currencies[c.ID] = c
	}
	return reg
}

// NewWalletRegistry builds a registry from already-constructed wallet
// records. Used by tests.
func NewWalletRegistry(wallets ...models.Wallet) *WalletRegistry {
	reg := &WalletRegistry{wallets: wallets}
	sort.SliceStable(reg.wallets, func(i, j int) bool { return reg.wallets[i].Position < reg.wallets[j].Position })
	return reg
}

func LoadCurrencies(file string) (*CurrencyRegistry, error) {
	data, err := os.ReadFile(resolvePath(file))
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	var cf currenciesFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", file, err)
	}

	reg := &CurrencyRegistry{currencies: make(map[string]models.Currency, len(cf.Currencies))}
	for i, entry := range cf.Currencies {
		if entry.ID == "" {
			return nil, fmt.Errorf("currency at index %d missing id", i)
		}
		cur, err := entry.toCurrency()
		if err != nil {
			return nil, fmt.Errorf("currency %s: %w", entry.ID, err)
		}
		reg.currencies[cur.ID] = cur
	}
	return reg, nil
}

func (e currencyEntry) toCurrency() (models.Currency, error) {
	cur := models.Currency{
		ID:      e.ID,
		Type:    models.CurrencyType(e.Type),
		Enabled: true,
		Options: e.Options,
	}
	if cur.Type != models.CurrencyTypeCoin && cur.Type != models.CurrencyTypeFiat {
		return cur, fmt.Errorf("invalid type %q", e.Type)
	}
	if e.Enabled != nil {
		cur.Enabled = *e.Enabled
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"deposit_fee", e.DepositFee, &cur.DepositFee},
		{"withdraw_fee", e.WithdrawFee, &cur.WithdrawFee},
		{"min_deposit_amount", e.MinDepositAmount, &cur.MinDepositAmount},
		{"min_collection_amount", e.MinCollectionAmount, &cur.MinCollectionAmount},
		{"min_withdraw_amount", e.MinWithdrawAmount, &cur.MinWithdrawAmount},
		{"withdraw_limit_24h", e.WithdrawLimit24h, &cur.WithdrawLimit24h},
		{"withdraw_limit_72h", e.WithdrawLimit72h, &cur.WithdrawLimit72h},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return cur, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return cur, nil
}

func (r *CurrencyRegistry) Get(id string) (models.Currency, error) {
	cur, ok := r.currencies[id]
	if !ok {
		return models.Currency{}, fmt.Errorf("unknown currency %q", id)
	}
	if !cur.Enabled {
		return models.Currency{}, fmt.Errorf("currency %q is disabled", id)
	}
	return cur, nil
}

func (r *CurrencyRegistry) All() []models.Currency {
	out := make([]models.Currency, 0, len(r.currencies))
	for _, c := range r.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func LoadWallets(file string) (*WalletRegistry, error) {
	data, err := os.ReadFile(resolvePath(file))
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	var wf walletsFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", file, err)
	}

	reg := &WalletRegistry{wallets: make([]models.Wallet, 0, len(wf.Wallets))}
	for i, entry := range wf.Wallets {
		if entry.Address == "" {
			return nil, fmt.Errorf("wallet at index %d missing address", i)
		}
		if entry.CurrencyId == "" {
			return nil, fmt.Errorf("wallet %s missing currency_id", entry.Address)
		}
		w := models.Wallet{
			Address:         entry.Address,
			Kind:            models.WalletKind(entry.Kind),
			CurrencyId:      entry.CurrencyId,
			Status:          entry.Status,
			Position:        entry.Position,
			GatewayWalletId: entry.GatewayWalletId,
		}
		if entry.MaxBalance != "" {
			w.MaxBalance, err = decimal.NewFromString(entry.MaxBalance)
			if err != nil {
				return nil, fmt.Errorf("wallet %s: invalid max_balance %q: %w", entry.Address, entry.MaxBalance, err)
			}
		}
		reg.wallets = append(reg.wallets, w)
	}

	sort.SliceStable(reg.wallets, func(i, j int) bool {
		return reg.wallets[i].Position < reg.wallets[j].Position
	})
	return reg, nil
}

// DepositWallet returns the active deposit wallet for a currency.
func (r *WalletRegistry) DepositWallet(currencyId string) (models.Wallet, error) {
	for _, w := range r.wallets {
		if w.CurrencyId == currencyId && w.Kind == models.WalletKindDeposit && w.Active() {
			return w, nil
		}
	}
	return models.Wallet{}, fmt.Errorf("no active deposit wallet for currency %q", currencyId)
}

// HotWallet returns the active hot wallet used for outgoing withdrawals.
func (r *WalletRegistry) HotWallet(currencyId string) (models.Wallet, error) {
	for _, w := range r.wallets {
		if w.CurrencyId == currencyId && w.Kind == models.WalletKindHot && w.Active() {
			return w, nil
		}
	}
	return models.Wallet{}, fmt.Errorf("no active hot wallet for currency %q", currencyId)
}

// DestinationWallets returns the active collection destinations (hot, warm,
// cold) for a currency ordered by position ascending; the last one is the
// most-trusted fallback.
func (r *WalletRegistry) DestinationWallets(currencyId string) []models.Wallet {
	var out []models.Wallet
	for _, w := range r.wallets {
		if w.CurrencyId != currencyId || !w.Active() {
			continue
		}
		switch w.Kind {
		case models.WalletKindHot, models.WalletKindWarm, models.WalletKindCold:
			out = append(out, w)
		}
	}
	return out
}

func resolvePath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	wd, err := os.Getwd()
	if err != nil {
		return file
	}
	return filepath.Join(wd, file)
}
