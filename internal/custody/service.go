package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/models"
	"github.com/QuantaEx/qfinex/internal/spread"
)

var ErrNoHotWallet = errors.New("no active hot wallet for currency")

// Service applies custody policy on top of a Gateway: which wallet serves
// which operation, how a deposit is spread, and when collection needs a
// fee-funding step first.
type Service struct {
	gateway    Gateway
	wallets    *config.WalletRegistry
	currencies *config.CurrencyRegistry
}

func NewService(gateway Gateway, wallets *config.WalletRegistry, currencies *config.CurrencyRegistry) *Service {
	return &Service{gateway: gateway, wallets: wallets, currencies: currencies}
}

// CreateAddress provisions a deposit address for a member under the
// currency's deposit wallet.
func (s *Service) CreateAddress(ctx context.Context, currencyId, memberId string) (*models.DepositAddress, error) {
	wallet, err := s.wallets.DepositWallet(currencyId)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateAddress(ctx, wallet, memberId)
}

// LoadBalance reads one wallet's balance through the gateway.
func (s *Service) LoadBalance(ctx context.Context, wallet models.Wallet) (decimal.Decimal, error) {
	return s.gateway.LoadBalance(ctx, wallet)
}

// SpreadDeposit computes the collection plan for a deposit over the
// currency's destination wallets. The last wallet is the most trusted
// sink: its balance counts as zero so it always has room, and it stays in
// the running even when its balance cannot be loaded. Any other wallet
// with an unavailable balance is excluded.
func (s *Service) SpreadDeposit(ctx context.Context, d *models.Deposit) ([]models.TransferInstruction, error) {
	currency, err := s.currencies.Get(d.CurrencyId)
	if err != nil {
		return nil, err
	}

	destinations := s.wallets.DestinationWallets(d.CurrencyId)
	if len(destinations) == 0 {
		return nil, spread.ErrNoDestinationWallets
	}

	candidates := make([]models.SpreadWallet, 0, len(destinations))
	for i, wallet := range destinations {
		last := i == len(destinations)-1

		sw := models.SpreadWallet{
			Address:             wallet.Address,
			MaxBalance:          wallet.MaxBalance,
			MinCollectionAmount: currency.MinCollectionAmount,
		}

		balance, err := s.gateway.LoadBalance(ctx, wallet)
		switch {
		case errors.Is(err, ErrBalanceUnavailable):
			sw.BalanceUnavailable = true
		case err != nil:
			return nil, fmt.Errorf("failed to load balance of %s: %w", wallet.Address, err)
		default:
			sw.Balance = balance
		}

		if last {
			sw.Balance = decimal.Zero
			sw.BalanceUnavailable = false
		} else if sw.BalanceUnavailable {
			zap.L().Warn("Excluding wallet with unavailable balance from spread",
				zap.String("address", wallet.Address),
				zap.String("currency", d.CurrencyId))
			continue
		}

		candidates = append(candidates, sw)
	}

	return spread.BetweenWallets(d.Amount, d.CurrencyId, candidates)
}

// Collect executes a deposit's pending collection plan: one outbound
// transaction per instruction, sent from the deposit wallet. A failed
// instruction aborts the run; already-issued transactions stand and the
// remaining instructions are retried on the next pass.
func (s *Service) Collect(ctx context.Context, d *models.Deposit) ([]models.ChainTransaction, error) {
	wallet, err := s.wallets.DepositWallet(d.CurrencyId)
	if err != nil {
		return nil, err
	}

	var sent []models.ChainTransaction
	for i := range d.Spread {
		instruction := &d.Spread[i]
		if instruction.Status != models.TransferStatusPending {
			continue
		}

		tx, err := s.gateway.BuildTransaction(ctx, wallet, *instruction)
		if err != nil {
			return sent, fmt.Errorf("failed to collect %s to %s: %w",
				instruction.Amount, instruction.ToAddress, err)
		}
		instruction.Status = models.TransferStatusSent
		sent = append(sent, *tx)

		zap.L().Info("Collection transaction issued",
			zap.String("deposit_tid", d.TID),
			zap.String("to", instruction.ToAddress),
			zap.String("amount", instruction.Amount.String()),
			zap.String("hash", tx.Hash))
	}
	return sent, nil
}

// DepositCollectionFees pre-funds the deposit address for a token
// collection. Native-asset deposits need no funding step: the collection
// transaction pays its own gas out of the collected amount, so this is a
// no-op for them.
func (s *Service) DepositCollectionFees(ctx context.Context, d *models.Deposit) ([]models.ChainTransaction, error) {
	currency, err := s.currencies.Get(d.CurrencyId)
	if err != nil {
		return nil, err
	}
	if !currency.Token() {
		return nil, nil
	}

	wallet, err := s.wallets.DepositWallet(d.CurrencyId)
	if err != nil {
		return nil, err
	}

	depositTx := models.ChainTransaction{
		Hash:        d.TxId,
		TxOut:       d.TxOut,
		ToAddress:   d.Address,
		Amount:      d.Amount,
		BlockNumber: d.BlockNumber,
		CurrencyId:  d.CurrencyId,
	}
	return s.gateway.PrepareDepositCollection(ctx, wallet, depositTx, d.Spread, currency)
}

// BuildWithdrawal sends a coin withdrawal from the hot wallet and returns
// the chain transaction carrying its txid.
func (s *Service) BuildWithdrawal(ctx context.Context, w *models.Withdraw) (*models.ChainTransaction, error) {
	wallet, err := s.wallets.HotWallet(w.CurrencyId)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHotWallet, w.CurrencyId)
	}

	return s.gateway.BuildTransaction(ctx, wallet, models.TransferInstruction{
		ToAddress:  w.RID,
		Amount:     w.Amount,
		CurrencyId: w.CurrencyId,
		Status:     models.TransferStatusPending,
	})
}
