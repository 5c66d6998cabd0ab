// Package spread computes how an incoming deposit is distributed across
// the ordered destination wallets. The walk is deterministic and single
// pass; the last wallet is the most trusted sink and absorbs whatever the
// earlier wallets have no room for.
package spread

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/models"
)

var (
	ErrNoDestinationWallets = errors.New("no destination wallets")
	ErrSpreadMismatch       = errors.New("spread amounts do not sum to the deposit amount")
)

// BetweenWallets builds the transfer plan for amount over wallets, in
// wallet order. Every returned instruction has a positive amount and the
// amounts sum to amount exactly; an empty plan means the amount is below
// every wallet's minimum collection threshold and is not worth moving yet.
func BetweenWallets(amount decimal.Decimal, currencyId string, wallets []models.SpreadWallet) ([]models.TransferInstruction, error) {
	if len(wallets) == 0 {
		return nil, ErrNoDestinationWallets
	}

	minCollection := wallets[0].MinCollectionAmount
	for _, w := range wallets[1:] {
		if w.MinCollectionAmount.LessThan(minCollection) {
			minCollection = w.MinCollectionAmount
		}
	}
	if amount.LessThan(minCollection) {
		return []models.TransferInstruction{}, nil
	}

	left := amount
	instructions := make([]models.TransferInstruction, 0, len(wallets))
	for _, w := range wallets {
		// A wallet record we cannot use must not abort collection to
		// the others.
		if w.Address == "" {
			zap.L().Warn("Skipping malformed destination wallet",
				zap.String("currency", currencyId))
			continue
		}

		take := decimal.Min(w.MaxBalance.Sub(w.Balance), left)

		// Too little free room for an economical collection.
		if take.LessThan(decimal.Max(w.MinCollectionAmount, decimal.Zero)) {
			take = decimal.Zero
		}

		left = left.Sub(take)

		// Fold an uncollectible remainder into this wallet instead of
		// stranding it for the next one.
		if left.LessThan(w.MinCollectionAmount) {
			take = take.Add(left)
			left = decimal.Zero
		}

		instructions = append(instructions, models.TransferInstruction{
			ToAddress:  w.Address,
			Amount:     take,
			CurrencyId: currencyId,
			Status:     models.TransferStatusPending,
		})
	}

	if len(instructions) == 0 {
		return nil, ErrNoDestinationWallets
	}

	// No wallet had room: the last wallet takes the rest regardless.
	if left.IsPositive() {
		last := &instructions[len(instructions)-1]
		last.Amount = last.Amount.Add(left)
		left = decimal.Zero
	}

	plan := instructions[:0]
	total := decimal.Zero
	for _, in := range instructions {
		if in.Amount.IsPositive() {
			plan = append(plan, in)
			total = total.Add(in.Amount)
		}
	}

	if !total.Equal(amount) {
		return nil, fmt.Errorf("%w: amount=%s plan=%s", ErrSpreadMismatch, amount, total)
	}

	return plan, nil
}
