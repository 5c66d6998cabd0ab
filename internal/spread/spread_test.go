package spread

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuantaEx/qfinex/internal/models"
)

func wallet(address, balance, maxBalance, minCollection string) models.SpreadWallet {
	return models.SpreadWallet{
		Address:             address,
		Balance:             decimal.RequireFromString(balance),
		MaxBalance:          decimal.RequireFromString(maxBalance),
		MinCollectionAmount: decimal.RequireFromString(minCollection),
	}
}

func planTotal(plan []models.TransferInstruction) decimal.Decimal {
	total := decimal.Zero
	for _, in := range plan {
		total = total.Add(in.Amount)
	}
	return total
}

func TestBetweenWallets_SingleWalletTakesAll(t *testing.T) {
	plan, err := BetweenWallets(decimal.RequireFromString("1.2"), "eth", []models.SpreadWallet{
		wallet("hot-1", "8.8", "10", "1"),
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, "hot-1", plan[0].ToAddress)
	assert.True(t, plan[0].Amount.Equal(decimal.RequireFromString("1.2")))
	assert.Equal(t, "eth", plan[0].CurrencyId)
	assert.Equal(t, models.TransferStatusPending, plan[0].Status)
}

func TestBetweenWallets_FullWalletPassedOver(t *testing.T) {
	plan, err := BetweenWallets(decimal.NewFromInt(10), "eth", []models.SpreadWallet{
		wallet("hot-1", "10", "10", "1"),
		wallet("cold-1", "90", "100", "1"),
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, "cold-1", plan[0].ToAddress)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(10)))
}

func TestBetweenWallets_SplitsAcrossWallets(t *testing.T) {
	plan, err := BetweenWallets(decimal.NewFromInt(30), "eth", []models.SpreadWallet{
		wallet("hot-1", "5", "10", "1"),
		wallet("warm-1", "0", "15", "1"),
		wallet("cold-1", "0", "1000", "1"),
	})
	require.NoError(t, err)
	require.Len(t, plan, 3)

	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.True(t, plan[1].Amount.Equal(decimal.NewFromInt(15)))
	assert.True(t, plan[2].Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, planTotal(plan).Equal(decimal.NewFromInt(30)))
}

func TestBetweenWallets_BelowEveryMinimumIsEmpty(t *testing.T) {
	plan, err := BetweenWallets(decimal.RequireFromString("0.5"), "eth", []models.SpreadWallet{
		wallet("hot-1", "0", "10", "1"),
		wallet("cold-1", "0", "100", "2"),
	})
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestBetweenWallets_FoldsDustRemainder(t *testing.T) {
	// 5 fits in the hot wallet; the 0.5 remainder is below the minimum
	// and must be folded in rather than stranded for the cold wallet.
	plan, err := BetweenWallets(decimal.RequireFromString("5.5"), "eth", []models.SpreadWallet{
		wallet("hot-1", "5", "10", "1"),
		wallet("cold-1", "0", "100", "1"),
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, "hot-1", plan[0].ToAddress)
	assert.True(t, plan[0].Amount.Equal(decimal.RequireFromString("5.5")))
}

func TestBetweenWallets_OverflowGoesToLastWallet(t *testing.T) {
	plan, err := BetweenWallets(decimal.NewFromInt(50), "eth", []models.SpreadWallet{
		wallet("hot-1", "0", "10", "1"),
		wallet("cold-1", "0", "20", "1"),
	})
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, plan[1].Amount.Equal(decimal.NewFromInt(40)))
	assert.True(t, planTotal(plan).Equal(decimal.NewFromInt(50)))
}

func TestBetweenWallets_MalformedWalletSkipped(t *testing.T) {
	plan, err := BetweenWallets(decimal.NewFromInt(3), "eth", []models.SpreadWallet{
		wallet("", "0", "10", "1"),
		wallet("cold-1", "0", "100", "1"),
	})
	require.NoError(t, err)
	require.Len(t, plan, 1)

	assert.Equal(t, "cold-1", plan[0].ToAddress)
	assert.True(t, plan[0].Amount.Equal(decimal.NewFromInt(3)))
}

func TestBetweenWallets_NoWallets(t *testing.T) {
	_, err := BetweenWallets(decimal.NewFromInt(1), "eth", nil)
	assert.ErrorIs(t, err, ErrNoDestinationWallets)
}
