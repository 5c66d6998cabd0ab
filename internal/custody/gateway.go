// Package custody mediates between the back-office and the external
// wallet infrastructure: address creation, outbound transactions, balance
// reads and deposit-collection planning.
package custody

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/QuantaEx/qfinex/internal/models"
)

var (
	// ErrBalanceUnavailable means the gateway cannot report a wallet's
	// on-chain balance right now. The spreader treats such wallets as
	// unusable, except the most trusted one.
	ErrBalanceUnavailable = errors.New("wallet balance unavailable")

	// ErrNotSupported marks gateway capabilities a given adapter does not
	// implement.
	ErrNotSupported = errors.New("operation not supported by gateway")
)

// Gateway is the chain-side adapter boundary. Implementations must return
// an explicit confirmation object; callers never assume success from a
// nil error alone.
type Gateway interface {
	// CreateAddress provisions a deposit address under the given wallet
	// for the owner reference (member id).
	CreateAddress(ctx context.Context, wallet models.Wallet, ownerRef string) (*models.DepositAddress, error)

	// BuildTransaction submits one outbound transfer from the wallet and
	// returns the resulting chain transaction.
	BuildTransaction(ctx context.Context, wallet models.Wallet, instruction models.TransferInstruction) (*models.ChainTransaction, error)

	// LoadBalance reads the wallet's current on-chain balance, or
	// ErrBalanceUnavailable.
	LoadBalance(ctx context.Context, wallet models.Wallet) (decimal.Decimal, error)

	// PrepareDepositCollection pre-funds the deposit address so a token
	// collection can pay its own gas. Returns the funding transactions,
	// or ErrNotSupported.
	PrepareDepositCollection(ctx context.Context, wallet models.Wallet, depositTx models.ChainTransaction, plan []models.TransferInstruction, currency models.Currency) ([]models.ChainTransaction, error)
}
