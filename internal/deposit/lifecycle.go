// Package deposit owns the deposit state machine. Transitions fire under
// the per-record lock; ledger side effects commit in the same transaction
// as the state change. An event fired from a non-matching state is a
// silent no-op, so callers check the returned state rather than assume
// the transition applied.
package deposit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/database"
	"github.com/QuantaEx/qfinex/internal/ledger"
	"github.com/QuantaEx/qfinex/internal/models"
)

var (
	ErrAmountTooSmall = errors.New("deposit amount below currency minimum")
)

type Lifecycle struct {
	db         *database.Service
	ledger     *ledger.Ledger
	currencies *config.CurrencyRegistry
}

func NewLifecycle(db *database.Service, l *ledger.Ledger, currencies *config.CurrencyRegistry) *Lifecycle {
	return &Lifecycle{db: db, ledger: l, currencies: currencies}
}

// CreateParams describes an observed incoming transfer. Amount is the
// gross on-chain amount; the deposit fee is charged out of it.
type CreateParams struct {
	MemberId    string
	CurrencyId  string
	Amount      decimal.Decimal
	Address     string
	TxId        string
	TxOut       int64
	BlockNumber int64
}

// Create validates and persists a new deposit in the submitted state.
func (l *Lifecycle) Create(ctx context.Context, p CreateParams) (*models.Deposit, error) {
	currency, err := l.currencies.Get(p.CurrencyId)
	if err != nil {
		return nil, err
	}

	fee := currency.DepositFee
	amount := p.Amount.Sub(fee)
	if amount.LessThan(currency.MinDepositAmount) {
		return nil, fmt.Errorf("%w: %s < %s %s", ErrAmountTooSmall,
			amount, currency.MinDepositAmount, currency.ID)
	}

	now := time.Now().UTC()
	d := &models.Deposit{
		Id:          uuid.New().String(),
		TID:         models.NewTID(),
		MemberId:    p.MemberId,
		CurrencyId:  p.CurrencyId,
		Amount:      amount,
		Fee:         fee,
		Address:     p.Address,
		TxId:        p.TxId,
		TxOut:       p.TxOut,
		BlockNumber: p.BlockNumber,
		State:       models.DepositSubmitted,
		Spread:      []models.TransferInstruction{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := l.db.InsertDeposit(ctx, l.db.DB(), d); err != nil {
		return nil, err
	}

	zap.L().Info("Deposit created",
		zap.String("tid", d.TID),
		zap.String("member_id", d.MemberId),
		zap.String("currency", d.CurrencyId),
		zap.String("amount", d.Amount.String()),
		zap.String("txid", d.TxId))
	return d, nil
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*models.Deposit, error) {
	return l.db.GetDeposit(ctx, l.db.DB(), id)
}

func (l *Lifecycle) GetByTx(ctx context.Context, currencyId, txid string, txout int64) (*models.Deposit, error) {
	return l.db.GetDepositByTx(ctx, currencyId, txid, txout)
}

func (l *Lifecycle) ListByState(ctx context.Context, state models.DepositState) ([]models.Deposit, error) {
	return l.db.ListDepositsByState(ctx, state)
}

// Accept credits the member: asset takes the gross amount, revenue takes
// the fee, the member liability takes the net amount. All three postings
// and the state change commit atomically.
func (l *Lifecycle) Accept(ctx context.Context, id string) (bool, *models.Deposit, error) {
	return l.fire(ctx, id, event{
		name:   "accept",
		from:   []models.DepositState{models.DepositSubmitted},
		to:     models.DepositAccepted,
		effect: l.recordAcceptOperations,
	})
}

// Cancel voids a submitted deposit. No ledger effect: funds were never
// credited.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (bool, *models.Deposit, error) {
	return l.fire(ctx, id, event{
		name: "cancel",
		from: []models.DepositState{models.DepositSubmitted},
		to:   models.DepositCanceled,
	})
}

// Reject refuses a submitted deposit. No ledger effect.
func (l *Lifecycle) Reject(ctx context.Context, id string) (bool, *models.Deposit, error) {
	return l.fire(ctx, id, event{
		name: "reject",
		from: []models.DepositState{models.DepositSubmitted},
		to:   models.DepositRejected,
	})
}

// Skip holds an accepted deposit back from automatic collection.
func (l *Lifecycle) Skip(ctx context.Context, id string) (bool, *models.Deposit, error) {
	return l.fire(ctx, id, event{
		name: "skip",
		from: []models.DepositState{models.DepositAccepted},
		to:   models.DepositSkipped,
	})
}

// Dispatch marks that outbound collection transactions were issued.
// Collection moves custodial wallet funds, not member balances, so there
// is no ledger effect.
func (l *Lifecycle) Dispatch(ctx context.Context, id string) (bool, *models.Deposit, error) {
	return l.fire(ctx, id, event{
		name: "dispatch",
		from: []models.DepositState{models.DepositAccepted, models.DepositSkipped},
		to:   models.DepositCollected,
	})
}

// SetSpread persists the computed collection plan on the deposit so a
// restarted collection worker can resume from it.
func (l *Lifecycle) SetSpread(ctx context.Context, d *models.Deposit, plan []models.TransferInstruction) error {
	d.Spread = plan
	return l.db.UpdateDepositSpread(ctx, d)
}

type event struct {
	name   string
	from   []models.DepositState
	to     models.DepositState
	effect func(ctx context.Context, tx *sql.Tx, d *models.Deposit, c models.Currency) error
}

func (l *Lifecycle) fire(ctx context.Context, id string, ev event) (bool, *models.Deposit, error) {
	release := l.db.LockRecord(models.Reference{Type: models.ReferenceTypeDeposit, ID: id})
	defer release()

	d, err := l.db.GetDeposit(ctx, l.db.DB(), id)
	if err != nil {
		return false, nil, err
	}

	if !stateIn(d.State, ev.from) {
		zap.L().Debug("Deposit transition not applicable",
			zap.String("tid", d.TID),
			zap.String("event", ev.name),
			zap.String("state", string(d.State)))
		return false, d, nil
	}

	currency, err := l.currencies.Get(d.CurrencyId)
	if err != nil {
		return false, d, err
	}

	prev := d.State
	prevCompletedAt := d.CompletedAt
	d.State = ev.to
	d.UpdatedAt = time.Now().UTC()
	if d.Completed() && d.CompletedAt == nil {
		t := d.UpdatedAt
		d.CompletedAt = &t
	}

	err = l.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if err := l.db.UpdateDepositState(ctx, tx, d); err != nil {
			return err
		}
		if ev.effect != nil {
			return ev.effect(ctx, tx, d, currency)
		}
		return nil
	})
	if err != nil {
		d.State = prev
		d.CompletedAt = prevCompletedAt
		return false, d, fmt.Errorf("deposit %s failed: %w", ev.name, err)
	}

	zap.L().Info("Deposit transition applied",
		zap.String("tid", d.TID),
		zap.String("event", ev.name),
		zap.String("from", string(prev)),
		zap.String("to", string(d.State)))
	return true, d, nil
}

func (l *Lifecycle) recordAcceptOperations(ctx context.Context, tx *sql.Tx, d *models.Deposit, currency models.Currency) error {
	ref := models.Reference{Type: models.ReferenceTypeDeposit, ID: d.Id}

	// Credit the platform asset account for the gross amount.
	err := l.ledger.Credit(ctx, tx, ledger.PostParams{
		Type:      models.AccountTypeAsset,
		Amount:    d.Amount.Add(d.Fee),
		Currency:  currency,
		Reference: ref,
	})
	if err != nil {
		return err
	}

	// Credit the revenue account for the deposit fee.
	err = l.ledger.Credit(ctx, tx, ledger.PostParams{
		Type:      models.AccountTypeRevenue,
		Amount:    d.Fee,
		Currency:  currency,
		Reference: ref,
		MemberId:  d.MemberId,
	})
	if err != nil {
		return err
	}

	// Credit the member's main liability account for the net amount.
	return l.ledger.Credit(ctx, tx, ledger.PostParams{
		Type:      models.AccountTypeLiability,
		Amount:    d.Amount,
		Currency:  currency,
		Reference: ref,
		MemberId:  d.MemberId,
	})
}

func stateIn(s models.DepositState, states []models.DepositState) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
