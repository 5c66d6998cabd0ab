// Package withdraw owns the withdraw state machine. Funds are locked on
// submit, released on cancel/reject/fail, and settled on success; every
// ledger effect commits in the same transaction as the state change,
// under the per-record lock. Events fired from a non-matching state (or
// with a failing guard) are silent no-ops.
package withdraw

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
	ErrAmountTooSmall      = errors.New("withdraw sum below currency minimum")
	ErrFeeExceedsSum       = errors.New("withdraw fee exceeds sum")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type Lifecycle struct {
	db         *database.Service
	ledger     *ledger.Ledger
	currencies *config.CurrencyRegistry
}

func NewLifecycle(db *database.Service, l *ledger.Ledger, currencies *config.CurrencyRegistry) *Lifecycle {
	return &Lifecycle{db: db, ledger: l, currencies: currencies}
}

// CreateParams describes a withdrawal request. Sum is the full amount the
// member pays; the fee is charged out of it and Amount = Sum - Fee is
// what leaves the platform.
type CreateParams struct {
	MemberId   string
	CurrencyId string
	Sum        decimal.Decimal
	RID        string
}

// Create validates and persists a new withdraw in the prepared state. No
// funds are locked until submit.
func (l *Lifecycle) Create(ctx context.Context, p CreateParams) (*models.Withdraw, error) {
	currency, err := l.currencies.Get(p.CurrencyId)
	if err != nil {
		return nil, err
	}

	if p.Sum.LessThan(currency.MinWithdrawAmount) {
		return nil, fmt.Errorf("%w: %s < %s %s", ErrAmountTooSmall,
			p.Sum, currency.MinWithdrawAmount, currency.ID)
	}
	fee := currency.WithdrawFee
	amount := p.Sum.Sub(fee)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: sum %s, fee %s", ErrFeeExceedsSum, p.Sum, fee)
	}

	now := time.Now().UTC()
	w := &models.Withdraw{
		Id:         uuid.New().String(),
		TID:        models.NewTID(),
		MemberId:   p.MemberId,
		CurrencyId: p.CurrencyId,
		Amount:     amount,
		Fee:        fee,
		Sum:        p.Sum,
		RID:        p.RID,
		State:      models.WithdrawPrepared,
		Errors:     []models.WithdrawError{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := l.db.InsertWithdraw(ctx, l.db.DB(), w); err != nil {
		return nil, err
	}

	zap.L().Info("Withdraw created",
		zap.String("tid", w.TID),
		zap.String("member_id", w.MemberId),
		zap.String("currency", w.CurrencyId),
		zap.String("sum", w.Sum.String()),
		zap.String("rid", w.RID))
	return w, nil
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*models.Withdraw, error) {
	return l.db.GetWithdraw(ctx, l.db.DB(), id)
}

func (l *Lifecycle) ListByState(ctx context.Context, state models.WithdrawState) ([]models.Withdraw, error) {
	return l.db.ListWithdrawsByState(ctx, state)
}

// Submit locks the member's funds: the full sum moves from the main to
// the locked liability account.
func (l *Lifecycle) Submit(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, l.submitEvent())
}

func (l *Lifecycle) submitEvent() event {
	return event{
		name:   "submit",
		from:   []models.WithdrawState{models.WithdrawPrepared},
		to:     models.WithdrawSubmitted,
		effect: l.lockFunds,
	}
}

// Cancel voids the withdrawal. The lock is reversed unless the origin
// state was prepared, where funds were never locked.
func (l *Lifecycle) Cancel(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name: "cancel",
		from: []models.WithdrawState{models.WithdrawPrepared, models.WithdrawSubmitted, models.WithdrawAccepted},
		to:   models.WithdrawCanceled,
		effect: func(ctx context.Context, tx *sql.Tx, w *models.Withdraw, c models.Currency, from models.WithdrawState) error {
			if from == models.WithdrawPrepared {
				return nil
			}
			return l.unlockFunds(ctx, tx, w, c, from)
		},
	})
}

// Accept is the administrative approval gate. No ledger effect.
func (l *Lifecycle) Accept(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, l.acceptEvent())
}

func (l *Lifecycle) acceptEvent() event {
	return event{
		name: "accept",
		from: []models.WithdrawState{models.WithdrawSubmitted},
		to:   models.WithdrawAccepted,
	}
}

// Reject refuses the withdrawal and always reverses the lock.
func (l *Lifecycle) Reject(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name:   "reject",
		from:   []models.WithdrawState{models.WithdrawSubmitted, models.WithdrawAccepted, models.WithdrawConfirming},
		to:     models.WithdrawRejected,
		effect: l.unlockFunds,
	})
}

// Process marks the withdrawal eligible for external submission. The
// actual gateway call is the dispatcher's job, not a ledger effect.
func (l *Lifecycle) Process(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, l.processEvent())
}

func (l *Lifecycle) processEvent() event {
	return event{
		name: "process",
		from: []models.WithdrawState{models.WithdrawAccepted, models.WithdrawSkipped, models.WithdrawErrored},
		to:   models.WithdrawProcessing,
	}
}

// Load attaches an externally observed transaction id and moves the
// withdrawal straight to confirming. Coin currencies only.
func (l *Lifecycle) Load(ctx context.Context, id, txid string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name: "load",
		from: []models.WithdrawState{models.WithdrawAccepted},
		to:   models.WithdrawConfirming,
		guard: func(w *models.Withdraw, c models.Currency) bool {
			return c.Coin() && txid != ""
		},
		mutate: func(w *models.Withdraw) {
			w.TxId = txid
		},
	})
}

// Dispatch records that the outbound transaction was issued. A coin
// withdrawal must carry its transaction id; fiat withdrawals have none by
// nature.
func (l *Lifecycle) Dispatch(ctx context.Context, id, txid string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name: "dispatch",
		from: []models.WithdrawState{models.WithdrawProcessing},
		to:   models.WithdrawConfirming,
		guard: func(w *models.Withdraw, c models.Currency) bool {
			return c.Fiat() || txid != "" || w.TxId != ""
		},
		mutate: func(w *models.Withdraw) {
			if txid != "" {
				w.TxId = txid
			}
		},
	})
}

// Success settles the withdrawal: the locked sum is debited, the fee is
// credited to revenue, and the outgoing amount leaves the asset account.
func (l *Lifecycle) Success(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name: "success",
		from: []models.WithdrawState{models.WithdrawConfirming, models.WithdrawErrored},
		to:   models.WithdrawSucceed,
		guard: func(w *models.Withdraw, c models.Currency) bool {
			return c.Fiat() || w.TxId != ""
		},
		effect: l.recordCompleteOperations,
	})
}

// Skip puts the withdrawal on temporary hold, e.g. when hot-wallet
// liquidity is insufficient. No ledger effect; funds stay locked.
func (l *Lifecycle) Skip(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name: "skip",
		from: []models.WithdrawState{models.WithdrawProcessing},
		to:   models.WithdrawSkipped,
	})
}

// Fail abandons the withdrawal and reverses the lock.
func (l *Lifecycle) Fail(ctx context.Context, id string) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name:   "fail",
		from:   []models.WithdrawState{models.WithdrawProcessing, models.WithdrawConfirming, models.WithdrawErrored},
		to:     models.WithdrawFailed,
		effect: l.unlockFunds,
	})
}

// Err parks the withdrawal in the retry staging state and appends the
// cause to the structured error log. Does not alter ledger state.
func (l *Lifecycle) Err(ctx context.Context, id string, cause error) (bool, *models.Withdraw, error) {
	return l.fire(ctx, id, event{
		name: "err",
		from: []models.WithdrawState{models.WithdrawProcessing},
		to:   models.WithdrawErrored,
		mutate: func(w *models.Withdraw) {
			w.Errors = append(w.Errors, models.WithdrawError{
				Class:   fmt.Sprintf("%T", cause),
				Message: cause.Error(),
			})
		},
	})
}

// Audit runs the quick-withdraw evaluation under one record lock: the
// withdrawal is accepted, and if the member's trailing totals stay under
// the currency limits and the currency is a coin, advanced straight to
// processing.
func (l *Lifecycle) Audit(ctx context.Context, id string) (*models.Withdraw, error) {
	release := l.db.LockRecord(models.Reference{Type: models.ReferenceTypeWithdraw, ID: id})
	defer release()

	applied, w, err := l.fireLocked(ctx, id, l.acceptEvent())
	if err != nil {
		return w, err
	}
	if !applied {
		return w, nil
	}

	currency, err := l.currencies.Get(w.CurrencyId)
	if err != nil {
		return w, err
	}

	quick, err := l.quick(ctx, w, currency)
	if err != nil {
		return w, err
	}
	if quick && currency.Coin() {
		_, w, err = l.fireLocked(ctx, id, l.processEvent())
		if err != nil {
			return w, err
		}
	}
	return w, nil
}

// quick reports whether this withdrawal plus the member's in-flight and
// settled withdrawals of the trailing 24h and 72h windows stay under the
// currency limits.
func (l *Lifecycle) quick(ctx context.Context, w *models.Withdraw, currency models.Currency) (bool, error) {
	now := time.Now().UTC()

	sum24h, err := l.db.SumWithdrawsSince(ctx, w.CurrencyId, w.MemberId, w.Id, now.Add(-24*time.Hour))
	if err != nil {
		return false, err
	}
	sum72h, err := l.db.SumWithdrawsSince(ctx, w.CurrencyId, w.MemberId, w.Id, now.Add(-72*time.Hour))
	if err != nil {
		return false, err
	}

	return sum24h.Add(w.Sum).LessThanOrEqual(currency.WithdrawLimit24h) &&
		sum72h.Add(w.Sum).LessThanOrEqual(currency.WithdrawLimit72h), nil
}

type event struct {
	name   string
	from   []models.WithdrawState
	to     models.WithdrawState
	guard  func(w *models.Withdraw, c models.Currency) bool
	mutate func(w *models.Withdraw)
	effect func(ctx context.Context, tx *sql.Tx, w *models.Withdraw, c models.Currency, from models.WithdrawState) error
}

func (l *Lifecycle) fire(ctx context.Context, id string, ev event) (bool, *models.Withdraw, error) {
	release := l.db.LockRecord(models.Reference{Type: models.ReferenceTypeWithdraw, ID: id})
	defer release()
	return l.fireLocked(ctx, id, ev)
}

func (l *Lifecycle) fireLocked(ctx context.Context, id string, ev event) (bool, *models.Withdraw, error) {
	w, err := l.db.GetWithdraw(ctx, l.db.DB(), id)
	if err != nil {
		return false, nil, err
	}

	currency, err := l.currencies.Get(w.CurrencyId)
	if err != nil {
		return false, w, err
	}

	if !stateIn(w.State, ev.from) || (ev.guard != nil && !ev.guard(w, currency)) {
		zap.L().Debug("Withdraw transition not applicable",
			zap.String("tid", w.TID),
			zap.String("event", ev.name),
			zap.String("state", string(w.State)))
		return false, w, nil
	}

	prev := *w
	from := w.State
	if ev.mutate != nil {
		ev.mutate(w)
	}
	w.State = ev.to
	w.UpdatedAt = time.Now().UTC()
	if w.Completed() && w.CompletedAt == nil {
		t := w.UpdatedAt
		w.CompletedAt = &t
	}

	err = l.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if err := l.db.UpdateWithdraw(ctx, tx, w); err != nil {
			return err
		}
		if ev.effect != nil {
			return ev.effect(ctx, tx, w, currency, from)
		}
		return nil
	})
	if err != nil {
		*w = prev
		return false, w, fmt.Errorf("withdraw %s failed: %w", ev.name, err)
	}

	zap.L().Info("Withdraw transition applied",
		zap.String("tid", w.TID),
		zap.String("event", ev.name),
		zap.String("from", string(from)),
		zap.String("to", string(w.State)))
	return true, w, nil
}

func (l *Lifecycle) lockFunds(ctx context.Context, tx *sql.Tx, w *models.Withdraw, c models.Currency, _ models.WithdrawState) error {
	main, _, err := l.ledger.MemberBalanceTx(ctx, tx, w.MemberId, w.CurrencyId)
	if err != nil {
		return err
	}
	if main.LessThan(w.Sum) {
		return fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance, main, w.Sum, w.CurrencyId)
	}

	return l.ledger.Transfer(ctx, tx, ledger.TransferParams{
		Amount:    w.Sum,
		Currency:  c,
		Reference: models.Reference{Type: models.ReferenceTypeWithdraw, ID: w.Id},
		FromKind:  models.AccountKindMain,
		ToKind:    models.AccountKindLocked,
		MemberId:  w.MemberId,
	})
}

func (l *Lifecycle) unlockFunds(ctx context.Context, tx *sql.Tx, w *models.Withdraw, c models.Currency, _ models.WithdrawState) error {
	return l.ledger.Transfer(ctx, tx, ledger.TransferParams{
		Amount:    w.Sum,
		Currency:  c,
		Reference: models.Reference{Type: models.ReferenceTypeWithdraw, ID: w.Id},
		FromKind:  models.AccountKindLocked,
		ToKind:    models.AccountKindMain,
		MemberId:  w.MemberId,
	})
}

func (l *Lifecycle) recordCompleteOperations(ctx context.Context, tx *sql.Tx, w *models.Withdraw, c models.Currency, _ models.WithdrawState) error {
	ref := models.Reference{Type: models.ReferenceTypeWithdraw, ID: w.Id}

	// Debit the member's locked liability for the full sum.
	err := l.ledger.Debit(ctx, tx, ledger.PostParams{
		Type:      models.AccountTypeLiability,
		Kind:      models.AccountKindLocked,
		Amount:    w.Sum,
		Currency:  c,
		Reference: ref,
		MemberId:  w.MemberId,
	})
	if err != nil {
		return err
	}

	// Credit the revenue account for the withdraw fee.
	err = l.ledger.Credit(ctx, tx, ledger.PostParams{
		Type:      models.AccountTypeRevenue,
		Amount:    w.Fee,
		Currency:  c,
		Reference: ref,
		MemberId:  w.MemberId,
	})
	if err != nil {
		return err
	}

	// Debit the platform asset account for the amount actually sent out.
	return l.ledger.Debit(ctx, tx, ledger.PostParams{
		Type:      models.AccountTypeAsset,
		Amount:    w.Amount,
		Currency:  c,
		Reference: ref,
	})
}

func stateIn(s models.WithdrawState, states []models.WithdrawState) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
