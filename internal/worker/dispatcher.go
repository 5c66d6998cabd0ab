package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/custody"
	"github.com/QuantaEx/qfinex/internal/models"
	"github.com/QuantaEx/qfinex/internal/withdraw"
)

// Dispatcher drives submitted withdrawals through the audit gate and
// sends processing coin withdrawals through the custody gateway. Fiat
// withdrawals stop at processing and wait for an operator.
type Dispatcher struct {
	withdraws  *withdraw.Lifecycle
	custody    *custody.Service
	currencies *config.CurrencyRegistry
	interval   time.Duration
	stopChan   chan struct{}
	doneChan   chan struct{}
}

func NewDispatcher(withdraws *withdraw.Lifecycle, custodySvc *custody.Service, currencies *config.CurrencyRegistry, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		withdraws:  withdraws,
		custody:    custodySvc,
		currencies: currencies,
		interval:   interval,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	zap.L().Info("Starting withdraw dispatcher", zap.Duration("interval", d.interval))
	go d.loop(ctx)
}

func (d *Dispatcher) Stop() {
	zap.L().Info("Stopping withdraw dispatcher")
	close(d.stopChan)
	<-d.doneChan
	zap.L().Info("Withdraw dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			d.runPass(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) runPass(ctx context.Context) {
	d.auditSubmitted(ctx)
	d.sendProcessing(ctx)
}

func (d *Dispatcher) auditSubmitted(ctx context.Context) {
	withdraws, err := d.withdraws.ListByState(ctx, models.WithdrawSubmitted)
	if err != nil {
		zap.L().Error("Failed to list submitted withdraws", zap.Error(err))
		return
	}

	for i := range withdraws {
		w := &withdraws[i]
		if _, err := d.withdraws.Audit(ctx, w.Id); err != nil {
			zap.L().Error("Withdraw audit failed",
				zap.String("tid", w.TID),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) sendProcessing(ctx context.Context) {
	withdraws, err := d.withdraws.ListByState(ctx, models.WithdrawProcessing)
	if err != nil {
		zap.L().Error("Failed to list processing withdraws", zap.Error(err))
		return
	}

	for i := range withdraws {
		w := &withdraws[i]
		if err := d.send(ctx, w); err != nil {
			zap.L().Error("Withdraw dispatch failed",
				zap.String("tid", w.TID),
				zap.String("currency", w.CurrencyId),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, w *models.Withdraw) error {
	currency, err := d.currencies.Get(w.CurrencyId)
	if err != nil {
		return err
	}
	if !currency.Coin() {
		return nil
	}

	tx, err := d.custody.BuildWithdrawal(ctx, w)
	if err != nil {
		// Park the withdrawal in errored; the next pass retries it via
		// process after the operator or scheduler clears the cause.
		if _, _, eerr := d.withdraws.Err(ctx, w.Id, err); eerr != nil {
			zap.L().Error("Failed to record withdraw error",
				zap.String("tid", w.TID), zap.Error(eerr))
		}
		return err
	}

	applied, _, err := d.withdraws.Dispatch(ctx, w.Id, tx.Hash)
	if err != nil {
		return err
	}
	if applied {
		zap.L().Info("Withdraw dispatched",
			zap.String("tid", w.TID),
			zap.String("txid", tx.Hash),
			zap.String("amount", w.Amount.String()))
	}
	return nil
}
