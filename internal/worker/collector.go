// Package worker runs the background passes: deposit collection and
// withdrawal dispatch. Each worker polls on its own ticker and stops
// cleanly via Stop or context cancellation.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/custody"
	"github.com/QuantaEx/qfinex/internal/deposit"
	"github.com/QuantaEx/qfinex/internal/models"
)

// Collector moves accepted coin deposits into custody: it computes and
// persists the spread, pre-funds token collections, issues the collection
// transactions and dispatches the deposit.
type Collector struct {
	deposits   *deposit.Lifecycle
	custody    *custody.Service
	currencies *config.CurrencyRegistry
	interval   time.Duration
	stopChan   chan struct{}
	doneChan   chan struct{}
}

func NewCollector(deposits *deposit.Lifecycle, custodySvc *custody.Service, currencies *config.CurrencyRegistry, interval time.Duration) *Collector {
	return &Collector{
		deposits:   deposits,
		custody:    custodySvc,
		currencies: currencies,
		interval:   interval,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	zap.L().Info("Starting deposit collector", zap.Duration("interval", c.interval))
	go c.loop(ctx)
}

func (c *Collector) Stop() {
	zap.L().Info("Stopping deposit collector")
	close(c.stopChan)
	<-c.doneChan
	zap.L().Info("Deposit collector stopped")
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			c.runPass(ctx)
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) runPass(ctx context.Context) {
	deposits, err := c.deposits.ListByState(ctx, models.DepositAccepted)
	if err != nil {
		zap.L().Error("Failed to list accepted deposits", zap.Error(err))
		return
	}

	for i := range deposits {
		d := &deposits[i]
		if err := c.collect(ctx, d); err != nil {
			zap.L().Error("Deposit collection failed",
				zap.String("tid", d.TID),
				zap.String("currency", d.CurrencyId),
				zap.Error(err))
		}
	}
}

func (c *Collector) collect(ctx context.Context, d *models.Deposit) error {
	currency, err := c.currencies.Get(d.CurrencyId)
	if err != nil {
		return err
	}
	// Fiat deposits have nothing to move on-chain.
	if !currency.Coin() {
		return nil
	}

	if len(d.Spread) == 0 {
		plan, err := c.custody.SpreadDeposit(ctx, d)
		if err != nil {
			return err
		}
		if len(plan) == 0 {
			// Below the collection minimum; try again once more funds
			// arrive at the address.
			zap.L().Debug("Deposit below collection minimum, leaving for later",
				zap.String("tid", d.TID),
				zap.String("amount", d.Amount.String()))
			return nil
		}
		if err := c.deposits.SetSpread(ctx, d, plan); err != nil {
			return err
		}
	}

	if _, err := c.custody.DepositCollectionFees(ctx, d); err != nil && !errors.Is(err, custody.ErrNotSupported) {
		return err
	}

	if _, err := c.custody.Collect(ctx, d); err != nil {
		// Persist the partially sent plan so the next pass resumes where
		// this one stopped.
		if serr := c.deposits.SetSpread(ctx, d, d.Spread); serr != nil {
			zap.L().Error("Failed to persist partial spread",
				zap.String("tid", d.TID), zap.Error(serr))
		}
		return err
	}
	if err := c.deposits.SetSpread(ctx, d, d.Spread); err != nil {
		return err
	}

	applied, _, err := c.deposits.Dispatch(ctx, d.Id)
	if err != nil {
		return err
	}
	if applied {
		zap.L().Info("Deposit collected",
			zap.String("tid", d.TID),
			zap.String("currency", d.CurrencyId),
			zap.String("amount", d.Amount.String()))
	}
	return nil
}
