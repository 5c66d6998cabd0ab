package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/common"
	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/models"
)

func main() {
	memberId := flag.String("member", "", "Member id to query (required)")
	currencyId := flag.String("currency", "", "Limit output to one currency")
	reconcile := flag.Bool("reconcile", false, "Recompute balances from the operations log and repair the cache")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *memberId == "" {
		logger.Fatal("Missing required -member flag")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	services, err := common.InitializeCoreOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	currencies := services.Currencies.All()
	if *currencyId != "" {
		currency, err := services.Currencies.Get(*currencyId)
		if err != nil {
			logger.Fatal("Unknown currency", zap.String("currency", *currencyId), zap.Error(err))
		}
		currencies = []models.Currency{currency}
	}

	fmt.Printf("\nBalances for member %s\n", *memberId)
	fmt.Println("────────────────────────────────────────────────────────────")

	shown := 0
	for _, currency := range currencies {
		if *reconcile {
			for _, kind := range []models.AccountKind{models.AccountKindMain, models.AccountKindLocked} {
				if err := services.Ledger.ReconcileBalance(ctx, *memberId, currency, kind); err != nil {
					logger.Error("Reconciliation failed",
						zap.String("currency", currency.ID),
						zap.String("kind", string(kind)),
						zap.Error(err))
				}
			}
		}

		main, locked, err := services.Ledger.MemberBalance(ctx, *memberId, currency.ID)
		if err != nil {
			logger.Error("Failed to read balance",
				zap.String("currency", currency.ID),
				zap.Error(err))
			continue
		}
		if main.IsZero() && locked.IsZero() && *currencyId == "" {
			continue
		}

		fmt.Printf("%-10s  available: %20s  locked: %20s\n",
			currency.ID, main.String(), locked.String())
		shown++
	}

	if shown == 0 {
		fmt.Println("No balances found")
	}
	fmt.Println()
}
