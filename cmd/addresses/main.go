package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/common"
	"github.com/QuantaEx/qfinex/internal/config"
)

func main() {
	memberId := flag.String("member", "", "Member id to create the address for (required)")
	currencyId := flag.String("currency", "", "Currency id, e.g. eth (required)")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *memberId == "" || *currencyId == "" {
		logger.Fatal("Missing required flags: -member, -currency")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	addr, err := services.Custody.CreateAddress(ctx, *currencyId, *memberId)
	if err != nil {
		logger.Fatal("Failed to create deposit address",
			zap.String("member_id", *memberId),
			zap.String("currency", *currencyId),
			zap.Error(err))
	}

	fmt.Printf("\nDeposit address created\n")
	fmt.Printf("  Member:   %s\n", *memberId)
	fmt.Printf("  Currency: %s\n", *currencyId)
	fmt.Printf("  Address:  %s\n\n", addr.Address)
}
