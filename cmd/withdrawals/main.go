package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/common"
	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/withdraw"
)

func main() {
	memberId := flag.String("member", "", "Member id (required)")
	currencyId := flag.String("currency", "", "Currency id, e.g. eth (required)")
	sumStr := flag.String("sum", "", "Total amount the member pays, fee included (required)")
	rid := flag.String("rid", "", "Destination address or account (required)")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *memberId == "" || *currencyId == "" || *sumStr == "" || *rid == "" {
		logger.Fatal("Missing required flags: -member, -currency, -sum, -rid")
	}

	sum, err := decimal.NewFromString(*sumStr)
	if err != nil {
		logger.Fatal("Invalid sum", zap.String("sum", *sumStr), zap.Error(err))
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

	w, err := services.Withdraws.Create(ctx, withdraw.CreateParams{
		MemberId:   *memberId,
		CurrencyId: *currencyId,
		Sum:        sum,
		RID:        *rid,
	})
	if err != nil {
		logger.Fatal("Failed to create withdrawal", zap.Error(err))
	}

	tid := w.TID
	applied, w, err := services.Withdraws.Submit(ctx, w.Id)
	if err != nil {
		logger.Fatal("Failed to submit withdrawal",
			zap.String("tid", tid),
			zap.Error(err))
	}
	if !applied {
		logger.Fatal("Withdrawal could not be submitted",
			zap.String("tid", w.TID),
			zap.String("state", string(w.State)))
	}

	fmt.Printf("\nWithdrawal submitted\n")
	fmt.Printf("  TID:      %s\n", w.TID)
	fmt.Printf("  Currency: %s\n", w.CurrencyId)
	fmt.Printf("  Sum:      %s (fee %s, sends %s)\n", w.Sum.String(), w.Fee.String(), w.Amount.String())
	fmt.Printf("  To:       %s\n", w.RID)
	fmt.Printf("  State:    %s\n\n", w.State)

	zap.L().Info("Withdrawal submitted and awaiting audit",
		zap.String("tid", w.TID),
		zap.String("member_id", w.MemberId))
}
