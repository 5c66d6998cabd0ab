package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/common"
	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/database"
	"github.com/QuantaEx/qfinex/internal/deposit"
)

// Records an observed incoming transfer and credits the member. Deposit
// detection normally feeds this path; the CLI covers fiat deposits and
// manual intervention.
func main() {
	memberId := flag.String("member", "", "Member id (required)")
	currencyId := flag.String("currency", "", "Currency id, e.g. eth (required)")
	amountStr := flag.String("amount", "", "Gross observed amount (required)")
	address := flag.String("address", "", "Deposit address the funds arrived at")
	txid := flag.String("txid", "", "On-chain transaction id")
	txout := flag.Int64("txout", 0, "Transaction output index")
	accept := flag.Bool("accept", true, "Accept the deposit immediately after creating it")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *memberId == "" || *currencyId == "" || *amountStr == "" {
		logger.Fatal("Missing required flags: -member, -currency, -amount")
	}

	amount, err := decimal.NewFromString(*amountStr)
	if err != nil {
		logger.Fatal("Invalid amount", zap.String("amount", *amountStr), zap.Error(err))
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

	d, err := services.Deposits.Create(ctx, deposit.CreateParams{
		MemberId:   *memberId,
		CurrencyId: *currencyId,
		Amount:     amount,
		Address:    *address,
		TxId:       *txid,
		TxOut:      *txout,
	})
	if errors.Is(err, database.ErrDuplicateReference) {
		logger.Fatal("Transaction already recorded",
			zap.String("txid", *txid),
			zap.Int64("txout", *txout))
	}
	if err != nil {
		logger.Fatal("Failed to create deposit", zap.Error(err))
	}

	if *accept {
		applied, accepted, err := services.Deposits.Accept(ctx, d.Id)
		if err != nil {
			logger.Fatal("Failed to accept deposit",
				zap.String("tid", d.TID),
				zap.Error(err))
		}
		if !applied {
			logger.Fatal("Deposit could not be accepted",
				zap.String("tid", d.TID),
				zap.String("state", string(accepted.State)))
		}
		d = accepted
	}

	fmt.Printf("\nDeposit recorded\n")
	fmt.Printf("  TID:      %s\n", d.TID)
	fmt.Printf("  Currency: %s\n", d.CurrencyId)
	fmt.Printf("  Amount:   %s (fee %s)\n", d.Amount.String(), d.Fee.String())
	fmt.Printf("  State:    %s\n\n", d.State)
}
