package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/custody"
	"github.com/QuantaEx/qfinex/internal/custody/prime"
	"github.com/QuantaEx/qfinex/internal/database"
	"github.com/QuantaEx/qfinex/internal/deposit"
	"github.com/QuantaEx/qfinex/internal/ledger"
	"github.com/QuantaEx/qfinex/internal/models"
	"github.com/QuantaEx/qfinex/internal/withdraw"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Services wires the whole back-office core together.
type Services struct {
	DbService  *database.Service
	Ledger     *ledger.Ledger
	Currencies *config.CurrencyRegistry
	Wallets    *config.WalletRegistry
	Custody    *custody.Service
	Deposits   *deposit.Lifecycle
	Withdraws  *withdraw.Lifecycle
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	ledgerService := ledger.New(dbService.DB())
	if err := ledgerService.InitSchema(); err != nil {
		dbService.Close()
		return nil, fmt.Errorf("unable to initialize ledger schema: %w", err)
	}

	currencies, err := config.LoadCurrencies(cfg.Registry.CurrenciesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	wallets, err := config.LoadWallets(cfg.Registry.WalletsFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		dbService.Close()
		return nil, err
	}

	gateway, err := prime.NewGateway(creds, os.Getenv("PRIME_PORTFOLIO_ID"))
	if err != nil {
		dbService.Close()
		return nil, err
	}

	return &Services{
		DbService:  dbService,
		Ledger:     ledgerService,
		Currencies: currencies,
		Wallets:    wallets,
		Custody:    custody.NewService(gateway, wallets, currencies),
		Deposits:   deposit.NewLifecycle(dbService, ledgerService, currencies),
		Withdraws:  withdraw.NewLifecycle(dbService, ledgerService, currencies),
	}, nil
}

// InitializeCoreOnly wires the database, ledger and lifecycles without the
// custody gateway. Used by CLIs that never touch the chain, like balance
// queries and fiat withdrawal handling.
func InitializeCoreOnly(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	ledgerService := ledger.New(dbService.DB())
	if err := ledgerService.InitSchema(); err != nil {
		dbService.Close()
		return nil, fmt.Errorf("unable to initialize ledger schema: %w", err)
	}

	currencies, err := config.LoadCurrencies(cfg.Registry.CurrenciesFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	return &Services{
		DbService:  dbService,
		Ledger:     ledgerService,
		Currencies: currencies,
		Deposits:   deposit.NewLifecycle(dbService, ledgerService, currencies),
		Withdraws:  withdraw.NewLifecycle(dbService, ledgerService, currencies),
	}, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
