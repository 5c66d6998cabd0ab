// Package prime adapts Coinbase Prime custody to the Gateway boundary.
package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/QuantaEx/qfinex/internal/custody"
	"github.com/QuantaEx/qfinex/internal/models"
)

type Gateway struct {
	client          client.RestClient
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
	portfolioId     string
}

func NewGateway(creds *credentials.Credentials, portfolioId string) (*Gateway, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Gateway{
		client:          restClient,
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
		portfolioId:     portfolioId,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			DualStack: true,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (g *Gateway) CreateAddress(ctx context.Context, wallet models.Wallet, ownerRef string) (*models.DepositAddress, error) {
	request := &wallets.CreateWalletAddressRequest{
		PortfolioId: g.portfolioId,
		WalletId:    wallet.GatewayWalletId,
		NetworkId:   networkId(wallet.CurrencyId),
	}

	response, err := g.walletsSvc.CreateWalletAddress(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet address: %w", err)
	}

	zap.L().Info("Deposit address created",
		zap.String("currency", wallet.CurrencyId),
		zap.String("owner", ownerRef),
		zap.String("address", response.Address))

	// Prime holds the keys; there is no per-address secret to hand out.
	return &models.DepositAddress{Address: response.Address}, nil
}

func (g *Gateway) BuildTransaction(ctx context.Context, wallet models.Wallet, instruction models.TransferInstruction) (*models.ChainTransaction, error) {
	// Currency ids follow ETH-ethereum-mainnet; a bare symbol defaults to
	// the asset's primary network on the Prime side.
	parts := strings.Split(instruction.CurrencyId, "-")
	symbol := parts[0]

	blockchainAddr := &model.BlockchainAddress{
		Address: instruction.ToAddress,
	}
	if len(parts) >= 3 {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   parts[1],
			Type: parts[2],
		}
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       g.portfolioId,
		SourceWalletId:    wallet.GatewayWalletId,
		Amount:            instruction.Amount.String(),
		IdempotencyKey:    uuid.New().String(),
		Symbol:            symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}

	response, err := g.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create outbound transaction",
			zap.String("wallet_id", wallet.GatewayWalletId),
			zap.String("amount", instruction.Amount.String()),
			zap.String("currency", instruction.CurrencyId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create outbound transaction: %w", err)
	}

	zap.L().Info("Outbound transaction created",
		zap.String("activity_id", response.ActivityId),
		zap.String("wallet_id", wallet.GatewayWalletId),
		zap.String("amount", instruction.Amount.String()),
		zap.String("destination", instruction.ToAddress))

	return &models.ChainTransaction{
		Hash:       response.ActivityId,
		ToAddress:  instruction.ToAddress,
		Amount:     instruction.Amount,
		CurrencyId: instruction.CurrencyId,
		Status:     models.TransferStatusSent,
	}, nil
}

// LoadBalance is not served by the transaction-scoped Prime surface this
// adapter uses, so every wallet reports unavailable and the spreader
// falls back to the most trusted wallet.
func (g *Gateway) LoadBalance(ctx context.Context, wallet models.Wallet) (decimal.Decimal, error) {
	return decimal.Zero, custody.ErrBalanceUnavailable
}

// PrepareDepositCollection is a no-op for Prime: gas management happens
// inside the custodian, so token collections need no manual pre-funding.
func (g *Gateway) PrepareDepositCollection(ctx context.Context, wallet models.Wallet, depositTx models.ChainTransaction, plan []models.TransferInstruction, currency models.Currency) ([]models.ChainTransaction, error) {
	return nil, custody.ErrNotSupported
}

func networkId(currencyId string) string {
	parts := strings.Split(currencyId, "-")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
