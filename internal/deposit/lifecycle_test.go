package deposit

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/database"
	"github.com/QuantaEx/qfinex/internal/ledger"
	"github.com/QuantaEx/qfinex/internal/models"
)

func setupLifecycle(t *testing.T) (*Lifecycle, *ledger.Ledger, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	service, err := database.NewServiceWithDB(db)
	if err != nil {
		t.Fatalf("Failed to initialize database service: %v", err)
	}

	l := ledger.New(db)
	if err := l.InitSchema(); err != nil {
		t.Fatalf("Failed to create ledger schema: %v", err)
	}

	currencies := config.NewCurrencyRegistry(
		models.Currency{
			ID:               "btc",
			Type:             models.CurrencyTypeCoin,
			DepositFee:       decimal.RequireFromString("0.0005"),
			MinDepositAmount: decimal.RequireFromString("0.001"),
			Enabled:          true,
		},
		models.Currency{
			ID:      "usd",
			Type:    models.CurrencyTypeFiat,
			Enabled: true,
		},
	)

	lifecycle := NewLifecycle(service, l, currencies)
	cleanup := func() {
		db.Close()
	}
	return lifecycle, l, cleanup
}

func createTestDeposit(t *testing.T, lifecycle *Lifecycle, amount string) *models.Deposit {
	t.Helper()
	d, err := lifecycle.Create(context.Background(), CreateParams{
		MemberId:   "member1",
		CurrencyId: "btc",
		Amount:     decimal.RequireFromString(amount),
		Address:    "deposit-addr",
		TxId:       "tx-" + amount,
		TxOut:      0,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return d
}

func TestCreate_ChargesFee(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	d := createTestDeposit(t, lifecycle, "1.0005")

	if !d.Amount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected net amount 1, got %s", d.Amount.String())
	}
	if !d.Fee.Equal(decimal.RequireFromString("0.0005")) {
		t.Errorf("Expected fee 0.0005, got %s", d.Fee.String())
	}
	if d.State != models.DepositSubmitted {
		t.Errorf("Expected state submitted, got %s", d.State)
	}
	if d.TID == "" {
		t.Error("Expected TID to be assigned")
	}
	if d.CompletedAt != nil {
		t.Error("Expected no completion timestamp on a submitted deposit")
	}
}

func TestCreate_BelowMinimumRejected(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	_, err := lifecycle.Create(context.Background(), CreateParams{
		MemberId:   "member1",
		CurrencyId: "btc",
		Amount:     decimal.RequireFromString("0.0006"),
		TxId:       "tx-small",
	})
	if !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("Expected ErrAmountTooSmall, got %v", err)
	}
}

func TestCreate_UnknownCurrencyRejected(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	_, err := lifecycle.Create(context.Background(), CreateParams{
		MemberId:   "member1",
		CurrencyId: "doge",
		Amount:     decimal.NewFromInt(1),
	})
	if err == nil {
		t.Error("Expected error for unknown currency")
	}
}

func TestCreate_DuplicateTxRejected(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	createTestDeposit(t, lifecycle, "1.0005")

	_, err := lifecycle.Create(context.Background(), CreateParams{
		MemberId:   "member2",
		CurrencyId: "btc",
		Amount:     decimal.RequireFromString("1.0005"),
		TxId:       "tx-1.0005",
		TxOut:      0,
	})
	if !errors.Is(err, database.ErrDuplicateReference) {
		t.Errorf("Expected ErrDuplicateReference, got %v", err)
	}
}

func TestAccept_CreditsLedger(t *testing.T) {
	lifecycle, l, cleanup := setupLifecycle(t)
	defer cleanup()

	ctx := context.Background()
	d := createTestDeposit(t, lifecycle, "1.0005")

	applied, d, err := lifecycle.Accept(ctx, d.Id)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if !applied {
		t.Fatal("Expected accept to apply")
	}
	if d.State != models.DepositAccepted {
		t.Errorf("Expected state accepted, got %s", d.State)
	}
	if d.CompletedAt == nil {
		t.Error("Expected completion timestamp after accept")
	}

	currency := models.Currency{ID: "btc", Type: models.CurrencyTypeCoin}

	asset, err := l.Balance(ctx, models.AccountTypeAsset, models.AccountKindMain, currency, "")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !asset.Equal(decimal.RequireFromString("1.0005")) {
		t.Errorf("Expected asset balance 1.0005, got %s", asset.String())
	}

	revenue, err := l.Balance(ctx, models.AccountTypeRevenue, models.AccountKindMain, currency, "member1")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !revenue.Equal(decimal.RequireFromString("0.0005")) {
		t.Errorf("Expected revenue balance 0.0005, got %s", revenue.String())
	}

	main, _, err := l.MemberBalance(ctx, "member1", "btc")
	if err != nil {
		t.Fatalf("MemberBalance failed: %v", err)
	}
	if !main.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected member balance 1, got %s", main.String())
	}
}

func TestAccept_IsIdempotentNoOp(t *testing.T) {
	lifecycle, l, cleanup := setupLifecycle(t)
	defer cleanup()

	ctx := context.Background()
	d := createTestDeposit(t, lifecycle, "1.0005")

	applied, _, err := lifecycle.Accept(ctx, d.Id)
	if err != nil || !applied {
		t.Fatalf("First accept failed: applied=%v err=%v", applied, err)
	}

	// Second accept is a silent no-op and must not double-credit.
	applied, d, err = lifecycle.Accept(ctx, d.Id)
	if err != nil {
		t.Fatalf("Second accept errored: %v", err)
	}
	if applied {
		t.Error("Expected second accept to be a no-op")
	}
	if d.State != models.DepositAccepted {
		t.Errorf("Expected state accepted, got %s", d.State)
	}

	main, _, err := l.MemberBalance(ctx, "member1", "btc")
	if err != nil {
		t.Fatalf("MemberBalance failed: %v", err)
	}
	if !main.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected member balance 1 after repeated accept, got %s", main.String())
	}
}

func TestCancelAndReject_OnlyFromSubmitted(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	ctx := context.Background()

	d := createTestDeposit(t, lifecycle, "1.0005")
	applied, d, err := lifecycle.Cancel(ctx, d.Id)
	if err != nil || !applied {
		t.Fatalf("Cancel failed: applied=%v err=%v", applied, err)
	}
	if d.State != models.DepositCanceled {
		t.Errorf("Expected state canceled, got %s", d.State)
	}

	// Reject after cancel is a no-op.
	applied, d, err = lifecycle.Reject(ctx, d.Id)
	if err != nil {
		t.Fatalf("Reject errored: %v", err)
	}
	if applied {
		t.Error("Expected reject on canceled deposit to be a no-op")
	}
	if d.State != models.DepositCanceled {
		t.Errorf("Expected state canceled, got %s", d.State)
	}
}

func TestSkipAndDispatch(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	ctx := context.Background()
	d := createTestDeposit(t, lifecycle, "1.0005")

	// Skip requires accepted.
	applied, _, err := lifecycle.Skip(ctx, d.Id)
	if err != nil {
		t.Fatalf("Skip errored: %v", err)
	}
	if applied {
		t.Error("Expected skip on submitted deposit to be a no-op")
	}

	if _, _, err := lifecycle.Accept(ctx, d.Id); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	applied, d, err = lifecycle.Skip(ctx, d.Id)
	if err != nil || !applied {
		t.Fatalf("Skip failed: applied=%v err=%v", applied, err)
	}
	if d.State != models.DepositSkipped {
		t.Errorf("Expected state skipped, got %s", d.State)
	}

	// Dispatch is allowed from skipped.
	applied, d, err = lifecycle.Dispatch(ctx, d.Id)
	if err != nil || !applied {
		t.Fatalf("Dispatch failed: applied=%v err=%v", applied, err)
	}
	if d.State != models.DepositCollected {
		t.Errorf("Expected state collected, got %s", d.State)
	}
}

func TestSetSpread_Persists(t *testing.T) {
	lifecycle, _, cleanup := setupLifecycle(t)
	defer cleanup()

	ctx := context.Background()
	d := createTestDeposit(t, lifecycle, "1.0005")

	plan := []models.TransferInstruction{
		{ToAddress: "hot-1", Amount: decimal.NewFromInt(1), CurrencyId: "btc", Status: models.TransferStatusPending},
	}
	if err := lifecycle.SetSpread(ctx, d, plan); err != nil {
		t.Fatalf("SetSpread failed: %v", err)
	}

	reloaded, err := lifecycle.Get(ctx, d.Id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(reloaded.Spread) != 1 {
		t.Fatalf("Expected 1 spread instruction, got %d", len(reloaded.Spread))
	}
	if reloaded.Spread[0].ToAddress != "hot-1" {
		t.Errorf("Expected spread target hot-1, got %s", reloaded.Spread[0].ToAddress)
	}
}
