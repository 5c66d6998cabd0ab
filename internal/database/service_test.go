package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/QuantaEx/qfinex/internal/models"
)

func setupTestService(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	service, err := NewServiceWithDB(db)
	if err != nil {
		t.Fatalf("Failed to initialize service: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return service, cleanup
}

func sampleDeposit(txid string) *models.Deposit {
	now := time.Now().UTC()
	return &models.Deposit{
		Id:         "dep-" + txid,
		TID:        "TID" + txid,
		MemberId:   "member1",
		CurrencyId: "btc",
		Amount:     decimal.RequireFromString("1.5"),
		Fee:        decimal.RequireFromString("0.001"),
		Address:    "addr",
		TxId:       txid,
		TxOut:      0,
		State:      models.DepositSubmitted,
		Spread:     []models.TransferInstruction{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func sampleWithdraw(id string) *models.Withdraw {
	now := time.Now().UTC()
	return &models.Withdraw{
		Id:         id,
		TID:        "TID" + id,
		MemberId:   "member1",
		CurrencyId: "btc",
		Amount:     decimal.RequireFromString("0.99"),
		Fee:        decimal.RequireFromString("0.01"),
		Sum:        decimal.NewFromInt(1),
		RID:        "dest",
		State:      models.WithdrawPrepared,
		Errors:     []models.WithdrawError{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestInsertAndGetDeposit(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	d := sampleDeposit("tx1")
	if err := service.InsertDeposit(ctx, service.DB(), d); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	got, err := service.GetDeposit(ctx, service.DB(), d.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if got.TID != d.TID {
		t.Errorf("Expected TID %s, got %s", d.TID, got.TID)
	}
	if !got.Amount.Equal(d.Amount) {
		t.Errorf("Expected amount %s, got %s", d.Amount.String(), got.Amount.String())
	}
	if got.State != models.DepositSubmitted {
		t.Errorf("Expected state submitted, got %s", got.State)
	}
	if got.CompletedAt != nil {
		t.Error("Expected nil completed_at")
	}
}

func TestGetDeposit_NotFound(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	_, err := service.GetDeposit(context.Background(), service.DB(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInsertDeposit_DuplicateTxRejected(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.InsertDeposit(ctx, service.DB(), sampleDeposit("tx1")); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	dup := sampleDeposit("tx1")
	dup.Id = "dep-other"
	dup.TID = "TIDother"
	err := service.InsertDeposit(ctx, service.DB(), dup)
	if !errors.Is(err, ErrDuplicateReference) {
		t.Errorf("Expected ErrDuplicateReference, got %v", err)
	}
}

func TestInsertDeposit_EmptyTxidNotUnique(t *testing.T) {
	// Fiat deposits have no txid; two of them must coexist.
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	first := sampleDeposit("")
	first.Id, first.TID = "dep-a", "TIDa"
	second := sampleDeposit("")
	second.Id, second.TID = "dep-b", "TIDb"

	if err := service.InsertDeposit(ctx, service.DB(), first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := service.InsertDeposit(ctx, service.DB(), second); err != nil {
		t.Errorf("Second insert with empty txid failed: %v", err)
	}
}

func TestGetDepositByTx(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	d := sampleDeposit("tx9")
	if err := service.InsertDeposit(ctx, service.DB(), d); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	got, err := service.GetDepositByTx(ctx, "btc", "tx9", 0)
	if err != nil {
		t.Fatalf("GetDepositByTx failed: %v", err)
	}
	if got.Id != d.Id {
		t.Errorf("Expected id %s, got %s", d.Id, got.Id)
	}

	if _, err := service.GetDepositByTx(ctx, "btc", "tx9", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for wrong txout, got %v", err)
	}
}

func TestUpdateDepositStateAndList(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	d := sampleDeposit("tx1")
	if err := service.InsertDeposit(ctx, service.DB(), d); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	now := time.Now().UTC()
	d.State = models.DepositAccepted
	d.UpdatedAt = now
	d.CompletedAt = &now
	if err := service.UpdateDepositState(ctx, service.DB(), d); err != nil {
		t.Fatalf("UpdateDepositState failed: %v", err)
	}

	accepted, err := service.ListDepositsByState(ctx, models.DepositAccepted)
	if err != nil {
		t.Fatalf("ListDepositsByState failed: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("Expected 1 accepted deposit, got %d", len(accepted))
	}
	if accepted[0].CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	submitted, err := service.ListDepositsByState(ctx, models.DepositSubmitted)
	if err != nil {
		t.Fatalf("ListDepositsByState failed: %v", err)
	}
	if len(submitted) != 0 {
		t.Errorf("Expected no submitted deposits, got %d", len(submitted))
	}
}

func TestUpdateDepositSpread(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	d := sampleDeposit("tx1")
	if err := service.InsertDeposit(ctx, service.DB(), d); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	d.Spread = []models.TransferInstruction{
		{ToAddress: "hot-1", Amount: decimal.RequireFromString("1.5"), CurrencyId: "btc", Status: models.TransferStatusPending},
	}
	if err := service.UpdateDepositSpread(ctx, d); err != nil {
		t.Fatalf("UpdateDepositSpread failed: %v", err)
	}

	got, err := service.GetDeposit(ctx, service.DB(), d.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if len(got.Spread) != 1 {
		t.Fatalf("Expected 1 instruction, got %d", len(got.Spread))
	}
	if !got.Spread[0].Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected instruction amount 1.5, got %s", got.Spread[0].Amount.String())
	}
}

func TestInsertAndUpdateWithdraw(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	w := sampleWithdraw("wd-1")
	if err := service.InsertWithdraw(ctx, service.DB(), w); err != nil {
		t.Fatalf("InsertWithdraw failed: %v", err)
	}

	w.State = models.WithdrawConfirming
	w.TxId = "0xabc"
	w.Errors = append(w.Errors, models.WithdrawError{Class: "timeout", Message: "gateway timeout"})
	w.UpdatedAt = time.Now().UTC()
	if err := service.UpdateWithdraw(ctx, service.DB(), w); err != nil {
		t.Fatalf("UpdateWithdraw failed: %v", err)
	}

	got, err := service.GetWithdraw(ctx, service.DB(), w.Id)
	if err != nil {
		t.Fatalf("GetWithdraw failed: %v", err)
	}
	if got.State != models.WithdrawConfirming {
		t.Errorf("Expected state confirming, got %s", got.State)
	}
	if got.TxId != "0xabc" {
		t.Errorf("Expected txid 0xabc, got %s", got.TxId)
	}
	if len(got.Errors) != 1 || got.Errors[0].Message != "gateway timeout" {
		t.Errorf("Unexpected error log: %+v", got.Errors)
	}
}

func TestSumWithdrawsSince(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	older := sampleWithdraw("wd-old")
	older.State = models.WithdrawSucceed
	older.Sum = decimal.NewFromInt(3)
	older.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	recent := sampleWithdraw("wd-recent")
	recent.State = models.WithdrawProcessing
	recent.Sum = decimal.NewFromInt(5)

	pending := sampleWithdraw("wd-pending")
	pending.State = models.WithdrawSubmitted // does not count
	pending.Sum = decimal.NewFromInt(100)

	excluded := sampleWithdraw("wd-excluded")
	excluded.State = models.WithdrawProcessing
	excluded.Sum = decimal.NewFromInt(7)

	for _, w := range []*models.Withdraw{older, recent, pending, excluded} {
		if err := service.InsertWithdraw(ctx, service.DB(), w); err != nil {
			t.Fatalf("InsertWithdraw failed: %v", err)
		}
	}

	sum24h, err := service.SumWithdrawsSince(ctx, "btc", "member1", excluded.Id, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("SumWithdrawsSince failed: %v", err)
	}
	if !sum24h.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected 24h sum 5, got %s", sum24h.String())
	}

	sum72h, err := service.SumWithdrawsSince(ctx, "btc", "member1", excluded.Id, time.Now().UTC().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("SumWithdrawsSince failed: %v", err)
	}
	if !sum72h.Equal(decimal.NewFromInt(8)) {
		t.Errorf("Expected 72h sum 8, got %s", sum72h.String())
	}
}

func TestLockRecord_SerializesAccess(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ref := models.Reference{Type: models.ReferenceTypeDeposit, ID: "dep-1"}

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := service.LockRecord(ref)
			defer release()

			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(order) != 10 {
		t.Errorf("Expected 10 critical sections, got %d", len(order))
	}
}

func TestLockRecord_IndependentRecordsDoNotBlock(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	releaseA := service.LockRecord(models.Reference{Type: models.ReferenceTypeDeposit, ID: "a"})
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := service.LockRecord(models.Reference{Type: models.ReferenceTypeWithdraw, ID: "a"})
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on an unrelated record blocked")
	}
}

func TestInTransaction_RollsBackOnError(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	d := sampleDeposit("tx1")

	err := service.InTransaction(ctx, func(tx *sql.Tx) error {
		if err := service.InsertDeposit(ctx, tx, d); err != nil {
			return err
		}
		return errors.New("forced failure")
	})
	if err == nil {
		t.Fatal("Expected transaction error")
	}

	if _, err := service.GetDeposit(ctx, service.DB(), d.Id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected rollback to discard the insert, got %v", err)
	}
}
