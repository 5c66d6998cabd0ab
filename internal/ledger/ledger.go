package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/models"
)

// Sentinel errors for ledger operations.
var (
	ErrUnknownAccount         = errors.New("unknown ledger account")
	ErrNegativeAmount         = errors.New("operation amount cannot be negative")
	ErrMemberRequired         = errors.New("member id required for member account")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Ledger is the double-entry store. Every balance-affecting event is
// recorded as operations against typed accounts; no component mutates
// balances except through Credit, Debit and Transfer.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) InitSchema() error {
	schema := `
	-- Operations: append-only postings (audit trail). Never updated or
	-- deleted; balance = sum(credit) - sum(debit).
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		code INTEGER NOT NULL,
		account_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		currency_id TEXT NOT NULL,
		member_id TEXT NOT NULL DEFAULT '',
		reference_type TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_account ON operations(code, currency_id, member_id);
	CREATE INDEX IF NOT EXISTS idx_operations_reference ON operations(reference_type, reference_id);
	CREATE INDEX IF NOT EXISTS idx_operations_created_at ON operations(created_at);

	-- Running balances for member liability accounts (hot data). The
	-- operations table stays authoritative; this row accelerates reads.
	CREATE TABLE IF NOT EXISTS account_balances (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		currency_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_operation_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(member_id, currency_id, kind)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_account_balances_member_currency_kind
		ON account_balances(member_id, currency_id, kind);
	`

	_, err := l.db.Exec(schema)
	return err
}

// PostParams selects the account and amount for one posting.
type PostParams struct {
	Type      models.AccountType
	Kind      models.AccountKind // defaults to main
	Amount    decimal.Decimal
	Currency  models.Currency
	Reference models.Reference
	MemberId  string // required for member liability accounts
}

// TransferParams moves an amount between two liability kinds of the same
// member and currency.
type TransferParams struct {
	Amount    decimal.Decimal
	Currency  models.Currency
	Reference models.Reference
	FromKind  models.AccountKind
	ToKind    models.AccountKind
	MemberId  string
}

// Credit appends a credit operation. Must run inside the caller's
// transaction so it commits atomically with its sibling postings and the
// lifecycle state change.
func (l *Ledger) Credit(ctx context.Context, tx *sql.Tx, p PostParams) error {
	return l.post(ctx, tx, p, decimal.Zero, p.Amount)
}

// Debit appends a debit operation. The non-negativity of the resulting
// conceptual balance is the caller's invariant: a debit must be preceded by
// a matching credit.
func (l *Ledger) Debit(ctx context.Context, tx *sql.Tx, p PostParams) error {
	return l.post(ctx, tx, p, p.Amount, decimal.Zero)
}

// Transfer debits the from-kind liability account and credits the to-kind
// liability account of the same member. Both postings go through the same
// transaction; partial application is impossible.
func (l *Ledger) Transfer(ctx context.Context, tx *sql.Tx, p TransferParams) error {
	if p.MemberId == "" {
		return ErrMemberRequired
	}
	err := l.Debit(ctx, tx, PostParams{
		Type:      models.AccountTypeLiability,
		Kind:      p.FromKind,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reference: p.Reference,
		MemberId:  p.MemberId,
	})
	if err != nil {
		return err
	}
	return l.Credit(ctx, tx, PostParams{
		Type:      models.AccountTypeLiability,
		Kind:      p.ToKind,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reference: p.Reference,
		MemberId:  p.MemberId,
	})
}

func (l *Ledger) post(ctx context.Context, tx *sql.Tx, p PostParams, debit, credit decimal.Decimal) error {
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, p.Amount)
	}
	kind := p.Kind
	if kind == "" {
		kind = models.AccountKindMain
	}
	if p.Type == models.AccountTypeLiability && p.MemberId == "" {
		return ErrMemberRequired
	}

	code, err := AccountCode(p.Type, kind, p.Currency.Type)
	if err != nil {
		return err
	}

	opId := uuid.New().String()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, queryInsertOperation,
		opId, code, string(p.Type), string(kind), p.Currency.ID, p.MemberId,
		string(p.Reference.Type), p.Reference.ID, debit.String(), credit.String(), now)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	// Maintain the running member liability balance in the same transaction.
	if p.Type == models.AccountTypeLiability {
		delta := credit.Sub(debit)
		if err := l.applyBalanceDelta(ctx, tx, p.MemberId, p.Currency.ID, kind, delta, opId); err != nil {
			return err
		}
	}

	zap.L().Debug("Ledger operation recorded",
		zap.Int32("code", code),
		zap.String("currency", p.Currency.ID),
		zap.String("member_id", p.MemberId),
		zap.String("reference", string(p.Reference.Type)+":"+p.Reference.ID),
		zap.String("debit", debit.String()),
		zap.String("credit", credit.String()))

	return nil
}

func (l *Ledger) applyBalanceDelta(ctx context.Context, tx *sql.Tx, memberId, currencyId string, kind models.AccountKind, delta decimal.Decimal, opId string) error {
	var (
		rowId      string
		balanceStr string
		version    int64
	)
	err := tx.QueryRowContext(ctx, queryGetAccountBalance, memberId, currencyId, string(kind)).
		Scan(&rowId, &balanceStr, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		rowId = uuid.New().String()
		_, err = tx.ExecContext(ctx, queryInsertAccountBalance,
			rowId, memberId, currencyId, string(kind), "0", 1)
		if err != nil {
			return fmt.Errorf("failed to create account balance: %w", err)
		}
		balanceStr, version = "0", 1
	case err != nil:
		return fmt.Errorf("failed to get account balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return fmt.Errorf("failed to parse account balance %q: %w", balanceStr, err)
	}
	newBalance := balance.Add(delta)

	res, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		newBalance.String(), opId, memberId, currencyId, string(kind), version)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("balance update failed - %w", ErrConcurrentModification)
	}
	return nil
}
