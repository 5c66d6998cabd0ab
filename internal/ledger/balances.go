package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/models"
)

// Balance sums credit - debit over the operations of one logical account.
// MemberId empty means the platform-wide account (asset, revenue, expense).
func (l *Ledger) Balance(ctx context.Context, t models.AccountType, kind models.AccountKind, currency models.Currency, memberId string) (decimal.Decimal, error) {
	code, err := AccountCode(t, kind, currency.Type)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := l.db.QueryContext(ctx, queryOperationsByAccount, code, currency.ID, memberId, memberId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	return foldOperations(rows)
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx so cache reads can
// run standalone or inside an open transaction.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MemberBalance returns the main (spendable) and locked balance for a
// member and currency from the running-balance cache.
func (l *Ledger) MemberBalance(ctx context.Context, memberId, currencyId string) (main, locked decimal.Decimal, err error) {
	return l.memberBalance(ctx, l.db, memberId, currencyId)
}

// MemberBalanceTx is MemberBalance inside an open transaction. Transitions
// that gate on a balance read through it so the gate and the postings it
// permits share one snapshot.
func (l *Ledger) MemberBalanceTx(ctx context.Context, tx *sql.Tx, memberId, currencyId string) (main, locked decimal.Decimal, err error) {
	return l.memberBalance(ctx, tx, memberId, currencyId)
}

func (l *Ledger) memberBalance(ctx context.Context, q rowQuerier, memberId, currencyId string) (main, locked decimal.Decimal, err error) {
	main, err = l.cachedBalance(ctx, q, memberId, currencyId, models.AccountKindMain)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	locked, err = l.cachedBalance(ctx, q, memberId, currencyId, models.AccountKindLocked)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return main, locked, nil
}

func (l *Ledger) cachedBalance(ctx context.Context, q rowQuerier, memberId, currencyId string, kind models.AccountKind) (decimal.Decimal, error) {
	var (
		rowId      string
		balanceStr string
		version    int64
	)
	err := q.QueryRowContext(ctx, queryGetAccountBalance, memberId, currencyId, string(kind)).
		Scan(&rowId, &balanceStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account balance: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse account balance %q: %w", balanceStr, err)
	}
	return balance, nil
}

// ReconcileBalance recomputes a member liability balance from the
// operations table and repairs the cache row if it drifted.
func (l *Ledger) ReconcileBalance(ctx context.Context, memberId string, currency models.Currency, kind models.AccountKind) error {
	code, err := AccountCode(models.AccountTypeLiability, kind, currency.Type)
	if err != nil {
		return err
	}

	rows, err := l.db.QueryContext(ctx, queryOperationsByMemberAccount, code, currency.ID, memberId)
	if err != nil {
		return fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	calculated, err := foldOperations(rows)
	if err != nil {
		return err
	}

	cached, err := l.cachedBalance(ctx, l.db, memberId, currency.ID, kind)
	if err != nil {
		return err
	}
	if calculated.Equal(cached) {
		return nil
	}

	zap.L().Warn("Account balance drift detected, repairing cache",
		zap.String("member_id", memberId),
		zap.String("currency", currency.ID),
		zap.String("kind", string(kind)),
		zap.String("cached", cached.String()),
		zap.String("calculated", calculated.String()))

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := l.applyBalanceDelta(ctx, tx, memberId, currency.ID, kind, calculated.Sub(cached), ""); err != nil {
		return err
	}
	return tx.Commit()
}

// OperationsForReference returns every posting recorded for a lifecycle
// transition reference, oldest first.
func (l *Ledger) OperationsForReference(ctx context.Context, ref models.Reference) ([]models.Operation, error) {
	rows, err := l.db.QueryContext(ctx, queryOperationsByReference, string(ref.Type), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var (
			op                  models.Operation
			accountType, kind   string
			refType             string
			debitStr, creditStr string
		)
		err := rows.Scan(&op.ID, &op.Code, &accountType, &kind, &op.CurrencyID, &op.MemberID,
			&refType, &op.ReferenceID, &debitStr, &creditStr, &op.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.AccountType = models.AccountType(accountType)
		op.Kind = models.AccountKind(kind)
		op.ReferenceType = models.ReferenceType(refType)
		if op.Debit, err = decimal.NewFromString(debitStr); err != nil {
			return nil, fmt.Errorf("failed to parse debit %q: %w", debitStr, err)
		}
		if op.Credit, err = decimal.NewFromString(creditStr); err != nil {
			return nil, fmt.Errorf("failed to parse credit %q: %w", creditStr, err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}
	return ops, nil
}

// ReferenceBalanced verifies the double-entry identity for one reference:
// across every posting its transitions emitted, the net asset change must
// equal the net liability plus revenue minus expense change.
func (l *Ledger) ReferenceBalanced(ctx context.Context, ref models.Reference) (bool, error) {
	ops, err := l.OperationsForReference(ctx, ref)
	if err != nil {
		return false, err
	}
	deltas := map[models.AccountType]decimal.Decimal{}
	for _, op := range ops {
		deltas[op.AccountType] = deltas[op.AccountType].Add(op.Credit).Sub(op.Debit)
	}
	rhs := deltas[models.AccountTypeLiability].
		Add(deltas[models.AccountTypeRevenue]).
		Sub(deltas[models.AccountTypeExpense])
	return deltas[models.AccountTypeAsset].Equal(rhs), nil
}

func foldOperations(rows *sql.Rows) (decimal.Decimal, error) {
	balance := decimal.Zero
	for rows.Next() {
		var debitStr, creditStr string
		if err := rows.Scan(&debitStr, &creditStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan operation: %w", err)
		}
		debit, err := decimal.NewFromString(debitStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse debit %q: %w", debitStr, err)
		}
		credit, err := decimal.NewFromString(creditStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse credit %q: %w", creditStr, err)
		}
		balance = balance.Add(credit).Sub(debit)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating operation rows: %w", err)
	}
	return balance, nil
}
