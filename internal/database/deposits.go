package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/QuantaEx/qfinex/internal/models"
)

// InsertDeposit persists a freshly created deposit row.
func (s *Service) InsertDeposit(ctx context.Context, q Querier, d *models.Deposit) error {
	spread, err := json.Marshal(d.Spread)
	if err != nil {
		return fmt.Errorf("failed to serialize spread: %w", err)
	}

	_, err = q.ExecContext(ctx, queryInsertDeposit,
		d.Id, d.TID, d.MemberId, d.CurrencyId, d.Amount.String(), d.Fee.String(),
		d.Address, d.TxId, d.TxOut, d.BlockNumber, string(d.State), string(spread),
		d.CreatedAt, d.UpdatedAt, d.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: deposit %s/%s#%d", ErrDuplicateReference, d.CurrencyId, d.TxId, d.TxOut)
		}
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	return nil
}

func (s *Service) GetDeposit(ctx context.Context, q Querier, id string) (*models.Deposit, error) {
	return scanDeposit(q.QueryRowContext(ctx, queryGetDeposit, id))
}

// GetDepositByTx looks a deposit up by its on-chain coordinates, used by
// deposit detection to deduplicate observed transactions.
func (s *Service) GetDepositByTx(ctx context.Context, currencyId, txid string, txout int64) (*models.Deposit, error) {
	return scanDeposit(s.db.QueryRowContext(ctx, queryGetDepositByTx, currencyId, txid, txout))
}

func (s *Service) ListDepositsByState(ctx context.Context, state models.DepositState) ([]models.Deposit, error) {
	rows, err := s.db.QueryContext(ctx, queryListDepositsByState, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		d, err := scanDepositRow(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit rows: %w", err)
	}
	return deposits, nil
}

// UpdateDepositState writes the new state and completion timestamp. Runs
// inside the lifecycle transaction.
func (s *Service) UpdateDepositState(ctx context.Context, q Querier, d *models.Deposit) error {
	res, err := q.ExecContext(ctx, queryUpdateDepositState,
		string(d.State), d.UpdatedAt, d.CompletedAt, d.Id)
	if err != nil {
		return fmt.Errorf("failed to update deposit state: %w", err)
	}
	return requireRowAffected(res, d.Id)
}

// UpdateDepositSpread persists the computed collection plan.
func (s *Service) UpdateDepositSpread(ctx context.Context, d *models.Deposit) error {
	spread, err := json.Marshal(d.Spread)
	if err != nil {
		return fmt.Errorf("failed to serialize spread: %w", err)
	}
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, queryUpdateDepositSpread, string(spread), d.UpdatedAt, d.Id)
	if err != nil {
		return fmt.Errorf("failed to update deposit spread: %w", err)
	}
	return requireRowAffected(res, d.Id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row *sql.Row) (*models.Deposit, error) {
	d, err := scanDepositRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func scanDepositRow(row rowScanner) (*models.Deposit, error) {
	var (
		d                    models.Deposit
		amountStr, feeStr    string
		stateStr, spreadJSON string
		completedAt          sql.NullTime
	)

	err := row.Scan(&d.Id, &d.TID, &d.MemberId, &d.CurrencyId, &amountStr, &feeStr,
		&d.Address, &d.TxId, &d.TxOut, &d.BlockNumber, &stateStr, &spreadJSON,
		&d.CreatedAt, &d.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan deposit: %w", err)
	}

	if d.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse deposit amount %q: %w", amountStr, err)
	}
	if d.Fee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("failed to parse deposit fee %q: %w", feeStr, err)
	}
	d.State = models.DepositState(stateStr)
	if err := json.Unmarshal([]byte(spreadJSON), &d.Spread); err != nil {
		return nil, fmt.Errorf("failed to parse deposit spread: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		d.CompletedAt = &t
	}
	return &d, nil
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
