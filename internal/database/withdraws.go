package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/QuantaEx/qfinex/internal/models"
)

func (s *Service) InsertWithdraw(ctx context.Context, q Querier, w *models.Withdraw) error {
	errLog, err := json.Marshal(w.Errors)
	if err != nil {
		return fmt.Errorf("failed to serialize error log: %w", err)
	}

	_, err = q.ExecContext(ctx, queryInsertWithdraw,
		w.Id, w.TID, w.MemberId, w.CurrencyId, w.Amount.String(), w.Fee.String(),
		w.Sum.String(), w.RID, w.TxId, w.BlockNumber, string(w.State), string(errLog),
		w.CreatedAt, w.UpdatedAt, w.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: withdraw %s/%s", ErrDuplicateReference, w.CurrencyId, w.TxId)
		}
		return fmt.Errorf("failed to insert withdraw: %w", err)
	}
	return nil
}

func (s *Service) GetWithdraw(ctx context.Context, q Querier, id string) (*models.Withdraw, error) {
	w, err := scanWithdrawRow(q.QueryRowContext(ctx, queryGetWithdraw, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (s *Service) ListWithdrawsByState(ctx context.Context, state models.WithdrawState) ([]models.Withdraw, error) {
	rows, err := s.db.QueryContext(ctx, queryListWithdrawsByState, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list withdraws: %w", err)
	}
	defer rows.Close()

	var withdraws []models.Withdraw
	for rows.Next() {
		w, err := scanWithdrawRow(rows)
		if err != nil {
			return nil, err
		}
		withdraws = append(withdraws, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdraw rows: %w", err)
	}
	return withdraws, nil
}

// UpdateWithdraw writes state, txid, the error log and the completion
// timestamp. Runs inside the lifecycle transaction.
func (s *Service) UpdateWithdraw(ctx context.Context, q Querier, w *models.Withdraw) error {
	errLog, err := json.Marshal(w.Errors)
	if err != nil {
		return fmt.Errorf("failed to serialize error log: %w", err)
	}
	res, err := q.ExecContext(ctx, queryUpdateWithdraw,
		string(w.State), w.TxId, string(errLog), w.UpdatedAt, w.CompletedAt, w.Id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: withdraw %s/%s", ErrDuplicateReference, w.CurrencyId, w.TxId)
		}
		return fmt.Errorf("failed to update withdraw: %w", err)
	}
	return requireRowAffected(res, w.Id)
}

// SumWithdrawsSince adds up the sums of this member's withdrawals for the
// currency created after the cutoff in states that hold or spent funds,
// excluding the record under audit.
func (s *Service) SumWithdrawsSince(ctx context.Context, currencyId, memberId, excludeId string, since time.Time) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, querySelectWithdrawSumsSince, currencyId, memberId, excludeId, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query withdraw sums: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var sumStr string
		if err := rows.Scan(&sumStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan withdraw sum: %w", err)
		}
		sum, err := decimal.NewFromString(sumStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse withdraw sum %q: %w", sumStr, err)
		}
		total = total.Add(sum)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating withdraw sums: %w", err)
	}
	return total, nil
}

func scanWithdrawRow(row rowScanner) (*models.Withdraw, error) {
	var (
		w                         models.Withdraw
		amountStr, feeStr, sumStr string
		stateStr, errJSON         string
		completedAt               sql.NullTime
	)

	err := row.Scan(&w.Id, &w.TID, &w.MemberId, &w.CurrencyId, &amountStr, &feeStr,
		&sumStr, &w.RID, &w.TxId, &w.BlockNumber, &stateStr, &errJSON,
		&w.CreatedAt, &w.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan withdraw: %w", err)
	}

	if w.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse withdraw amount %q: %w", amountStr, err)
	}
	if w.Fee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("failed to parse withdraw fee %q: %w", feeStr, err)
	}
	if w.Sum, err = decimal.NewFromString(sumStr); err != nil {
		return nil, fmt.Errorf("failed to parse withdraw sum %q: %w", sumStr, err)
	}
	w.State = models.WithdrawState(stateStr)
	if err := json.Unmarshal([]byte(errJSON), &w.Errors); err != nil {
		return nil, fmt.Errorf("failed to parse withdraw error log: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		w.CompletedAt = &t
	}
	return &w, nil
}
