/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/models"
)

// Sentinel errors shared by the persistence layer.
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)

// Querier is satisfied by both *sql.DB and *sql.Tx so record operations can
// run standalone or inside a lifecycle transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Service struct {
	db    *sql.DB
	locks *recordLocks
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db, locks: newRecordLocks()}
	if err := service.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an already-open handle. Used by tests with
// in-memory databases.
func NewServiceWithDB(db *sql.DB) (*Service, error) {
	service := &Service{db: db, locks: newRecordLocks()}
	if err := service.initSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return service, nil
}

func (s *Service) DB() *sql.DB {
	return s.db
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// InTransaction runs fn inside one database transaction; any error rolls
// the whole unit back.
func (s *Service) InTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LockRecord takes the exclusive per-record lock for a lifecycle record and
// returns the release function. Guarded transitions and their ledger side
// effects run entirely under this lock.
func (s *Service) LockRecord(ref models.Reference) func() {
	return s.locks.lock(string(ref.Type) + ":" + ref.ID)
}

func (s *Service) initSchema() error {
	schema := `
	-- Deposits: audit records, never deleted.
	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		tid TEXT NOT NULL UNIQUE,
		member_id TEXT NOT NULL,
		currency_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		txid TEXT NOT NULL DEFAULT '',
		txout INTEGER NOT NULL DEFAULT 0,
		block_number INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		spread TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_state_member_currency ON deposits(state, member_id, currency_id);
	CREATE INDEX IF NOT EXISTS idx_deposits_currency ON deposits(currency_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_currency_txid_txout
		ON deposits(currency_id, txid, txout) WHERE txid != '';

	-- Withdraws: audit records, never deleted.
	CREATE TABLE IF NOT EXISTS withdraws (
		id TEXT PRIMARY KEY,
		tid TEXT NOT NULL UNIQUE,
		member_id TEXT NOT NULL,
		currency_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		sum TEXT NOT NULL,
		rid TEXT NOT NULL,
		txid TEXT NOT NULL DEFAULT '',
		block_number INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdraws_state ON withdraws(state);
	CREATE INDEX IF NOT EXISTS idx_withdraws_member_currency ON withdraws(member_id, currency_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_withdraws_currency_txid
		ON withdraws(currency_id, txid) WHERE txid != '';
	`

	_, err := s.db.Exec(schema)
	return err
}
