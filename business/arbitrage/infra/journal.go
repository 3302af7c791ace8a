package infra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
)

// Journal records every published opportunity and route in SQLite.
type Journal struct {
	path   string
	db     *sql.DB
	logger logger.LoggerInterface
}

// NewJournal creates a journal at path. The database is opened by Start.
func NewJournal(path string, log logger.LoggerInterface) *Journal {
	return &Journal{path: path, logger: log}
}

// Start opens the database and runs migrations.
func (j *Journal) Start(ctx context.Context) error {
	if dir := filepath.Dir(j.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperror.Wrap(err, apperror.CodeJournalWriteError, "create journal directory")
		}
	}

	db, err := sql.Open("sqlite3", j.path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "open journal")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "migrate journal")
	}

	j.db = db
	j.logger.Info(ctx, "journal opened", "path", j.path)
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS opportunities (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			block INTEGER NOT NULL,
			buy_pool TEXT NOT NULL,
			sell_pool TEXT NOT NULL,
			base_token TEXT NOT NULL,
			quote_token TEXT NOT NULL,
			input_amount TEXT NOT NULL,
			output_amount TEXT NOT NULL,
			gas_cost TEXT NOT NULL,
			net_profit TEXT NOT NULL,
			spread_bps TEXT NOT NULL,
			payload TEXT NOT NULL,
			detected_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_block ON opportunities(block)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			block INTEGER NOT NULL,
			quote_token TEXT NOT NULL,
			legs INTEGER NOT NULL,
			value_quote REAL NOT NULL,
			reason TEXT NOT NULL,
			payload TEXT NOT NULL,
			detected_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// Publish inserts results in one transaction.
func (j *Journal) Publish(ctx context.Context, results []*domain.TradeResult) error {
	if j.db == nil {
		return apperror.New(apperror.CodeJournalWriteError, apperror.WithContext("journal not started"))
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO opportunities
		(id, source, block, buy_pool, sell_pool, base_token, quote_token,
		 input_amount, output_amount, gas_cost, net_profit, spread_bps, payload, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "prepare insert")
	}
	defer stmt.Close()

	for _, r := range results {
		w := ToOpportunityJSON(r)
		payload, err := json.Marshal(w)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeJournalWriteError, "encode opportunity")
		}
		if _, err := stmt.ExecContext(ctx,
			w.ID, w.Source, int64(w.Block), w.BuyPool, w.SellPool, w.BaseToken, w.QuoteToken,
			w.InputAmount, w.OutputAmount, w.GasCost, w.NetProfit, w.SpreadBps,
			string(payload), r.DetectedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return apperror.Wrap(err, apperror.CodeJournalWriteError, "insert opportunity "+w.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "commit")
	}
	return nil
}

// PublishRoute inserts an optimizer route.
func (j *Journal) PublishRoute(ctx context.Context, r *domain.Route) error {
	if j.db == nil {
		return apperror.New(apperror.CodeJournalWriteError, apperror.WithContext("journal not started"))
	}

	w := ToRouteJSON(r)
	payload, err := json.Marshal(w)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "encode route")
	}

	_, err = j.db.ExecContext(ctx, `INSERT OR IGNORE INTO routes
		(id, block, quote_token, legs, value_quote, reason, payload, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, int64(w.Block), w.QuoteToken, len(w.Legs), w.ValueQuote, w.Reason,
		string(payload), r.DetectedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeJournalWriteError, "insert route "+w.ID)
	}
	return nil
}

// Count returns the number of journaled opportunities.
func (j *Journal) Count(ctx context.Context) (int, error) {
	if j.db == nil {
		return 0, apperror.New(apperror.CodeJournalWriteError, apperror.WithContext("journal not started"))
	}
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&n)
	return n, err
}

// Stop closes the database.
func (j *Journal) Stop() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
