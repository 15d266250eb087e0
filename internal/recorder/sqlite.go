package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"StockWatch/internal/errors"
	"StockWatch/internal/model"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder appends batch history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL so dashboards can read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question), log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batch_runs (
			run_id      TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			symbols     INTEGER,
			failed      INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS signal_history (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			started_at      INTEGER NOT NULL,
			bar_date        TEXT,
			close           REAL,
			trend           TEXT,
			sale_line       TEXT,
			below_threshold INTEGER,
			stale           INTEGER,
			error_stage     TEXT,
			error_kind      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_symbol ON signal_history(symbol, started_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordBatch writes the run and one row per symbol in a single transaction.
func (r *SQLiteRecorder) RecordBatch(ctx context.Context, report *model.BatchReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "begin tx", err)
	}
	defer tx.Rollback()

	query, args, err := r.sb.Insert("batch_runs").
		Columns("run_id", "started_at", "finished_at", "symbols", "failed").
		Values(report.RunID, report.StartedAt.Unix(), report.FinishedAt.Unix(), len(report.Results), report.Failed()).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "build insert", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.KindStorage, "insert run", err)
	}

	if len(report.Results) > 0 {
		ins := r.sb.Insert("signal_history").Columns("run_id", "symbol", "started_at", "bar_date", "close",
			"trend", "sale_line", "below_threshold", "stale", "error_stage", "error_kind")
		for _, res := range report.Results {
			rec := toRecord(report.RunID, res)
			ins = ins.Values(rec.RunID, rec.Symbol, report.StartedAt.Unix(), rec.Date, rec.Close,
				rec.Trend, rec.SaleLine, rec.BelowThreshold, rec.Stale, rec.ErrorStage, rec.ErrorKind)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return errors.Wrap(errors.KindStorage, "build insert", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(errors.KindStorage, "insert signals", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindStorage, "commit", err)
	}
	r.log.Debug("batch recorded", zap.String("run_id", report.RunID), zap.Int("symbols", len(report.Results)))
	return nil
}

// History returns the latest records for symbol, newest first.
func (r *SQLiteRecorder) History(ctx context.Context, symbol string, limit int) ([]SignalRecord, error) {
	q := r.sb.Select("run_id", "symbol", "bar_date", "close", "trend", "sale_line",
		"below_threshold", "stale", "error_stage", "error_kind").
		From("signal_history").
		Where(sq.Eq{"symbol": symbol}).
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "build query", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "query history", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var rec SignalRecord
		if err := rows.Scan(&rec.RunID, &rec.Symbol, &rec.Date, &rec.Close, &rec.Trend, &rec.SaleLine,
			&rec.BelowThreshold, &rec.Stale, &rec.ErrorStage, &rec.ErrorKind); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "scan history", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}

func toRecord(runID string, res model.SymbolResult) SignalRecord {
	rec := SignalRecord{RunID: runID, Symbol: res.Symbol, Stale: res.Stale, BelowThreshold: res.BelowThreshold}
	if !res.OK() {
		var e *errors.Error
		if errors.As(res.Err, &e) {
			rec.ErrorStage = e.Stage
		}
		rec.ErrorKind = errors.KindOf(res.Err).String()
		return rec
	}
	rec.Date = res.LastDate.Format(model.DateLayout)
	rec.Close = res.LatestClose
	rec.Trend = string(res.Trend)
	if res.SaleLine != nil {
		rec.SaleLine = res.SaleLine.Price.String()
	}
	return rec
}
