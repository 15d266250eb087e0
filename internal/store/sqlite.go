package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"StockWatch/internal/model"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// insertChunk bounds the number of rows per INSERT to stay under SQLite's
// host parameter limit.
const insertChunk = 300

// SQLiteStore keeps series points and pull records in two tables.
type SQLiteStore struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	locks symbolLocks
	log   *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite has a single writer, and the pragmas below are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		log: log,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series_points (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			close  REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE TABLE IF NOT EXISTS pull_records (
			symbol         TEXT PRIMARY KEY,
			last_pull_date TEXT NOT NULL,
			snapshot       TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, symbol string) (model.PriceSeries, model.PullRecord, error) {
	query, args, err := s.sb.Select("last_pull_date", "snapshot").
		From("pull_records").
		Where(sq.Eq{"symbol": symbol}).
		ToSql()
	if err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "build query")
	}

	// One read-only tx so a concurrent Save cannot split record and points.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "begin read")
	}
	defer tx.Rollback()

	var pulled, snapJSON string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&pulled, &snapJSON)
	if err == sql.ErrNoRows {
		return model.PriceSeries{}, model.PullRecord{}, notFound(symbol)
	}
	if err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "read pull record")
	}

	rec := model.PullRecord{Symbol: symbol}
	if rec.LastPullDate, err = time.Parse(time.RFC3339Nano, pulled); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "parse pull date")
	}
	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "decode snapshot")
	}

	query, args, err = s.sb.Select("date", "close").
		From("series_points").
		Where(sq.Eq{"symbol": symbol}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "build query")
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "read series")
	}
	defer rows.Close()

	series := model.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var (
			date string
			p    model.PricePoint
		)
		if err := rows.Scan(&date, &p.Close); err != nil {
			return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "scan point")
		}
		if p.Date, err = time.Parse(model.DateLayout, date); err != nil {
			return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "parse point date")
		}
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "iterate series")
	}
	if err := tx.Commit(); err != nil {
		return model.PriceSeries{}, model.PullRecord{}, storageErr(symbol, err, "commit read")
	}
	return series, rec, nil
}

// Save implements Store. The old rows are replaced inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, symbol string, series model.PriceSeries, snapshot model.IndicatorSnapshot, pullDate time.Time) error {
	if err := checkSeries(symbol, series); err != nil {
		return err
	}
	snapJSON, err := json.Marshal(snapshotOrEmpty(snapshot))
	if err != nil {
		return storageErr(symbol, err, "encode snapshot")
	}

	unlock := s.locks.lock(symbol)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(symbol, err, "begin tx")
	}
	defer tx.Rollback()

	query, args, err := s.sb.Select("last_pull_date").From("pull_records").Where(sq.Eq{"symbol": symbol}).ToSql()
	if err != nil {
		return storageErr(symbol, err, "build query")
	}
	var stored string
	switch err := tx.QueryRowContext(ctx, query, args...).Scan(&stored); {
	case err == sql.ErrNoRows:
	case err != nil:
		return storageErr(symbol, err, "read pull record")
	default:
		prev, err := time.Parse(time.RFC3339Nano, stored)
		if err != nil {
			return storageErr(symbol, err, "parse pull date")
		}
		if err := checkMonotonic(symbol, prev, pullDate); err != nil {
			return err
		}
	}

	query, args, err = s.sb.Delete("series_points").Where(sq.Eq{"symbol": symbol}).ToSql()
	if err != nil {
		return storageErr(symbol, err, "build delete")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return storageErr(symbol, err, "delete series")
	}

	for start := 0; start < len(series.Points); start += insertChunk {
		end := min(start+insertChunk, len(series.Points))
		ins := s.sb.Insert("series_points").Columns("symbol", "date", "close")
		for _, p := range series.Points[start:end] {
			ins = ins.Values(symbol, model.DateOf(p.Date).Format(model.DateLayout), p.Close)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return storageErr(symbol, err, "build insert")
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return storageErr(symbol, err, "insert series")
		}
	}

	query, args, err = s.sb.Replace("pull_records").
		Columns("symbol", "last_pull_date", "snapshot").
		Values(symbol, pullDate.UTC().Format(time.RFC3339Nano), string(snapJSON)).
		ToSql()
	if err != nil {
		return storageErr(symbol, err, "build upsert")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return storageErr(symbol, err, "write pull record")
	}

	if err := tx.Commit(); err != nil {
		return storageErr(symbol, err, "commit")
	}
	s.log.Debug("series saved", zap.String("symbol", symbol), zap.Int("points", series.Len()))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}

func snapshotOrEmpty(s model.IndicatorSnapshot) model.IndicatorSnapshot {
	if s == nil {
		return model.IndicatorSnapshot{}
	}
	return s
}
