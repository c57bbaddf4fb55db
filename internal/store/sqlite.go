package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"pattern-trader/internal/errors"
	"pattern-trader/internal/logging"
	"pattern-trader/internal/models"
	"pattern-trader/pkg/utils"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
	retry  utils.RetryConfig
}

// NewSQLiteStore creates a new SQLite-based data store. Use ":memory:" for an
// in-memory database.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", errors.ErrDatabaseError, err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	retry := utils.DefaultRetryConfig()
	retry.Retryable = isBusy
	store := &SQLiteStore{
		db:     db,
		logger: logger,
		retry:  retry,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", errors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Detected patterns
	CREATE TABLE IF NOT EXISTS patterns (
		pattern_id TEXT PRIMARY KEY,
		equity_type_id INTEGER NOT NULL,
		period_id INTEGER NOT NULL,
		ticker_id TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		ts_pattern_tick_first INTEGER NOT NULL,
		ts_pattern_tick_last INTEGER NOT NULL,
		ts_breakout INTEGER,
		position_first INTEGER,
		position_last INTEGER,
		slope_upper_pct REAL,
		slope_lower_pct REAL,
		slope_regression_pct REAL,
		height_start REAL,
		height_end REAL,
		touch_points_upper INTEGER,
		touch_points_lower INTEGER,
		previous_period_top_out_pct REAL,
		previous_period_bottom_out_pct REAL,
		expected_win REAL,
		breakout_direction TEXT,
		volume_change_pct REAL,
		trade_reached_pct REAL,
		trade_result INTEGER,
		fibonacci_direction TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(equity_type_id, period_id, ticker_id, ts_pattern_tick_first, ts_pattern_tick_last)
	);

	-- Pattern trades
	CREATE TABLE IF NOT EXISTS trades (
		trade_id TEXT PRIMARY KEY,
		pattern_id TEXT NOT NULL,
		equity_type_id INTEGER NOT NULL,
		period_id INTEGER NOT NULL,
		ticker_id TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		buy_trigger TEXT,
		trade_strategy TEXT,
		trade_box TEXT,
		status TEXT,
		side TEXT,
		ts_pattern_tick_first INTEGER NOT NULL,
		ts_pattern_tick_last INTEGER NOT NULL,
		ts_buy INTEGER,
		buy_price REAL,
		ts_sell INTEGER,
		sell_price REAL,
		expected_win REAL,
		max_ticker_last_price REAL,
		max_ticker_last_price_pct REAL,
		realised_pct REAL,
		trade_result INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_ticker ON patterns(ticker_id, ts_pattern_tick_first);
	CREATE INDEX IF NOT EXISTS idx_trades_pattern ON trades(pattern_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

const insertPattern = `INSERT OR IGNORE INTO patterns (
		pattern_id, equity_type_id, period_id, ticker_id, pattern_type,
		ts_pattern_tick_first, ts_pattern_tick_last, ts_breakout, position_first, position_last,
		slope_upper_pct, slope_lower_pct, slope_regression_pct, height_start, height_end,
		touch_points_upper, touch_points_lower, previous_period_top_out_pct, previous_period_bottom_out_pct,
		expected_win, breakout_direction, volume_change_pct, trade_reached_pct, trade_result,
		fibonacci_direction, created_at
	) VALUES (
		:pattern_id, :equity_type_id, :period_id, :ticker_id, :pattern_type,
		:ts_pattern_tick_first, :ts_pattern_tick_last, :ts_breakout, :position_first, :position_last,
		:slope_upper_pct, :slope_lower_pct, :slope_regression_pct, :height_start, :height_end,
		:touch_points_upper, :touch_points_lower, :previous_period_top_out_pct, :previous_period_bottom_out_pct,
		:expected_win, :breakout_direction, :volume_change_pct, :trade_reached_pct, :trade_result,
		:fibonacci_direction, :created_at
	)`

const insertTrade = `INSERT OR IGNORE INTO trades (
		trade_id, pattern_id, equity_type_id, period_id, ticker_id, pattern_type,
		buy_trigger, trade_strategy, trade_box, status, side,
		ts_pattern_tick_first, ts_pattern_tick_last, ts_buy, buy_price, ts_sell, sell_price,
		expected_win, max_ticker_last_price, max_ticker_last_price_pct, realised_pct, trade_result, created_at
	) VALUES (
		:trade_id, :pattern_id, :equity_type_id, :period_id, :ticker_id, :pattern_type,
		:buy_trigger, :trade_strategy, :trade_box, :status, :side,
		:ts_pattern_tick_first, :ts_pattern_tick_last, :ts_buy, :buy_price, :ts_sell, :sell_price,
		:expected_win, :max_ticker_last_price, :max_ticker_last_price_pct, :realised_pct, :trade_result, :created_at
	)`

// SavePatterns inserts the records in one transaction and returns the number
// of new rows. Records already stored under the dedup key are skipped.
func (s *SQLiteStore) SavePatterns(ctx context.Context, records []models.PatternRecord) (int, error) {
	start := time.Now()
	inserted, err := s.insertAll(ctx, len(records), func(tx *sqlx.Tx, i int) (int64, error) {
		res, err := tx.NamedExecContext(ctx, insertPattern, records[i])
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	logging.LogStore(s.logger, "patterns", inserted, time.Since(start), err)
	return inserted, err
}

// SaveTrades inserts the trade records in one transaction and returns the
// number of new rows.
func (s *SQLiteStore) SaveTrades(ctx context.Context, records []models.TradeRecord) (int, error) {
	start := time.Now()
	inserted, err := s.insertAll(ctx, len(records), func(tx *sqlx.Tx, i int) (int64, error) {
		res, err := tx.NamedExecContext(ctx, insertTrade, records[i])
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	logging.LogStore(s.logger, "trades", inserted, time.Since(start), err)
	return inserted, err
}

func (s *SQLiteStore) insertAll(ctx context.Context, n int, exec func(tx *sqlx.Tx, i int) (int64, error)) (int, error) {
	if n == 0 {
		return 0, nil
	}

	inserted := 0
	err := utils.Retry(ctx, s.retry, func() error {
		inserted = 0
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i := 0; i < n; i++ {
			rows, err := exec(tx, i)
			if err != nil {
				return fmt.Errorf("insert row %d: %w", i, err)
			}
			inserted += int(rows)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	return inserted, nil
}

// isBusy reports whether err is a transient lock conflict.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// GetPatterns retrieves patterns matching filter, oldest formation first.
func (s *SQLiteStore) GetPatterns(ctx context.Context, filter PatternFilter) ([]models.PatternRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.TickerID != "" {
		conditions = append(conditions, "ticker_id = ?")
		args = append(args, filter.TickerID)
	}
	if filter.PatternType != "" {
		conditions = append(conditions, "pattern_type = ?")
		args = append(args, filter.PatternType)
	}
	if filter.EquityTypeID != 0 {
		conditions = append(conditions, "equity_type_id = ?")
		args = append(args, filter.EquityTypeID)
	}
	if filter.PeriodID != nil {
		conditions = append(conditions, "period_id = ?")
		args = append(args, *filter.PeriodID)
	}

	query := "SELECT * FROM patterns"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts_pattern_tick_first, ts_pattern_tick_last, pattern_type"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var out []models.PatternRecord
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("%w: select patterns: %v", errors.ErrDatabaseError, err)
	}
	return out, nil
}

// PatternExists reports whether a pattern with the dedup key of rec is stored.
// The key is the formation span of a ticker, whatever the pattern type.
func (s *SQLiteStore) PatternExists(ctx context.Context, rec models.PatternRecord) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM patterns
		WHERE equity_type_id = ? AND period_id = ? AND ticker_id = ?
		AND ts_pattern_tick_first = ? AND ts_pattern_tick_last = ?`,
		rec.EquityTypeID, rec.PeriodID, rec.TickerID, rec.TsPatternTickFirst, rec.TsPatternTickLast)
	if err != nil {
		return false, fmt.Errorf("%w: count patterns: %v", errors.ErrDatabaseError, err)
	}
	return n > 0, nil
}

// GetTrades retrieves trades matching filter.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	var conditions []string
	var args []interface{}

	if filter.TickerID != "" {
		conditions = append(conditions, "ticker_id = ?")
		args = append(args, filter.TickerID)
	}
	if filter.PatternID != "" {
		conditions = append(conditions, "pattern_id = ?")
		args = append(args, filter.PatternID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT * FROM trades"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts_pattern_tick_first, trade_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var out []models.TradeRecord
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("%w: select trades: %v", errors.ErrDatabaseError, err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements DataStore interface
var _ DataStore = (*SQLiteStore)(nil)
