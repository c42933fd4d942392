// Package persistence records everything a run produces into DuckDB so
// results survive the process and can be queried or exported afterwards.
package persistence

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Store keeps candles, signals, orders and transactions for one run.
// It satisfies the engine's Recorder.
type Store struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	log *logger.Logger
}

// NewStore opens a DuckDB database at path (":memory:" for ephemeral
// runs) and creates the schema.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreInitFailed, err, "failed to open store at %s", path)
	}

	s := &Store{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		log: log,
	}

	if err := s.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			time TIMESTAMP NOT NULL,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			UNIQUE (exchange, symbol, timeframe, time)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			signal_id TEXT NOT NULL,
			exchange TEXT,
			symbol TEXT,
			timeframe TEXT,
			action TEXT,
			direction TEXT,
			confidence DOUBLE,
			strategy_name TEXT,
			root_candle_timestamp TIMESTAMP,
			generation_time TIMESTAMP NOT NULL,
			is_exit BOOLEAN,
			UNIQUE (exchange, symbol, strategy_name, root_candle_timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			signal_id TEXT,
			exchange TEXT,
			symbol TEXT,
			timeframe TEXT,
			action TEXT,
			direction TEXT,
			size DOUBLE,
			order_type TEXT,
			limit_price DOUBLE,
			stop_price DOUBLE,
			target_price DOUBLE,
			stop_pct DOUBLE,
			time_in_force_ms BIGINT,
			status TEXT,
			generation_time TIMESTAMP,
			strategy_name TEXT,
			is_exit BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			order_id TEXT,
			exchange TEXT,
			symbol TEXT,
			timeframe TEXT,
			strategy_name TEXT,
			action TEXT,
			direction TEXT,
			size DOUBLE,
			price DOUBLE,
			commission DOUBLE,
			executed_at TIMESTAMP
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(errors.ErrCodeStoreInitFailed, "failed to create store schema", err)
		}
	}

	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCandle stores one bar. Re-recording the same bar is a no-op so
// reruns over overlapping data stay clean.
func (s *Store) RecordCandle(sub feed.Subscription, candle types.Candle) error {
	_, err := s.sq.
		Insert("candles").
		Columns("exchange", "symbol", "timeframe", "time", "open", "high", "low", "close", "volume").
		Values(
			sub.Asset.Exchange, sub.Asset.Symbol, string(sub.Timeframe),
			candle.Timestamp, candle.Open, candle.High, candle.Low, candle.Close, candle.Volume,
		).
		Suffix("ON CONFLICT DO NOTHING").
		RunWith(s.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to record candle", err)
	}

	return nil
}

// RecordSignal stores a strategy's trade intent.
func (s *Store) RecordSignal(signal types.Signal) error {
	_, err := s.sq.
		Insert("signals").
		Columns(
			"signal_id", "exchange", "symbol", "timeframe", "action", "direction",
			"confidence", "strategy_name", "root_candle_timestamp", "generation_time", "is_exit",
		).
		Values(
			signal.ID(), signal.Asset.Exchange, signal.Asset.Symbol, string(signal.Timeframe),
			string(signal.Action), string(signal.Direction), signal.ConfidenceLevel,
			signal.Strategy, signal.RootCandleTimestamp, signal.GenerationTime, signal.IsExit,
		).
		Suffix("ON CONFLICT DO NOTHING").
		RunWith(s.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to record signal", err)
	}

	return nil
}

// RecordOrder stores a sized order as it was routed.
func (s *Store) RecordOrder(order types.Order) error {
	_, err := s.sq.
		Insert("orders").
		Columns(
			"order_id", "signal_id", "exchange", "symbol", "timeframe", "action", "direction",
			"size", "order_type", "limit_price", "stop_price", "target_price", "stop_pct",
			"time_in_force_ms", "status", "generation_time", "strategy_name", "is_exit",
		).
		Values(
			order.OrderID, order.SignalID, order.Asset.Exchange, order.Asset.Symbol,
			string(order.Timeframe), string(order.Action), string(order.Direction),
			order.Size, string(order.Type),
			optionalFloat(order.Limit.TakeOr(0), order.Limit.IsSome()),
			optionalFloat(order.Stop.TakeOr(0), order.Stop.IsSome()),
			optionalFloat(order.Target.TakeOr(0), order.Target.IsSome()),
			optionalFloat(order.StopPct.TakeOr(0), order.StopPct.IsSome()),
			order.TimeInForce.Milliseconds(), string(order.Status),
			order.GenerationTime, order.StrategyName, order.IsExit,
		).
		Suffix("ON CONFLICT DO NOTHING").
		RunWith(s.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to record order", err)
	}

	return nil
}

// RecordTransaction stores a confirmed fill.
func (s *Store) RecordTransaction(tx types.Transaction, order types.Order) error {
	price, _ := tx.Price.Float64()
	commission, _ := tx.Commission.Float64()

	_, err := s.sq.
		Insert("transactions").
		Columns(
			"transaction_id", "order_id", "exchange", "symbol", "timeframe", "strategy_name",
			"action", "direction", "size", "price", "commission", "executed_at",
		).
		Values(
			tx.TransactionID, tx.OrderID, tx.Asset.Exchange, tx.Asset.Symbol,
			string(tx.Timeframe), tx.StrategyName, string(tx.Action), string(tx.Direction),
			tx.Size, price, commission, tx.Timestamp,
		).
		Suffix("ON CONFLICT DO NOTHING").
		RunWith(s.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to record transaction", err)
	}

	return nil
}

func optionalFloat(v float64, ok bool) any {
	if !ok {
		return nil
	}

	return v
}

// TradeStats summarises the fills for one (symbol, strategy) pair.
type TradeStats struct {
	Exchange        string
	Symbol          string
	StrategyName    string
	Fills           int
	BoughtSize      float64
	SoldSize        float64
	BuyVolume       float64
	SellVolume      float64
	TotalCommission float64
	// NetCashFlow is sell proceeds minus buy cost minus commissions. With
	// no position left open it equals realised PnL.
	NetCashFlow float64
	FirstFill   time.Time
	LastFill    time.Time
}

// Stats aggregates the transactions table per symbol and strategy.
func (s *Store) Stats() ([]TradeStats, error) {
	rows, err := s.sq.
		Select(
			"exchange",
			"symbol",
			"strategy_name",
			"COUNT(*)",
			"COALESCE(SUM(CASE WHEN action = 'BUY' THEN size END), 0)",
			"COALESCE(SUM(CASE WHEN action = 'SELL' THEN size END), 0)",
			"COALESCE(SUM(CASE WHEN action = 'BUY' THEN size * price END), 0)",
			"COALESCE(SUM(CASE WHEN action = 'SELL' THEN size * price END), 0)",
			"COALESCE(SUM(commission), 0)",
			"MIN(executed_at)",
			"MAX(executed_at)",
		).
		From("transactions").
		GroupBy("exchange", "symbol", "strategy_name").
		OrderBy("exchange", "symbol", "strategy_name").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to aggregate trade stats", err)
	}
	defer rows.Close()

	var stats []TradeStats

	for rows.Next() {
		var st TradeStats

		if err := rows.Scan(
			&st.Exchange, &st.Symbol, &st.StrategyName, &st.Fills,
			&st.BoughtSize, &st.SoldSize, &st.BuyVolume, &st.SellVolume,
			&st.TotalCommission, &st.FirstFill, &st.LastFill,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan trade stats", err)
		}

		st.NetCashFlow = st.SellVolume - st.BuyVolume - st.TotalCommission
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

// Transactions returns the fills for an asset in execution order.
func (s *Store) Transactions(asset types.Asset) ([]types.Transaction, error) {
	rows, err := s.sq.
		Select(
			"transaction_id", "order_id", "symbol", "exchange", "timeframe",
			"strategy_name", "action", "direction", "size", "price", "commission", "executed_at",
		).
		From("transactions").
		Where(squirrel.Eq{"exchange": asset.Exchange, "symbol": asset.Symbol}).
		OrderBy("executed_at").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to query transactions", err)
	}
	defer rows.Close()

	var out []types.Transaction

	for rows.Next() {
		var (
			tx                txRow
			price, commission float64
		)

		if err := rows.Scan(
			&tx.TransactionID, &tx.OrderID, &tx.Asset.Symbol, &tx.Asset.Exchange,
			&tx.Timeframe, &tx.StrategyName, &tx.Action, &tx.Direction,
			&tx.Size, &price, &commission, &tx.Timestamp,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan transaction", err)
		}

		out = append(out, tx.toTransaction(price, commission))
	}

	return out, rows.Err()
}

// SignalCount reports how many signals a strategy recorded.
func (s *Store) SignalCount(strategyName string) (int, error) {
	var count int

	err := s.sq.
		Select("COUNT(*)").
		From("signals").
		Where(squirrel.Eq{"strategy_name": strategyName}).
		RunWith(s.db).
		QueryRow().
		Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to count signals", err)
	}

	return count, nil
}

// OrderCount reports how many orders the run routed.
func (s *Store) OrderCount() (int, error) {
	var count int

	err := s.sq.
		Select("COUNT(*)").
		From("orders").
		RunWith(s.db).
		QueryRow().
		Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to count orders", err)
	}

	return count, nil
}

// Export writes every table to Parquet files under dir. Squirrel cannot
// express COPY so the statements are raw SQL.
func (s *Store) Export(dir string) error {
	tables := []string{"candles", "signals", "orders", "transactions"}

	for _, table := range tables {
		target := filepath.Join(dir, table+".parquet")

		if _, err := s.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target)); err != nil {
			return errors.Wrapf(errors.ErrCodeStoreExportFailed, err, "failed to export %s", table)
		}

		s.log.Info("exported table",
			zap.String("table", table),
			zap.String("path", target),
		)
	}

	return nil
}

// txRow is a scan target with string enums widened for database/sql.
type txRow struct {
	TransactionID string
	OrderID       string
	Asset         types.Asset
	Timeframe     string
	StrategyName  string
	Action        string
	Direction     string
	Size          float64
	Timestamp     time.Time
}

func (t txRow) toTransaction(price, commission float64) types.Transaction {
	return types.Transaction{
		TransactionID: t.TransactionID,
		OrderID:       t.OrderID,
		Asset:         t.Asset,
		Timeframe:     types.Timeframe(t.Timeframe),
		StrategyName:  t.StrategyName,
		Action:        types.Action(t.Action),
		Direction:     types.Direction(t.Direction),
		Size:          t.Size,
		Price:         decimal.NewFromFloat(price),
		Commission:    decimal.NewFromFloat(commission),
		Timestamp:     t.Timestamp,
	}
}
