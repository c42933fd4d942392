package feed

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// HistoricalFeed serves candles from a DuckDB database. CSV files load
// into one shared table; each (asset, timeframe) pair becomes a
// subscription.
type HistoricalFeed struct {
	db   *sql.DB
	sq   squirrel.StatementBuilderType
	log  *logger.Logger
	subs []Subscription
}

// NewHistoricalFeed opens (or creates) a DuckDB database at path.
// ":memory:" gives a throwaway in-process database.
func NewHistoricalFeed(path string, log *logger.Logger) (*HistoricalFeed, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreInitFailed, "failed to open duckdb", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			exchange VARCHAR NOT NULL,
			symbol VARCHAR NOT NULL,
			timeframe VARCHAR NOT NULL,
			time TIMESTAMP NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL,
			UNIQUE (exchange, symbol, timeframe, time)
		);
	`); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to create candles table", err)
	}

	return &HistoricalFeed{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log: log,
	}, nil
}

// LoadCSV ingests a candle CSV (timestamp,open,high,low,close,volume in
// ISO-8601 UTC, ascending) as the series for sub.
func (f *HistoricalFeed) LoadCSV(path string, sub Subscription) error {
	query := fmt.Sprintf(`
		INSERT INTO candles
		SELECT $1, $2, $3, timestamp, open, high, low, close, volume
		FROM read_csv('%s', header = true, columns = {
			'timestamp': 'TIMESTAMP',
			'open': 'DOUBLE',
			'high': 'DOUBLE',
			'low': 'DOUBLE',
			'close': 'DOUBLE',
			'volume': 'DOUBLE'
		});
	`, path)

	if _, err := f.db.Exec(query, sub.Asset.Exchange, sub.Asset.Symbol, string(sub.Timeframe)); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreQueryFailed, err, "failed to load csv %s", path)
	}

	f.register(sub)
	f.log.Info("loaded candle csv",
		zap.String("path", path),
		zap.String("series", sub.Key()),
	)

	return nil
}

// AddCandles inserts candles directly, mainly for tests and the download
// pipeline.
func (f *HistoricalFeed) AddCandles(sub Subscription, candles []types.Candle) error {
	stmt, err := f.db.Prepare(`INSERT INTO candles VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(
			sub.Asset.Exchange, sub.Asset.Symbol, string(sub.Timeframe),
			c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to insert candle", err)
		}
	}

	f.register(sub)

	return nil
}

func (f *HistoricalFeed) register(sub Subscription) {
	for _, s := range f.subs {
		if s == sub {
			return
		}
	}

	f.subs = append(f.subs, sub)
}

// Subscriptions implements Feed.
func (f *HistoricalFeed) Subscriptions() []Subscription {
	out := make([]Subscription, len(f.subs))
	copy(out, f.subs)

	return out
}

func (f *HistoricalFeed) seriesWhere(sub Subscription) squirrel.Eq {
	return squirrel.Eq{
		"exchange":  sub.Asset.Exchange,
		"symbol":    sub.Asset.Symbol,
		"timeframe": string(sub.Timeframe),
	}
}

// Candles implements Feed with a lazy row iterator in the manner of
// database cursors: rows stream as the caller consumes them.
func (f *HistoricalFeed) Candles(sub Subscription) func(yield func(types.Candle, error) bool) {
	return func(yield func(types.Candle, error) bool) {
		query, args, err := f.sq.
			Select("time", "open", "high", "low", "close", "volume").
			From("candles").
			Where(f.seriesWhere(sub)).
			OrderBy("time ASC").
			ToSql()
		if err != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to build query", err))

			return
		}

		rows, err := f.db.Query(query, args...)
		if err != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to query candles", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			candle, err := f.scanCandle(rows, sub)
			if err != nil {
				yield(types.Candle{}, err)

				return
			}

			if !yield(candle, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeStoreQueryFailed, "candle row iteration failed", err))
		}
	}
}

func (f *HistoricalFeed) scanCandle(rows *sql.Rows, sub Subscription) (types.Candle, error) {
	var (
		ts         time.Time
		o, h, l, c float64
		v          float64
	)

	if err := rows.Scan(&ts, &o, &h, &l, &c, &v); err != nil {
		return types.Candle{}, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan candle", err)
	}

	return types.Candle{
		Asset:     sub.Asset,
		Timestamp: ts.UTC(),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}, nil
}

// History implements Feed: the count candles closest before the cutoff,
// returned ascending.
func (f *HistoricalFeed) History(sub Subscription, before time.Time, count int) ([]types.Candle, error) {
	query, args, err := f.sq.
		Select("time", "open", "high", "low", "close", "volume").
		From("candles").
		Where(f.seriesWhere(sub)).
		Where(squirrel.Lt{"time": before}).
		OrderBy("time DESC").
		Limit(uint64(count)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to build history query", err)
	}

	rows, err := f.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to query history", err)
	}
	defer rows.Close()

	var out []types.Candle

	for rows.Next() {
		candle, err := f.scanCandle(rows, sub)
		if err != nil {
			return nil, err
		}

		out = append(out, candle)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "history iteration failed", err)
	}

	// rows came newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

// Count implements Feed.
func (f *HistoricalFeed) Count(sub Subscription) (int, error) {
	query, args, err := f.sq.
		Select("COUNT(*)").
		From("candles").
		Where(f.seriesWhere(sub)).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := f.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to count candles", err)
	}

	return count, nil
}

// Close implements Feed.
func (f *HistoricalFeed) Close() error {
	return f.db.Close()
}
