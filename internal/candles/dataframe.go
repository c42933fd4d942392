// Package candles provides the ordered candle containers and the
// deterministic resampling from a base timeframe into coarser timeframes
// against a market calendar.
package candles

import (
	"time"

	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// DataFrame is an ordered sequence of candles keyed by monotonically
// increasing timestamp, labeled by (asset, timeframe).
type DataFrame struct {
	asset     types.Asset
	timeframe types.Timeframe
	candles   []types.Candle
}

// NewDataFrame creates an empty dataframe for (asset, timeframe).
func NewDataFrame(asset types.Asset, timeframe types.Timeframe) *DataFrame {
	return &DataFrame{
		asset:     asset,
		timeframe: timeframe,
		candles:   nil,
	}
}

// NewDataFrameFromCandles creates a dataframe from candles already sorted
// ascending by timestamp. Duplicate timestamps are dropped silently,
// keeping the first occurrence; out-of-order input is an error.
func NewDataFrameFromCandles(asset types.Asset, timeframe types.Timeframe, candles []types.Candle) (*DataFrame, error) {
	df := NewDataFrame(asset, timeframe)
	for _, c := range candles {
		if err := df.Append(c); err != nil {
			if errors.HasCode(err, errors.ErrCodeDuplicateBar) {
				continue
			}

			return nil, err
		}
	}

	return df, nil
}

// Asset returns the dataframe's asset label.
func (df *DataFrame) Asset() types.Asset { return df.asset }

// Timeframe returns the dataframe's timeframe label.
func (df *DataFrame) Timeframe() types.Timeframe { return df.timeframe }

// Len returns the number of candles held.
func (df *DataFrame) Len() int { return len(df.candles) }

// Candles returns the underlying ascending candle slice. Callers must not
// mutate it.
func (df *DataFrame) Candles() []types.Candle { return df.candles }

// Last returns the most recent candle.
func (df *DataFrame) Last() (types.Candle, bool) {
	if len(df.candles) == 0 {
		return types.Candle{}, false
	}

	return df.candles[len(df.candles)-1], true
}

// Append adds a candle. Timestamps must be strictly increasing; a duplicate
// timestamp returns ErrCodeDuplicateBar and an earlier one
// ErrCodeOutOfOrderBar.
func (df *DataFrame) Append(c types.Candle) error {
	if last, ok := df.Last(); ok {
		if c.Timestamp.Equal(last.Timestamp) {
			return errors.Newf(errors.ErrCodeDuplicateBar,
				"duplicate bar at %s for %s", c.Timestamp.Format(time.RFC3339), df.asset.Key(df.timeframe))
		}

		if c.Timestamp.Before(last.Timestamp) {
			return errors.Newf(errors.ErrCodeOutOfOrderBar,
				"out-of-order bar %s after %s for %s",
				c.Timestamp.Format(time.RFC3339), last.Timestamp.Format(time.RFC3339), df.asset.Key(df.timeframe))
		}
	}

	df.candles = append(df.candles, c)

	return nil
}
