package candles

import (
	"time"

	"github.com/rxtech-lab/tradeloop/internal/calendar"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// BucketLabel returns the right label of the intraday bucket containing ts:
// buckets are [T-u, T) labeled T, so a bar opening exactly on a boundary
// belongs to the following bucket.
func BucketLabel(ts time.Time, target types.Timeframe) time.Time {
	u := target.Duration()
	floored := ts.Truncate(u)

	return floored.Add(u)
}

// MergeBucket folds a bucket of base candles into one aggregate:
// open = first open, high = max high, low = min low, close = last close,
// volume = sum.
func MergeBucket(asset types.Asset, label time.Time, bucket []types.Candle) types.Candle {
	out := types.Candle{
		Asset:     asset,
		Timestamp: label,
		Open:      bucket[0].Open,
		High:      bucket[0].High,
		Low:       bucket[0].Low,
		Close:     bucket[len(bucket)-1].Close,
	}

	for _, c := range bucket {
		if c.High > out.High {
			out.High = c.High
		}

		if c.Low < out.Low {
			out.Low = c.Low
		}

		out.Volume += c.Volume
	}

	return out
}

// Aggregate resamples the dataframe to a coarser timeframe against a market
// calendar. It is a pure function of (input bars, target, calendar) and is
// idempotent when the input already matches the target timeframe.
//
// Intraday targets use fixed-length, right-labeled buckets; gaps between
// buckets forward-fill the previous close into synthetic zero-volume bars.
// Daily and coarser targets bucket by trading session; minutes outside a
// session are dropped and the session date labels the output bar.
func (df *DataFrame) Aggregate(target types.Timeframe, cal calendar.MarketCalendar) (*DataFrame, error) {
	if target.Duration() < df.timeframe.Duration() {
		return nil, errors.Newf(errors.ErrCodeInvalidAggregation,
			"cannot aggregate %s into finer timeframe %s", df.timeframe, target)
	}

	if target == df.timeframe {
		return NewDataFrameFromCandles(df.asset, target, df.candles)
	}

	if target.IsIntraday() {
		return df.aggregateIntraday(target)
	}

	return df.aggregateBySession(target, cal)
}

func (df *DataFrame) aggregateIntraday(target types.Timeframe) (*DataFrame, error) {
	out := NewDataFrame(df.asset, target)
	if len(df.candles) == 0 {
		return out, nil
	}

	u := target.Duration()

	type bucket struct {
		label   time.Time
		candles []types.Candle
	}

	var buckets []bucket

	for _, c := range df.candles {
		label := BucketLabel(c.Timestamp, target)
		if len(buckets) == 0 || !buckets[len(buckets)-1].label.Equal(label) {
			buckets = append(buckets, bucket{label: label})
		}

		last := &buckets[len(buckets)-1]
		last.candles = append(last.candles, c)
	}

	// Emit the buckets, forward-filling empty ones with synthetic bars
	// carrying the previous close and zero volume.
	prevClose := 0.0
	next := buckets[0].label

	for _, b := range buckets {
		for next.Before(b.label) {
			if prevClose > 0 {
				synthetic := types.Candle{
					Asset:     df.asset,
					Timestamp: next,
					Open:      prevClose,
					High:      prevClose,
					Low:       prevClose,
					Close:     prevClose,
					Volume:    0,
				}
				if err := out.Append(synthetic); err != nil {
					return nil, err
				}
			}

			next = next.Add(u)
		}

		merged := MergeBucket(df.asset, b.label, b.candles)
		if err := out.Append(merged); err != nil {
			return nil, err
		}

		prevClose = merged.Close
		next = b.label.Add(u)
	}

	return out, nil
}

func (df *DataFrame) aggregateBySession(target types.Timeframe, cal calendar.MarketCalendar) (*DataFrame, error) {
	out := NewDataFrame(df.asset, target)
	if len(df.candles) == 0 {
		return out, nil
	}

	if cal == nil {
		return nil, errors.New(errors.ErrCodeInvalidCalendar, "session aggregation requires a market calendar")
	}

	var (
		current calendar.Session
		have    bool
		bucket  []types.Candle
	)

	flush := func() error {
		if len(bucket) == 0 {
			return nil
		}

		merged := MergeBucket(df.asset, current.Date, bucket)
		bucket = nil

		return out.Append(merged)
	}

	for _, c := range df.candles {
		session, ok := cal.SessionAt(c.Timestamp)
		if !ok {
			// non-session minute, dropped
			continue
		}

		if !have || !session.Date.Equal(current.Date) {
			if err := flush(); err != nil {
				return nil, err
			}

			current = session
			have = true
		}

		bucket = append(bucket, c)
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}
