package indicator

import (
	"time"

	"github.com/rxtech-lab/tradeloop/internal/candles"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// TimeFramedCandleRollingWindow consumes base-timeframe candles and emits
// one aggregated candle per output-timeframe bucket boundary. Downstream
// subscribers see exactly one push per emitted aggregate.
type TimeFramedCandleRollingWindow struct {
	*RollingWindow[types.Candle]

	target types.Timeframe

	bucketLabel time.Time
	bucket      []types.Candle
}

// NewTimeFramedCandleRollingWindow creates a window of aggregated candles
// for the target timeframe.
func NewTimeFramedCandleRollingWindow(size int, target types.Timeframe) (*TimeFramedCandleRollingWindow, error) {
	inner, err := NewRollingWindow[types.Candle](size)
	if err != nil {
		return nil, err
	}

	return &TimeFramedCandleRollingWindow{
		RollingWindow: inner,
		target:        target,
	}, nil
}

// Timeframe returns the output timeframe.
func (w *TimeFramedCandleRollingWindow) Timeframe() types.Timeframe { return w.target }

// PushCandle feeds one base-timeframe candle. When the candle crosses a
// bucket boundary the completed bucket is merged and pushed through the
// underlying rolling window.
func (w *TimeFramedCandleRollingWindow) PushCandle(c types.Candle) {
	label := candles.BucketLabel(c.Timestamp, w.target)

	if len(w.bucket) > 0 && !label.Equal(w.bucketLabel) {
		w.flush()
	}

	w.bucketLabel = label
	w.bucket = append(w.bucket, c)
}

// Flush force-emits the open bucket, e.g. at end of session or feed
// exhaustion.
func (w *TimeFramedCandleRollingWindow) Flush() {
	if len(w.bucket) > 0 {
		w.flush()
	}
}

func (w *TimeFramedCandleRollingWindow) flush() {
	merged := candles.MergeBucket(w.bucket[0].Asset, w.bucketLabel, w.bucket)
	w.bucket = w.bucket[:0]
	w.Push(merged)
}
