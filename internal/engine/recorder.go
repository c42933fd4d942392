package engine

import (
	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

// Recorder receives everything the engine processes, for persistence and
// later analysis. Write failures are logged but never stop the run.
type Recorder interface {
	RecordCandle(sub feed.Subscription, candle types.Candle) error
	RecordSignal(signal types.Signal) error
	RecordOrder(order types.Order) error
	RecordTransaction(tx types.Transaction, order types.Order) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordCandle(feed.Subscription, types.Candle) error { return nil }

func (NopRecorder) RecordSignal(types.Signal) error { return nil }

func (NopRecorder) RecordOrder(types.Order) error { return nil }

func (NopRecorder) RecordTransaction(types.Transaction, types.Order) error { return nil }
