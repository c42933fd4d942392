package engine

import (
	"time"

	"github.com/rxtech-lab/tradeloop/internal/types"
)

// EventKind classifies entries in the engine's event queue.
type EventKind string

const (
	// EventMarketData is a new bar from the feed.
	EventMarketData EventKind = "market_data"
	// EventSignal is a strategy's trade intent awaiting sizing.
	EventSignal EventKind = "signal"
	// EventOrder is a sized order awaiting routing.
	EventOrder EventKind = "order"
	// EventMarketEod asks the engine to flatten positions on an exchange
	// before its trading session closes.
	EventMarketEod EventKind = "market_eod"
)

// Event is one entry of the engine's FIFO queue. Exactly one payload
// field is set, matching Kind.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	Candle types.Candle
	Signal types.Signal
	Order  types.Order

	// Exchange is set for market_eod events.
	Exchange string
}

// eventQueue is a FIFO drained to empty between feed batches. The loop
// is single threaded so no locking is needed.
type eventQueue struct {
	events []Event
}

func (q *eventQueue) push(ev Event) {
	q.events = append(q.events, ev)
}

func (q *eventQueue) pop() (Event, bool) {
	if len(q.events) == 0 {
		return Event{}, false
	}

	ev := q.events[0]
	q.events = q.events[1:]

	return ev, true
}

func (q *eventQueue) len() int {
	return len(q.events)
}
