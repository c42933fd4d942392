package types

import (
	"time"

	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Timeframe is the bar interval of a candle stream.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// Duration returns the length of one bar of this timeframe.
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

// IsIntraday reports whether the timeframe is shorter than one trading day.
func (t Timeframe) IsIntraday() bool {
	return t.Duration() < 24*time.Hour
}

// ParseTimeframe parses a timeframe string such as "5m" or "1d".
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", errors.Newf(errors.ErrCodeInvalidTimeframe, "unknown timeframe %q", s)
	}

	return tf, nil
}
