package types

import (
	"fmt"
	"time"
)

// Signal is a strategy's intent to trade. It carries no size; the order
// manager sizes and translates it into concrete orders.
type Signal struct {
	Asset Asset `yaml:"asset" json:"asset"`
	// Timeframe is the bar resolution the strategy was watching when it
	// emitted the signal.
	Timeframe Timeframe `yaml:"timeframe" json:"timeframe"`
	Action    Action    `yaml:"action" json:"action"`
	Direction Direction `yaml:"direction" json:"direction"`
	// ConfidenceLevel scales the cash fraction the sizer may commit, in (0, 1].
	ConfidenceLevel float64 `yaml:"confidence_level" json:"confidence_level"`
	// Strategy is the name of the emitting strategy.
	Strategy string `yaml:"strategy" json:"strategy"`
	// RootCandleTimestamp is the open time of the bar that triggered the signal.
	RootCandleTimestamp time.Time `yaml:"root_candle_timestamp" json:"root_candle_timestamp"`
	// TimeInForce bounds the lifetime of orders created from this signal.
	// Zero means immediate market execution.
	TimeInForce time.Duration `yaml:"time_in_force" json:"time_in_force"`
	// Parameters carries strategy-specific values (e.g. stop percentages)
	// forwarded to the order creator.
	Parameters     map[string]float64 `yaml:"parameters" json:"parameters"`
	GenerationTime time.Time          `yaml:"generation_time" json:"generation_time"`
	// IsExit marks signals that close an existing position leg.
	IsExit bool `yaml:"is_exit" json:"is_exit"`
}

// ID returns the uniqueness key (asset, strategy, root candle timestamp).
func (s *Signal) ID() string {
	return fmt.Sprintf("%s:%s:%d", s.Asset, s.Strategy, s.RootCandleTimestamp.UnixMilli())
}
