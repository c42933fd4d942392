package types

import (
	"time"

	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

// Candle is an immutable OHLCV bar. Timestamp is the OPEN time of the bar
// in UTC; the timeframe is implicit from the container the candle lives in.
type Candle struct {
	Asset     Asset     `yaml:"asset" json:"asset" csv:"asset"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp" validate:"required"`
	Open      float64   `yaml:"open" json:"open" csv:"open" validate:"gt=0"`
	High      float64   `yaml:"high" json:"high" csv:"high" validate:"gt=0"`
	Low       float64   `yaml:"low" json:"low" csv:"low" validate:"gt=0"`
	Close     float64   `yaml:"close" json:"close" csv:"close" validate:"gt=0"`
	Volume    float64   `yaml:"volume" json:"volume" csv:"volume" validate:"gte=0"`
}

// Validate checks the OHLC ordering invariant: low <= open,close <= high
// and volume >= 0.
func (c *Candle) Validate() error {
	if c.Low > c.Open || c.Low > c.Close {
		return errors.Newf(errors.ErrCodeInvalidCandle,
			"candle %s@%s: low %.8f above open %.8f or close %.8f",
			c.Asset, c.Timestamp.Format(time.RFC3339), c.Low, c.Open, c.Close)
	}

	if c.High < c.Open || c.High < c.Close {
		return errors.Newf(errors.ErrCodeInvalidCandle,
			"candle %s@%s: high %.8f below open %.8f or close %.8f",
			c.Asset, c.Timestamp.Format(time.RFC3339), c.High, c.Open, c.Close)
	}

	if c.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidCandle,
			"candle %s@%s: negative volume %.8f",
			c.Asset, c.Timestamp.Format(time.RFC3339), c.Volume)
	}

	return nil
}

// Body returns the absolute distance between open and close.
func (c *Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}

	return c.Open - c.Close
}

// Mid returns the bar midpoint, the improved fill price for limit orders
// when the bar trades through the limit.
func (c *Candle) Mid() float64 {
	return (c.High + c.Low) / 2
}

// Range returns the high-low extent of the bar.
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// IsPinBar reports whether the candle body is less than 30% of its range.
// Pin bars are excluded from break-of-structure confirmation.
func (c *Candle) IsPinBar() bool {
	r := c.Range()
	if r == 0 {
		return false
	}

	return c.Body()/r < 0.3
}
