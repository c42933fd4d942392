package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/types"
)

type TimeframedWindowTestSuite struct {
	suite.Suite

	asset types.Asset
}

func TestTimeframedWindowSuite(t *testing.T) {
	suite.Run(t, new(TimeframedWindowTestSuite))
}

func (suite *TimeframedWindowTestSuite) SetupTest() {
	suite.asset = types.NewAsset("AAPL", "IEX")
}

func (suite *TimeframedWindowTestSuite) TestEmitsOneAggregatePerBoundary() {
	w, err := NewTimeFramedCandleRollingWindow(10, types.Timeframe5m)
	suite.Require().NoError(err)

	var emitted []types.Candle

	w.Subscribe(func(c types.Candle) { emitted = append(emitted, c) })

	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		w.PushCandle(types.Candle{
			Asset:     suite.asset,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      10 + float64(i),
			High:      11 + float64(i),
			Low:       9 + float64(i),
			Close:     10.5 + float64(i),
			Volume:    10,
		})
	}

	// bars 10:00-10:04 complete the 10:05 bucket when 10:05 arrives
	suite.Require().Len(emitted, 1)
	suite.Equal(start.Add(5*time.Minute), emitted[0].Timestamp)
	suite.InDelta(10.0, emitted[0].Open, 1e-9)
	suite.InDelta(15.0, emitted[0].High, 1e-9)
	suite.InDelta(9.0, emitted[0].Low, 1e-9)
	suite.InDelta(14.5, emitted[0].Close, 1e-9)
	suite.InDelta(50.0, emitted[0].Volume, 1e-9)

	// the open bucket flushes on demand
	w.Flush()
	suite.Require().Len(emitted, 2)
	suite.InDelta(20.0, emitted[1].Volume, 1e-9)
	suite.Equal(start.Add(10*time.Minute), emitted[1].Timestamp)

	// the window itself holds the aggregates
	suite.Equal(2, w.Count())
	latest, err := w.Get(0)
	suite.NoError(err)
	suite.Equal(emitted[1], latest)
}
