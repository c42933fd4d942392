package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

type ManagerTestSuite struct {
	suite.Suite

	manager *Manager
	asset   types.Asset
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.manager = NewManager(logger.NewNopLogger())
	suite.asset = types.NewAsset("ETHEUR", "BINANCE")
}

func (suite *ManagerTestSuite) TestSameParametersShareOneNode() {
	a, err := suite.manager.SMA(suite.asset, types.Timeframe1m, 10)
	suite.Require().NoError(err)

	b, err := suite.manager.SMA(suite.asset, types.Timeframe1m, 10)
	suite.Require().NoError(err)

	suite.Same(a, b, "two requests for the same indicator share the node")

	c, err := suite.manager.SMA(suite.asset, types.Timeframe1m, 20)
	suite.Require().NoError(err)
	suite.NotSame(a, c)

	d, err := suite.manager.SMA(suite.asset, types.Timeframe5m, 10)
	suite.Require().NoError(err)
	suite.NotSame(a, d, "different timeframe means a different node")
}

func (suite *ManagerTestSuite) TestPushPropagatesOncePerTick() {
	sma, err := suite.manager.SMA(suite.asset, types.Timeframe1m, 3)
	suite.Require().NoError(err)

	// request the same node again; the extra request must not double ticks
	_, err = suite.manager.SMA(suite.asset, types.Timeframe1m, 3)
	suite.Require().NoError(err)

	pushes := 0

	sma.Subscribe(func(float64) { pushes++ })

	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, closePrice := range []float64{10, 20, 30} {
		suite.manager.Push(suite.asset, types.Timeframe1m, types.Candle{
			Asset:     suite.asset,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      closePrice, High: closePrice, Low: closePrice, Close: closePrice,
			Volume: 1,
		})
	}

	suite.Equal(3, pushes)
	suite.InDelta(20.0, sma.Data, 1e-9)
}

func (suite *ManagerTestSuite) TestSMACrossoverWaitsForFill() {
	cross, err := suite.manager.SMACrossover(suite.asset, types.Timeframe1m, 2, 3)
	suite.Require().NoError(err)

	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	push := func(i int, closePrice float64) {
		suite.manager.Push(suite.asset, types.Timeframe1m, types.Candle{
			Asset: suite.asset, Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice, Volume: 1,
		})
	}

	push(0, 10)
	push(1, 10)
	suite.Equal(CrossoverIdle, cross.State, "crossover idles until the slow average fills")

	// falling closes, then a sharp rise to force a rising cross
	push(2, 8)
	push(3, 6)
	push(4, 20)
	suite.Equal(1, cross.Data)
}

func (suite *ManagerTestSuite) TestWarmUpResizesAndReplays() {
	sma, err := suite.manager.SMA(suite.asset, types.Timeframe1m, 3)
	suite.Require().NoError(err)

	start := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)

	history := make([]types.Candle, DefaultSourceSize+10)
	for i := range history {
		price := float64(i + 1)
		history[i] = types.Candle{
			Asset: suite.asset, Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open: price, High: price, Low: price, Close: price, Volume: 1,
		}
	}

	suite.Require().NoError(suite.manager.WarmUp(suite.asset, types.Timeframe1m, history))

	root := suite.manager.CandleSource(suite.asset, types.Timeframe1m)
	suite.Equal(len(history), root.Size(), "source window grows to history length")
	suite.True(sma.Filled())

	n := float64(len(history))
	suite.InDelta((n+n-1+n-2)/3, sma.Data, 1e-9)
}

func (suite *ManagerTestSuite) TestDerivedGraphSharing() {
	bos1, err := suite.manager.CandleBOS(suite.asset, types.Timeframe1m, BOSSideAbove, 2)
	suite.Require().NoError(err)

	bos2, err := suite.manager.CandleBOS(suite.asset, types.Timeframe1m, BOSSideAbove, 2)
	suite.Require().NoError(err)
	suite.Same(bos1, bos2)

	// the underlying extrema tracker is shared too
	e1, err := suite.manager.PreviousExtrema(suite.asset, types.Timeframe1m, BOSSideAbove, 2, PeakMethodFractal)
	suite.Require().NoError(err)
	suite.Same(bos1.extrema, e1)
}
