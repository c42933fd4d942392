package broker

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/clock"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

type SimulationBrokerTestSuite struct {
	suite.Suite
	broker *SimulationBroker
	clock  *clock.SimulationClock
	fills  []types.Transaction
	asset  types.Asset
}

func (suite *SimulationBrokerTestSuite) SetupTest() {
	suite.clock = clock.NewSimulationClock()
	suite.clock.Advance(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC))
	suite.broker = NewSimulationBroker(SimulationConfig{
		Exchange:     "NASDAQ",
		Currency:     "USD",
		InitialFunds: 10000,
		FeeModel:     FeeModelZero,
	}, suite.clock, logger.NewNopLogger())
	suite.fills = nil
	suite.broker.OnTransaction(func(tx types.Transaction, order types.Order) {
		suite.fills = append(suite.fills, tx)
	})
	suite.asset = types.Asset{Symbol: "AAPL", Exchange: "NASDAQ"}
}

func (suite *SimulationBrokerTestSuite) candle(ts time.Time, o, h, l, c float64) types.Candle {
	return types.Candle{Asset: suite.asset, Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func (suite *SimulationBrokerTestSuite) push(o, h, l, c float64) {
	suite.clock.Advance(suite.clock.CurrentTime().Add(time.Minute))
	suite.Require().NoError(suite.broker.UpdatePrice(suite.candle(suite.clock.CurrentTime(), o, h, l, c)))
}

func (suite *SimulationBrokerTestSuite) marketBuy(size float64) types.Order {
	return types.Order{
		OrderID:        "o1",
		Asset:          suite.asset,
		Action:         types.ActionBuy,
		Direction:      types.DirectionLong,
		Size:           size,
		SignalID:       "s1",
		Type:           types.OrderTypeMarket,
		GenerationTime: suite.clock.CurrentTime(),
	}
}

func (suite *SimulationBrokerTestSuite) TestMarketOrderFillsAtLastClose() {
	suite.push(100, 102, 98, 101)

	err := suite.broker.ExecuteOrder(suite.marketBuy(10))
	suite.Require().NoError(err)

	suite.Require().Len(suite.fills, 1)
	suite.Equal("101", suite.fills[0].Price.String())
	suite.Equal(10.0, suite.fills[0].Size)
	suite.True(suite.broker.HasOpenedPosition(suite.asset, types.DirectionLong))
}

func (suite *SimulationBrokerTestSuite) TestLimitBuyRestsUntilRangeCrosses() {
	suite.push(100, 102, 98, 101)

	order := suite.marketBuy(10)
	order.Type = types.OrderTypeLimit
	order.Limit = optional.Some(95.0)
	order.TimeInForce = time.Hour

	suite.Require().NoError(suite.broker.ExecuteOrder(order))
	suite.Empty(suite.fills)
	suite.Len(suite.broker.PendingOrders(), 1)

	// bar stays above the limit: still resting
	suite.push(100, 101, 96, 100)
	suite.Empty(suite.fills)

	// bar trades through 95: fills at the limit
	suite.push(96, 97, 94, 95)
	suite.Require().Len(suite.fills, 1)
	suite.Equal("95", suite.fills[0].Price.String())
	suite.Empty(suite.broker.PendingOrders())
}

func (suite *SimulationBrokerTestSuite) TestStopSellTriggersAdversely() {
	suite.push(100, 102, 98, 101)
	suite.Require().NoError(suite.broker.ExecuteOrder(suite.marketBuy(10)))
	suite.fills = nil

	stop := types.Order{
		OrderID:        "o2",
		Asset:          suite.asset,
		Action:         types.ActionSell,
		Direction:      types.DirectionLong,
		Size:           10,
		SignalID:       "s1",
		Type:           types.OrderTypeStop,
		Stop:           optional.Some(97.0),
		TimeInForce:    24 * time.Hour,
		GenerationTime: suite.clock.CurrentTime(),
		IsExit:         true,
	}
	suite.Require().NoError(suite.broker.ExecuteOrder(stop))

	suite.push(101, 103, 99, 102)
	suite.Empty(suite.fills)

	suite.push(99, 100, 96, 97)
	suite.Require().Len(suite.fills, 1)
	suite.Equal("97", suite.fills[0].Price.String())
	suite.False(suite.broker.HasOpenedPosition(suite.asset, types.DirectionLong))
}

func (suite *SimulationBrokerTestSuite) TestTrailingStopOnlyTightens() {
	suite.push(100, 102, 98, 100)
	suite.Require().NoError(suite.broker.ExecuteOrder(suite.marketBuy(10)))
	suite.fills = nil

	trail := types.Order{
		OrderID:        "o2",
		Asset:          suite.asset,
		Action:         types.ActionSell,
		Direction:      types.DirectionLong,
		Size:           10,
		SignalID:       "s1",
		Type:           types.OrderTypeTrailingStop,
		StopPct:        optional.Some(0.05),
		TimeInForce:    24 * time.Hour,
		GenerationTime: suite.clock.CurrentTime(),
		IsExit:         true,
	}
	suite.Require().NoError(suite.broker.ExecuteOrder(trail))

	// price rises: stop ratchets from 95 to 0.95*110 = 104.5
	suite.push(105, 111, 104, 110)
	suite.Empty(suite.fills)

	// pullback that stays above the stop does not loosen it
	suite.push(109, 110, 105, 106)
	suite.Empty(suite.fills)

	// trades through 104.5: converts to market and fills at the bar close
	suite.push(105, 106, 103, 104)
	suite.Require().Len(suite.fills, 1)
	suite.Equal("104", suite.fills[0].Price.String())
}

func (suite *SimulationBrokerTestSuite) TestTrailingStopFillsAtTradedPriceOnGap() {
	suite.push(1, 1, 1, 1)
	suite.Require().NoError(suite.broker.ExecuteOrder(suite.marketBuy(10)))
	suite.fills = nil

	trail := types.Order{
		OrderID:        "o2",
		Asset:          suite.asset,
		Action:         types.ActionSell,
		Direction:      types.DirectionLong,
		Size:           10,
		SignalID:       "s1",
		Type:           types.OrderTypeTrailingStop,
		StopPct:        optional.Some(0.05),
		TimeInForce:    24 * time.Hour,
		GenerationTime: suite.clock.CurrentTime(),
		IsExit:         true,
	}
	suite.Require().NoError(suite.broker.ExecuteOrder(trail))

	// stop ratchets to 1.0545, then 1.0925
	suite.push(1.11, 1.11, 1.11, 1.11)
	suite.push(1.15, 1.15, 1.15, 1.15)
	suite.Empty(suite.fills)

	// the bar never trades at 1.0925; the fill is the traded 1.09
	suite.push(1.09, 1.09, 1.09, 1.09)
	suite.Require().Len(suite.fills, 1)
	suite.Equal("1.09", suite.fills[0].Price.String())
}

func (suite *SimulationBrokerTestSuite) TestStopSellGapThroughFillsInRange() {
	suite.push(100, 102, 98, 101)
	suite.Require().NoError(suite.broker.ExecuteOrder(suite.marketBuy(10)))
	suite.fills = nil

	stop := types.Order{
		OrderID:        "o2",
		Asset:          suite.asset,
		Action:         types.ActionSell,
		Direction:      types.DirectionLong,
		Size:           10,
		SignalID:       "s1",
		Type:           types.OrderTypeStop,
		Stop:           optional.Some(97.0),
		TimeInForce:    24 * time.Hour,
		GenerationTime: suite.clock.CurrentTime(),
		IsExit:         true,
	}
	suite.Require().NoError(suite.broker.ExecuteOrder(stop))

	// bar opens well below the stop: 97 never printed, fill at the bar high
	suite.push(92, 93, 90, 91)
	suite.Require().Len(suite.fills, 1)
	suite.Equal("93", suite.fills[0].Price.String())
}

func (suite *SimulationBrokerTestSuite) TestLimitSellImprovesToMidpoint() {
	suite.push(100, 102, 98, 101)
	suite.Require().NoError(suite.broker.ExecuteOrder(suite.marketBuy(10)))
	suite.fills = nil

	sell := types.Order{
		OrderID:        "o2",
		Asset:          suite.asset,
		Action:         types.ActionSell,
		Direction:      types.DirectionLong,
		Size:           10,
		SignalID:       "s1",
		Type:           types.OrderTypeLimit,
		Limit:          optional.Some(103.0),
		TimeInForce:    24 * time.Hour,
		GenerationTime: suite.clock.CurrentTime(),
		IsExit:         true,
	}
	suite.Require().NoError(suite.broker.ExecuteOrder(sell))
	suite.Empty(suite.fills)

	// bar trades through 103 with midpoint 108: the fill improves
	suite.push(108, 110, 106, 107)
	suite.Require().Len(suite.fills, 1)
	suite.Equal("108", suite.fills[0].Price.String())
}

func (suite *SimulationBrokerTestSuite) TestTimeInForceExpiresRestingOrder() {
	suite.push(100, 102, 98, 101)

	order := suite.marketBuy(10)
	order.Type = types.OrderTypeLimit
	order.Limit = optional.Some(95.0)
	order.TimeInForce = 90 * time.Second

	suite.Require().NoError(suite.broker.ExecuteOrder(order))
	suite.Len(suite.broker.PendingOrders(), 1)

	suite.push(100, 101, 99, 100)
	suite.Len(suite.broker.PendingOrders(), 1)

	// third minute is past the 90s lifetime
	suite.push(100, 101, 94, 95)
	suite.Empty(suite.broker.PendingOrders())
	suite.Empty(suite.fills)
}

func (suite *SimulationBrokerTestSuite) TestExitClampedToOpenSize() {
	suite.push(100, 102, 98, 101)
	suite.Require().NoError(suite.broker.ExecuteOrder(suite.marketBuy(5)))
	suite.fills = nil

	exit := types.Order{
		OrderID:        "o2",
		Asset:          suite.asset,
		Action:         types.ActionSell,
		Direction:      types.DirectionLong,
		Size:           50,
		SignalID:       "s1",
		Type:           types.OrderTypeMarket,
		GenerationTime: suite.clock.CurrentTime(),
		IsExit:         true,
	}
	suite.Require().NoError(suite.broker.ExecuteOrder(exit))

	suite.Require().Len(suite.fills, 1)
	suite.Equal(5.0, suite.fills[0].Size)
}

func (suite *SimulationBrokerTestSuite) TestSubLotOrderRejected() {
	suite.push(100, 102, 98, 101)

	err := suite.broker.ExecuteOrder(suite.marketBuy(0.4))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeOrderRejected))

	history := suite.broker.Portfolio().History()
	suite.Require().Len(history, 1)
	suite.Equal(types.PortfolioEventOrderRejected, history[0].Type)
}

func (suite *SimulationBrokerTestSuite) TestInsufficientFundsRejected() {
	suite.push(100, 102, 98, 101)

	err := suite.broker.ExecuteOrder(suite.marketBuy(500))
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))
	suite.Equal("10000", suite.broker.Portfolio().Cash().String())
}

func (suite *SimulationBrokerTestSuite) TestMaxEntryOrderSizeFloorsToLot() {
	suite.push(100, 102, 98, 101)

	size, err := suite.broker.MaxEntryOrderSize(suite.asset, types.DirectionLong, optional.None[float64]())
	suite.Require().NoError(err)
	suite.Equal(99.0, size)

	size, err = suite.broker.MaxEntryOrderSize(suite.asset, types.DirectionLong, optional.Some(250.0))
	suite.Require().NoError(err)
	suite.Equal(2.0, size)
}

func (suite *SimulationBrokerTestSuite) TestCancelRemovesRestingOrder() {
	suite.push(100, 102, 98, 101)

	order := suite.marketBuy(10)
	order.Type = types.OrderTypeLimit
	order.Limit = optional.Some(95.0)
	order.TimeInForce = time.Hour

	suite.Require().NoError(suite.broker.ExecuteOrder(order))
	suite.Require().NoError(suite.broker.CancelOrder("o1"))
	suite.Empty(suite.broker.PendingOrders())

	suite.push(96, 97, 94, 95)
	suite.Empty(suite.fills)
}

func TestSimulationBrokerTestSuite(t *testing.T) {
	suite.Run(t, new(SimulationBrokerTestSuite))
}
