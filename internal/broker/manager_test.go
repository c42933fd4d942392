package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/clock"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

type ManagerTestSuite struct {
	suite.Suite
	clock  *clock.SimulationClock
	nasdaq *SimulationBroker
	crypto *SimulationBroker
	aapl   types.Asset
	msft   types.Asset
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.clock = clock.NewSimulationClock()
	suite.clock.Advance(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC))

	log := logger.NewNopLogger()
	suite.nasdaq = NewSimulationBroker(SimulationConfig{
		Exchange: "NASDAQ", Currency: "USD", InitialFunds: 10000,
	}, suite.clock, log)
	suite.crypto = NewSimulationBroker(SimulationConfig{
		Exchange: "BINANCE", Currency: "USDT", InitialFunds: 5000,
	}, suite.clock, log)

	suite.aapl = types.Asset{Symbol: "AAPL", Exchange: "NASDAQ"}
	suite.msft = types.Asset{Symbol: "MSFT", Exchange: "NASDAQ"}
}

func (suite *ManagerTestSuite) manager(mode IsolationMode) *Manager {
	return NewManager(mode, logger.NewNopLogger(), suite.nasdaq, suite.crypto)
}

func (suite *ManagerTestSuite) bar(asset types.Asset, price float64) types.Candle {
	return types.Candle{
		Asset: asset, Timestamp: suite.clock.CurrentTime(),
		Open: price, High: price, Low: price, Close: price, Volume: 1,
	}
}

// openLong buys size units at price on the NASDAQ broker under strategy.
func (suite *ManagerTestSuite) openLong(m *Manager, asset types.Asset, strategy string, size, price float64) {
	suite.Require().NoError(m.UpdatePrice(suite.bar(asset, price)))
	suite.Require().NoError(m.ExecuteOrder(types.Order{
		OrderID:        asset.Symbol + "-entry",
		Asset:          asset,
		Timeframe:      types.Timeframe1m,
		Action:         types.ActionBuy,
		Direction:      types.DirectionLong,
		Size:           size,
		SignalID:       "s1",
		Type:           types.OrderTypeMarket,
		GenerationTime: suite.clock.CurrentTime(),
		StrategyName:   strategy,
	}))
}

func (suite *ManagerTestSuite) TestRoutesByExchange() {
	m := suite.manager(IsolationExchange)

	suite.openLong(m, suite.aapl, "alpha", 10, 100)

	suite.True(suite.nasdaq.HasOpenedPosition(suite.aapl, types.DirectionLong))
	suite.False(suite.crypto.HasOpenedPosition(suite.aapl, types.DirectionLong))
}

func (suite *ManagerTestSuite) TestUnknownExchangeRejected() {
	m := suite.manager(IsolationExchange)

	err := m.ExecuteOrder(types.Order{
		OrderID:        "o1",
		Asset:          types.Asset{Symbol: "ES", Exchange: "CME"},
		Action:         types.ActionBuy,
		Direction:      types.DirectionLong,
		Size:           1,
		SignalID:       "s1",
		Type:           types.OrderTypeMarket,
		GenerationTime: suite.clock.CurrentTime(),
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeNoBrokerForVenue))
}

func (suite *ManagerTestSuite) TestExchangeIsolationCountsWholeExchange() {
	m := suite.manager(IsolationExchange)

	// ties up 2000 of the 10000; cash drops to 8000
	suite.openLong(m, suite.aapl, "alpha", 20, 100)
	suite.Require().NoError(m.UpdatePrice(suite.bar(suite.msft, 50)))

	size, err := m.MaxEntryOrderSize(SizingScope{
		Asset: suite.msft, Timeframe: types.Timeframe1m, StrategyName: "alpha",
	}, types.DirectionLong)
	suite.Require().NoError(err)

	// (8000 - 2000 committed) / 50
	suite.Equal(120.0, size)
}

func (suite *ManagerTestSuite) TestSymbolIsolationIgnoresOtherSymbols() {
	m := suite.manager(IsolationSymbol)

	suite.openLong(m, suite.aapl, "alpha", 20, 100)
	suite.Require().NoError(m.UpdatePrice(suite.bar(suite.msft, 50)))

	size, err := m.MaxEntryOrderSize(SizingScope{
		Asset: suite.msft, Timeframe: types.Timeframe1m, StrategyName: "alpha",
	}, types.DirectionLong)
	suite.Require().NoError(err)

	// committed cost of AAPL does not count against MSFT
	suite.Equal(160.0, size)
}

func (suite *ManagerTestSuite) TestStrategyIsolationIgnoresOtherStrategies() {
	m := suite.manager(IsolationStrategy)

	suite.openLong(m, suite.aapl, "alpha", 20, 100)
	suite.Require().NoError(m.UpdatePrice(suite.bar(suite.msft, 50)))

	// beta carries no positions, full remaining cash is available
	size, err := m.MaxEntryOrderSize(SizingScope{
		Asset: suite.msft, Timeframe: types.Timeframe1m, StrategyName: "beta",
	}, types.DirectionLong)
	suite.Require().NoError(err)
	suite.Equal(160.0, size)

	size, err = m.MaxEntryOrderSize(SizingScope{
		Asset: suite.msft, Timeframe: types.Timeframe1m, StrategyName: "alpha",
	}, types.DirectionLong)
	suite.Require().NoError(err)
	suite.Equal(120.0, size)
}

func (suite *ManagerTestSuite) TestAssetIsolationDistinguishesTimeframes() {
	m := suite.manager(IsolationStrategyAndAsset)

	suite.openLong(m, suite.aapl, "alpha", 20, 100)

	// same strategy, same symbol, different timeframe: not in horizon
	size, err := m.MaxEntryOrderSize(SizingScope{
		Asset: suite.aapl, Timeframe: types.Timeframe5m, StrategyName: "alpha",
	}, types.DirectionLong)
	suite.Require().NoError(err)
	suite.Equal(80.0, size)

	// exact tuple match counts the committed cost
	size, err = m.MaxEntryOrderSize(SizingScope{
		Asset: suite.aapl, Timeframe: types.Timeframe1m, StrategyName: "alpha",
	}, types.DirectionLong)
	suite.Require().NoError(err)
	suite.Equal(60.0, size)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
