package persistence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/feed"
	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
	asset types.Asset
	sub   feed.Subscription
	ts    time.Time
}

func (suite *StoreTestSuite) SetupTest() {
	store, err := NewStore(":memory:", logger.NewNopLogger())
	suite.Require().NoError(err)

	suite.store = store
	suite.asset = types.Asset{Symbol: "AAPL", Exchange: "IEX"}
	suite.sub = feed.Subscription{Asset: suite.asset, Timeframe: types.Timeframe1m}
	suite.ts = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
}

func (suite *StoreTestSuite) TearDownTest() {
	suite.Require().NoError(suite.store.Close())
}

func (suite *StoreTestSuite) candle(ts time.Time) types.Candle {
	return types.Candle{
		Asset: suite.asset, Timestamp: ts,
		Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 500,
	}
}

func (suite *StoreTestSuite) TestRecordCandleIgnoresDuplicates() {
	suite.Require().NoError(suite.store.RecordCandle(suite.sub, suite.candle(suite.ts)))
	suite.Require().NoError(suite.store.RecordCandle(suite.sub, suite.candle(suite.ts)))
	suite.Require().NoError(suite.store.RecordCandle(suite.sub, suite.candle(suite.ts.Add(time.Minute))))

	var count int
	suite.Require().NoError(suite.store.db.QueryRow(`SELECT COUNT(*) FROM candles`).Scan(&count))
	suite.Equal(2, count)
}

func (suite *StoreTestSuite) TestSignalAndOrderCounts() {
	sig := types.Signal{
		Asset:               suite.asset,
		Timeframe:           types.Timeframe1m,
		Action:              types.ActionBuy,
		Direction:           types.DirectionLong,
		ConfidenceLevel:     0.5,
		Strategy:            "sma_cross",
		RootCandleTimestamp: suite.ts,
		GenerationTime:      suite.ts,
	}
	suite.Require().NoError(suite.store.RecordSignal(sig))
	// same (asset, strategy, root candle): deduplicated
	suite.Require().NoError(suite.store.RecordSignal(sig))

	count, err := suite.store.SignalCount("sma_cross")
	suite.Require().NoError(err)
	suite.Equal(1, count)

	order := types.Order{
		OrderID:        "o1",
		Asset:          suite.asset,
		Timeframe:      types.Timeframe1m,
		Action:         types.ActionBuy,
		Direction:      types.DirectionLong,
		Size:           10,
		SignalID:       sig.ID(),
		Type:           types.OrderTypeMarket,
		Status:         types.OrderStatusCreated,
		GenerationTime: suite.ts,
		StrategyName:   "sma_cross",
	}
	suite.Require().NoError(suite.store.RecordOrder(order))

	orders, err := suite.store.OrderCount()
	suite.Require().NoError(err)
	suite.Equal(1, orders)
}

func (suite *StoreTestSuite) TestTransactionsRoundTripAndStats() {
	buy := types.Transaction{
		TransactionID: "t1",
		OrderID:       "o1",
		Asset:         suite.asset,
		Timeframe:     types.Timeframe1m,
		StrategyName:  "sma_cross",
		Action:        types.ActionBuy,
		Direction:     types.DirectionLong,
		Size:          10,
		Price:         decimal.NewFromFloat(100),
		Commission:    decimal.NewFromFloat(1),
		Timestamp:     suite.ts,
	}
	sell := buy
	sell.TransactionID = "t2"
	sell.OrderID = "o2"
	sell.Action = types.ActionSell
	sell.Price = decimal.NewFromFloat(110)
	sell.Timestamp = suite.ts.Add(time.Hour)

	suite.Require().NoError(suite.store.RecordTransaction(buy, types.Order{}))
	suite.Require().NoError(suite.store.RecordTransaction(sell, types.Order{}))

	txs, err := suite.store.Transactions(suite.asset)
	suite.Require().NoError(err)
	suite.Require().Len(txs, 2)
	suite.Equal("t1", txs[0].TransactionID)
	suite.Equal(types.ActionSell, txs[1].Action)
	suite.Equal("110", txs[1].Price.String())

	stats, err := suite.store.Stats()
	suite.Require().NoError(err)
	suite.Require().Len(stats, 1)

	st := stats[0]
	suite.Equal("AAPL", st.Symbol)
	suite.Equal("sma_cross", st.StrategyName)
	suite.Equal(2, st.Fills)
	suite.Equal(10.0, st.BoughtSize)
	suite.Equal(10.0, st.SoldSize)
	suite.Equal(2.0, st.TotalCommission)
	// 1100 proceeds - 1000 cost - 2 commission
	suite.Equal(98.0, st.NetCashFlow)
}

func (suite *StoreTestSuite) TestExportWritesParquet() {
	suite.Require().NoError(suite.store.RecordCandle(suite.sub, suite.candle(suite.ts)))

	dir := suite.T().TempDir()
	suite.Require().NoError(suite.store.Export(dir))
	suite.FileExists(dir + "/candles.parquet")
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
