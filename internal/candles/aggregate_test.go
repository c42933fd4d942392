package candles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/calendar"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

type AggregateTestSuite struct {
	suite.Suite

	asset types.Asset
}

func TestAggregateSuite(t *testing.T) {
	suite.Run(t, new(AggregateTestSuite))
}

func (suite *AggregateTestSuite) SetupTest() {
	suite.asset = types.NewAsset("AAPL", "IEX")
}

func (suite *AggregateTestSuite) bar(ts time.Time, o, h, l, c, v float64) types.Candle {
	return types.Candle{Asset: suite.asset, Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func (suite *AggregateTestSuite) TestFiveMinuteResamplingRightLabeled() {
	day := time.Date(2020, 6, 11, 0, 0, 0, 0, time.UTC)
	at := func(h, m, s int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second) }

	input := []types.Candle{
		suite.bar(at(14, 17, 0), 10, 11, 9, 10.5, 7),
		suite.bar(at(14, 24, 0), 10.5, 12, 10, 11, 91),
		suite.bar(at(14, 24, 56), 11, 11.5, 10.8, 11.2, 30),
		suite.bar(at(14, 35, 0), 11.2, 11.4, 11.0, 11.1, 23),
		suite.bar(at(14, 41, 0), 11.1, 11.3, 11.0, 11.2, 21),
		suite.bar(at(14, 41, 58), 11.2, 11.6, 11.1, 11.5, 7),
	}

	df, err := NewDataFrameFromCandles(suite.asset, types.Timeframe1m, input)
	suite.Require().NoError(err)

	out, err := df.Aggregate(types.Timeframe5m, nil)
	suite.Require().NoError(err)

	bars := out.Candles()
	suite.Require().Len(bars, 6)

	wantLabels := []time.Time{at(14, 20, 0), at(14, 25, 0), at(14, 30, 0), at(14, 35, 0), at(14, 40, 0), at(14, 45, 0)}
	wantVolumes := []float64{7, 121, 0, 0, 23, 28}

	for i, b := range bars {
		suite.Equal(wantLabels[i], b.Timestamp, "label %d", i)
		suite.InDelta(wantVolumes[i], b.Volume, 1e-9, "volume %d", i)
	}

	// empty buckets forward-fill the prior close as flat OHLC
	suite.InDelta(11.2, bars[2].Open, 1e-9)
	suite.InDelta(11.2, bars[2].Close, 1e-9)
	suite.InDelta(11.2, bars[3].High, 1e-9)

	// merged bucket keeps first open, max high, min low, last close
	suite.InDelta(10.5, bars[1].Open, 1e-9)
	suite.InDelta(12.0, bars[1].High, 1e-9)
	suite.InDelta(10.0, bars[1].Low, 1e-9)
	suite.InDelta(11.2, bars[1].Close, 1e-9)
}

func (suite *AggregateTestSuite) TestVolumeSumPreserved() {
	start := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)

	var input []types.Candle

	totalVolume := 0.0
	for i := 0; i < 60; i++ {
		v := float64(i + 1)
		totalVolume += v
		input = append(input, suite.bar(start.Add(time.Duration(i)*time.Minute), 10, 11, 9, 10, v))
	}

	df, err := NewDataFrameFromCandles(suite.asset, types.Timeframe1m, input)
	suite.Require().NoError(err)

	out, err := df.Aggregate(types.Timeframe15m, nil)
	suite.Require().NoError(err)

	sum := 0.0
	for _, b := range out.Candles() {
		sum += b.Volume
	}

	suite.InDelta(totalVolume, sum, 1e-9)
}

func (suite *AggregateTestSuite) TestIdempotentOnMatchingTimeframe() {
	start := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	input := []types.Candle{
		suite.bar(start, 10, 11, 9, 10, 5),
		suite.bar(start.Add(5*time.Minute), 10, 12, 10, 11, 6),
	}

	df, err := NewDataFrameFromCandles(suite.asset, types.Timeframe5m, input)
	suite.Require().NoError(err)

	out, err := df.Aggregate(types.Timeframe5m, nil)
	suite.Require().NoError(err)
	suite.Equal(df.Candles(), out.Candles())
}

func (suite *AggregateTestSuite) TestDailyAggregationHonorsSessions() {
	cal := calendar.NewNYSECalendar(nil, nil)

	// 2020-06-11 is a Thursday; session 13:30-20:00 UTC
	var input []types.Candle

	// pre-market minute, must be dropped
	input = append(input, suite.bar(time.Date(2020, 6, 11, 13, 0, 0, 0, time.UTC), 99, 99, 99, 99, 1000))

	open := time.Date(2020, 6, 11, 13, 30, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		input = append(input, suite.bar(open.Add(time.Duration(i)*time.Minute), 10+float64(i), 11+float64(i), 9+float64(i), 10.5+float64(i), 10))
	}

	// friday session
	fridayOpen := time.Date(2020, 6, 12, 13, 30, 0, 0, time.UTC)
	input = append(input, suite.bar(fridayOpen, 25, 26, 24, 25.5, 7))

	df, err := NewDataFrameFromCandles(suite.asset, types.Timeframe1m, input)
	suite.Require().NoError(err)

	out, err := df.Aggregate(types.Timeframe1d, cal)
	suite.Require().NoError(err)

	bars := out.Candles()
	suite.Require().Len(bars, 2)

	suite.Equal(time.Date(2020, 6, 11, 0, 0, 0, 0, time.UTC), bars[0].Timestamp)
	suite.InDelta(10.0, bars[0].Open, 1e-9)   // first session bar, not the pre-market one
	suite.InDelta(100.0, bars[0].Volume, 1e-9) // pre-market volume dropped
	suite.InDelta(19.5, bars[0].Close, 1e-9)

	suite.Equal(time.Date(2020, 6, 12, 0, 0, 0, 0, time.UTC), bars[1].Timestamp)
	suite.InDelta(7.0, bars[1].Volume, 1e-9)
}

func (suite *AggregateTestSuite) TestDuplicateDroppedOutOfOrderFatal() {
	start := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)

	df := NewDataFrame(suite.asset, types.Timeframe1m)
	suite.NoError(df.Append(suite.bar(start, 10, 11, 9, 10, 5)))

	err := df.Append(suite.bar(start, 10, 11, 9, 10, 5))
	suite.True(errors.HasCode(err, errors.ErrCodeDuplicateBar))

	err = df.Append(suite.bar(start.Add(-time.Minute), 10, 11, 9, 10, 5))
	suite.True(errors.HasCode(err, errors.ErrCodeOutOfOrderBar))

	// constructor drops duplicates silently
	built, err := NewDataFrameFromCandles(suite.asset, types.Timeframe1m, []types.Candle{
		suite.bar(start, 10, 11, 9, 10, 5),
		suite.bar(start, 10, 11, 9, 10, 5),
		suite.bar(start.Add(time.Minute), 10, 11, 9, 10, 6),
	})
	suite.NoError(err)
	suite.Equal(2, built.Len())
}

func (suite *AggregateTestSuite) TestCannotDownsample() {
	df := NewDataFrame(suite.asset, types.Timeframe5m)
	_, err := df.Aggregate(types.Timeframe1m, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidAggregation))
}
