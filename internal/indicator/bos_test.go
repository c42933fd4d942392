package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/types"
)

type BOSTestSuite struct {
	suite.Suite

	asset types.Asset
	start time.Time
}

func TestBOSSuite(t *testing.T) {
	suite.Run(t, new(BOSTestSuite))
}

func (suite *BOSTestSuite) SetupTest() {
	suite.asset = types.NewAsset("ETHEUR", "BINANCE")
	suite.start = time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
}

// bar builds a candle with a solid body so it never counts as a pin bar.
func (suite *BOSTestSuite) bar(i int, high, closePrice float64) types.Candle {
	return types.Candle{
		Asset:     suite.asset,
		Timestamp: suite.start.Add(time.Duration(i) * time.Minute),
		Open:      closePrice - 0.9*(high-closePrice+1),
		High:      high,
		Low:       closePrice - (high - closePrice + 1),
		Close:     closePrice,
		Volume:    10,
	}
}

func (suite *BOSTestSuite) graph() (*Peak, *PreviousExtrema, *CandleBOS) {
	peak, err := NewPeak(GreaterThan, 1, PeakMethodFractal)
	suite.Require().NoError(err)

	extrema := NewPreviousExtrema(peak)
	bos := NewCandleBOS(extrema, BOSSideAbove)

	return peak, extrema, bos
}

func (suite *BOSTestSuite) push(peak *Peak, bos *CandleBOS, c types.Candle) {
	// extrema updates before the BOS check, matching graph order
	peak.Push(c.High)
	bos.Push(c)
}

func (suite *BOSTestSuite) TestTwoClosesBeyondExtremumFire() {
	peak, extrema, bos := suite.graph()

	// establish a high extremum at 10
	suite.push(peak, bos, suite.bar(0, 9, 8.5))
	suite.push(peak, bos, suite.bar(1, 10, 9.5))
	suite.push(peak, bos, suite.bar(2, 8, 7.5))
	suite.Require().True(extrema.Seen)
	suite.Require().InDelta(10.0, extrema.Data, 1e-9)

	// first close above: armed, not fired
	suite.push(peak, bos, suite.bar(3, 10.6, 10.5))
	suite.False(bos.Data)

	// second consecutive close above: break of structure
	suite.push(peak, bos, suite.bar(4, 10.9, 10.8))
	suite.True(bos.Data)
	suite.InDelta(10.0, bos.Level, 1e-9)
	suite.True(extrema.Broken)
}

func (suite *BOSTestSuite) TestBrokenExtremumFiresOnlyOnce() {
	peak, _, bos := suite.graph()

	suite.push(peak, bos, suite.bar(0, 9, 8.5))
	suite.push(peak, bos, suite.bar(1, 10, 9.5))
	suite.push(peak, bos, suite.bar(2, 8, 7.5))
	suite.push(peak, bos, suite.bar(3, 10.6, 10.5))
	suite.push(peak, bos, suite.bar(4, 10.9, 10.8))
	suite.Require().True(bos.Data)

	// further closes above the broken level do not fire again
	suite.push(peak, bos, suite.bar(5, 11.2, 11.1))
	suite.False(bos.Data)
}

func (suite *BOSTestSuite) TestPinBarDoesNotConfirm() {
	peak, extrema, bos := suite.graph()

	suite.push(peak, bos, suite.bar(0, 9, 8.5))
	suite.push(peak, bos, suite.bar(1, 10, 9.5))
	suite.push(peak, bos, suite.bar(2, 8, 7.5))
	suite.Require().True(extrema.Seen)

	suite.push(peak, bos, suite.bar(3, 10.6, 10.5))
	suite.False(bos.Data)

	// a pin bar closing above: body 0.2 of a 1.0 range
	pin := types.Candle{
		Asset:     suite.asset,
		Timestamp: suite.start.Add(4 * time.Minute),
		Open:      10.3,
		High:      11.1,
		Low:       10.1,
		Close:     10.5,
		Volume:    10,
	}
	peak.Push(pin.High)
	bos.Push(pin)
	suite.False(bos.Data, "pin bars cannot confirm a break")
	suite.False(extrema.Broken)
}
