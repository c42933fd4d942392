package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/tradeloop/internal/logger"
	"github.com/rxtech-lab/tradeloop/internal/types"
	"github.com/rxtech-lab/tradeloop/pkg/errors"
)

type PortfolioTestSuite struct {
	suite.Suite
	log *logger.Logger
}

func (suite *PortfolioTestSuite) SetupTest() {
	suite.log = logger.NewNopLogger()
}

func (suite *PortfolioTestSuite) asset() types.Asset {
	return types.Asset{Symbol: "AAPL", Exchange: "NASDAQ"}
}

func (suite *PortfolioTestSuite) TestBuyMovesCashAndOpensPosition() {
	p := NewPortfolio("USD", 10000, suite.log)

	err := p.ApplyTransaction(types.Transaction{
		TransactionID: "t1",
		Asset:         suite.asset(),
		Action:        types.ActionBuy,
		Direction:     types.DirectionLong,
		Size:          10,
		Price:         decimal.NewFromFloat(100),
		Commission:    decimal.NewFromFloat(1),
		Timestamp:     time.Now(),
	}, 1)
	suite.Require().NoError(err)

	suite.Equal("8999", p.Cash().String())

	pos, ok := p.Position(suite.asset(), types.DirectionLong)
	suite.Require().True(ok)
	suite.Equal(10.0, pos.NetSize())
	suite.InDelta(100.1, pos.AvgEntryPrice(), 1e-9)

	suite.Require().Len(p.History(), 1)
	suite.Equal(types.PortfolioEventTransaction, p.History()[0].Type)
}

func (suite *PortfolioTestSuite) TestFullExitDestroysPositionAndBanksPnl() {
	p := NewPortfolio("USD", 10000, suite.log)

	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t1", Asset: suite.asset(),
		Action: types.ActionBuy, Direction: types.DirectionLong,
		Size: 10, Price: decimal.NewFromFloat(100),
	}, 1))
	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t2", Asset: suite.asset(),
		Action: types.ActionSell, Direction: types.DirectionLong,
		Size: 10, Price: decimal.NewFromFloat(110),
	}, 1))

	_, ok := p.Position(suite.asset(), types.DirectionLong)
	suite.False(ok)
	suite.Equal("100", p.ClosedPnl().String())
	suite.Equal("10100", p.Cash().String())
}

func (suite *PortfolioTestSuite) TestShortRealisedPnl() {
	p := NewPortfolio("USD", 10000, suite.log)

	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t1", Asset: suite.asset(),
		Action: types.ActionSell, Direction: types.DirectionShort,
		Size: 5, Price: decimal.NewFromFloat(100),
	}, 1))
	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t2", Asset: suite.asset(),
		Action: types.ActionBuy, Direction: types.DirectionShort,
		Size: 5, Price: decimal.NewFromFloat(90),
	}, 1))

	// short sold at 100 and covered at 90 gains 10 per unit
	suite.Equal("50", p.ClosedPnl().String())
}

func (suite *PortfolioTestSuite) TestOverdraftRejected() {
	p := NewPortfolio("USD", 100, suite.log)

	err := p.ApplyTransaction(types.Transaction{
		TransactionID: "t1", Asset: suite.asset(),
		Action: types.ActionBuy, Direction: types.DirectionLong,
		Size: 10, Price: decimal.NewFromFloat(100),
	}, 1)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))
	suite.Equal("100", p.Cash().String())
	suite.Empty(p.History())
}

func (suite *PortfolioTestSuite) TestPartialExitKeepsPositionOpen() {
	p := NewPortfolio("USD", 10000, suite.log)

	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t1", Asset: suite.asset(),
		Action: types.ActionBuy, Direction: types.DirectionLong,
		Size: 10, Price: decimal.NewFromFloat(100),
	}, 1))
	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t2", Asset: suite.asset(),
		Action: types.ActionSell, Direction: types.DirectionLong,
		Size: 4, Price: decimal.NewFromFloat(120),
	}, 1))

	pos, ok := p.Position(suite.asset(), types.DirectionLong)
	suite.Require().True(ok)
	suite.Equal(6.0, pos.NetSize())
	suite.Equal("80", pos.RealisedPnl.String())
}

func (suite *PortfolioTestSuite) TestDepositAndWithdraw() {
	p := NewPortfolio("USD", 100, suite.log)

	p.Deposit(50, types.PortfolioEvent{Timestamp: time.Now()})
	suite.Equal("150", p.Cash().String())

	err := p.Withdraw(200, types.PortfolioEvent{Timestamp: time.Now()})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))

	suite.Require().NoError(p.Withdraw(150, types.PortfolioEvent{Timestamp: time.Now()}))
	suite.Equal("0", p.Cash().String())

	suite.Len(p.History(), 2)
	suite.Equal(types.PortfolioEventCashDeposit, p.History()[0].Type)
	suite.Equal(types.PortfolioEventCashWithdrawal, p.History()[1].Type)
}

func (suite *PortfolioTestSuite) TestEquityMarksToLastPrice() {
	p := NewPortfolio("USD", 1000, suite.log)

	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t1", Asset: suite.asset(),
		Action: types.ActionBuy, Direction: types.DirectionLong,
		Size: 5, Price: decimal.NewFromFloat(100),
	}, 1))

	p.UpdatePrice(suite.asset(), 130)

	// 500 cash plus 5 units at 130
	suite.Equal("1150", p.Equity().String())
}

func (suite *PortfolioTestSuite) TestEquityTreatsShortAsLiability() {
	p := NewPortfolio("USD", 10000, suite.log)

	suite.Require().NoError(p.ApplyTransaction(types.Transaction{
		TransactionID: "t1", Asset: suite.asset(),
		Action: types.ActionSell, Direction: types.DirectionShort,
		Size: 1, Price: decimal.NewFromFloat(100),
	}, 1))

	p.UpdatePrice(suite.asset(), 90)

	// 10100 cash minus the 90 cost of covering the short
	suite.Equal("10010", p.Equity().String())
}

func TestPortfolioTestSuite(t *testing.T) {
	suite.Run(t, new(PortfolioTestSuite))
}
