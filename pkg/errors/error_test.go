package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNew() {
	err := New(ErrCodeOrderRejected, "venue refused order")
	suite.Equal(ErrCodeOrderRejected, err.Code)
	suite.Equal("[501] venue refused order", err.Error())
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewf() {
	err := Newf(ErrCodeDataGap, "duplicate bar for %s", "BINANCE-ETHEUR-1m")
	suite.Equal(ErrCodeDataGap, err.Code)
	suite.Contains(err.Error(), "BINANCE-ETHEUR-1m")
}

func (suite *ErrorTestSuite) TestWrapPreservesCause() {
	cause := stderrors.New("connection reset")
	err := Wrap(ErrCodeTransientVenue, "ticker fetch failed", cause)
	suite.Equal(cause, stderrors.Unwrap(err))
	suite.Contains(err.Error(), "connection reset")
}

func (suite *ErrorTestSuite) TestGetCodeThroughChain() {
	inner := Newf(ErrCodeInvariantViolation, "short exit exceeds open size")
	wrapped := fmt.Errorf("executing order: %w", inner)
	suite.Equal(ErrCodeInvariantViolation, GetCode(wrapped))
	suite.True(HasCode(wrapped, ErrCodeInvariantViolation))
	suite.True(IsInvariantViolation(wrapped))
	suite.False(IsTransient(wrapped))
}

func (suite *ErrorTestSuite) TestGetCodeUnknownForPlainError() {
	suite.Equal(ErrCodeUnknown, GetCode(stderrors.New("plain")))
}

func (suite *ErrorTestSuite) TestInsufficientHistoryError() {
	err := NewInsufficientHistoryError(50, 12, "IEX-AAPL-1m", "warmup needs 50 bars, have 12")
	suite.True(IsInsufficientHistoryError(err))
	suite.Equal(50, err.Required)
	suite.Equal(12, err.Actual)

	wrapped := fmt.Errorf("prefill: %w", err)
	suite.True(IsInsufficientHistoryError(wrapped))
	suite.False(IsInsufficientHistoryError(stderrors.New("other")))
}
