package errors

import (
	"errors"
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

func (suite *ErrorTestSuite) TestNewError() {
	err := New(KindFetch, "provider unavailable")
	suite.Equal(KindFetch, err.Kind)
	suite.Equal("provider unavailable", err.Message)
	suite.Nil(err.Cause)
	suite.Equal("provider unavailable", err.Error())
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(KindOutOfRange, "purchased %s after last bar", "2024-06-01")
	suite.Equal("purchased 2024-06-01 after last bar", err.Message)
}

func (suite *ErrorTestSuite) TestWrapKeepsCause() {
	cause := errors.New("connection reset")
	err := Wrap(KindFetch, "fetch ABC", cause)
	suite.Equal("fetch ABC: connection reset", err.Error())
	suite.Equal(cause, err.Unwrap())
	suite.True(errors.Is(err, cause))
}

func (suite *ErrorTestSuite) TestSentinelMatchesByKind() {
	err := Newf(KindNotFound, "no cache for %s", "ABC")
	suite.True(errors.Is(err, ErrNotFound))
	suite.False(errors.Is(err, ErrFetch))
}

func (suite *ErrorTestSuite) TestHasKindThroughFmtWrap() {
	inner := New(KindInsufficientHistory, "need 4 points")
	outer := fmt.Errorf("classify: %w", inner)
	suite.True(HasKind(outer, KindInsufficientHistory))
	suite.Equal(KindInsufficientHistory, KindOf(outer))
	suite.False(HasKind(nil, KindInsufficientHistory))
}

func (suite *ErrorTestSuite) TestKindOfPlainError() {
	suite.Equal(KindUnknown, KindOf(errors.New("plain")))
}

func (suite *ErrorTestSuite) TestWithSymbolAndStage() {
	base := New(KindEmptyWindow, "no closes in holding window")
	err := WithStage(WithSymbol(base, "ABC"), "stoploss")

	var e *Error
	suite.Require().True(As(err, &e))
	suite.Equal("ABC", e.Symbol)
	suite.Equal("stoploss", e.Stage)
	suite.Equal(KindEmptyWindow, e.Kind)
	suite.Equal("[stoploss] ABC: no closes in holding window", err.Error())

	// the original is not mutated
	suite.Empty(base.Symbol)
	suite.Empty(base.Stage)
}

func (suite *ErrorTestSuite) TestWithStageOnPlainError() {
	err := WithStage(errors.New("disk full"), "refresh")
	suite.Equal("[refresh] disk full", err.Error())
	suite.Equal(KindUnknown, KindOf(err))
}

func (suite *ErrorTestSuite) TestAnnotateNil() {
	suite.Nil(WithSymbol(nil, "ABC"))
	suite.Nil(WithStage(nil, "refresh"))
}

func (suite *ErrorTestSuite) TestKindString() {
	suite.Equal("fetch", KindFetch.String())
	suite.Equal("insufficient_history", KindInsufficientHistory.String())
	suite.Equal("unknown", Kind(99).String())
}
