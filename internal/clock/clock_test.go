package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ClockTestSuite struct {
	suite.Suite
}

func TestClockSuite(t *testing.T) {
	suite.Run(t, new(ClockTestSuite))
}

func (suite *ClockTestSuite) TestSimulationClockAdvances() {
	c := NewSimulationClock()
	suite.True(c.CurrentTime().IsZero())

	t1 := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	c.Advance(t1)
	suite.Equal(t1, c.CurrentTime())

	t2 := t1.Add(time.Minute)
	c.Advance(t2)
	suite.Equal(t2, c.CurrentTime())
}

func (suite *ClockTestSuite) TestSimulationClockNeverRewinds() {
	c := NewSimulationClock()
	t1 := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	c.Advance(t1)
	c.Advance(t1.Add(-time.Hour))
	suite.Equal(t1, c.CurrentTime())
}

func (suite *ClockTestSuite) TestLiveClockTracksWallTime() {
	c := NewLiveClock()
	before := time.Now().UTC().Add(-time.Second)
	now := c.CurrentTime()
	after := time.Now().UTC().Add(time.Second)
	suite.True(now.After(before))
	suite.True(now.Before(after))
}
