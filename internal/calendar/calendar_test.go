package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CalendarTestSuite struct {
	suite.Suite
}

func TestCalendarSuite(t *testing.T) {
	suite.Run(t, new(CalendarTestSuite))
}

func (suite *CalendarTestSuite) TestAlwaysOpenSchedule() {
	cal := NewAlwaysOpenCalendar()
	start := time.Date(2021, 3, 1, 5, 0, 0, 0, time.UTC)
	end := time.Date(2021, 3, 3, 5, 0, 0, 0, time.UTC)

	sessions := cal.Schedule(start, end)
	suite.Len(sessions, 3)
	suite.Equal(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), sessions[0].Open)
	suite.Equal(time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC), sessions[0].Close)

	s, ok := cal.SessionAt(time.Date(2021, 3, 2, 23, 59, 0, 0, time.UTC))
	suite.True(ok)
	suite.Equal(time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC), s.Date)
}

func (suite *CalendarTestSuite) TestNYSESkipsWeekendsAndHolidays() {
	// 2020-07-03 observed Independence Day; 2020-07-04/05 weekend
	cal := NewNYSECalendar([]string{"2020-07-03"}, nil)

	start := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 7, 7, 0, 0, 0, 0, time.UTC)

	sessions := cal.Schedule(start, end)
	dates := make([]string, 0, len(sessions))
	for _, s := range sessions {
		dates = append(dates, s.Date.Format("2006-01-02"))
	}

	suite.Equal([]string{"2020-07-01", "2020-07-02", "2020-07-06", "2020-07-07"}, dates)
}

func (suite *CalendarTestSuite) TestNYSESessionHoursUTC() {
	cal := NewNYSECalendar(nil, nil)

	// EDT: 09:30 local == 13:30 UTC
	s, ok := cal.SessionAt(time.Date(2020, 6, 11, 14, 0, 0, 0, time.UTC))
	suite.True(ok)
	suite.Equal(time.Date(2020, 6, 11, 13, 30, 0, 0, time.UTC), s.Open)
	suite.Equal(time.Date(2020, 6, 11, 20, 0, 0, 0, time.UTC), s.Close)

	// before the open there is no session
	_, ok = cal.SessionAt(time.Date(2020, 6, 11, 13, 0, 0, 0, time.UTC))
	suite.False(ok)
}

func (suite *CalendarTestSuite) TestHalfDayClosesEarly() {
	cal := NewNYSECalendar(nil, []string{"2020-11-27"})

	sessions := cal.Schedule(
		time.Date(2020, 11, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 11, 27, 23, 0, 0, 0, time.UTC),
	)
	suite.Len(sessions, 1)
	// EST: 13:00 local == 18:00 UTC
	suite.Equal(time.Date(2020, 11, 27, 18, 0, 0, 0, time.UTC), sessions[0].Close)
}

func (suite *CalendarTestSuite) TestSpecialCloseTime() {
	loc, err := time.LoadLocation("America/New_York")
	suite.NoError(err)

	cal := NewEquityCalendar(EquityCalendarConfig{
		Name:      "TEST",
		Location:  loc,
		OpenHour:  9, OpenMin: 30,
		CloseHour: 16, CloseMin: 0,
		EarlyCloses: map[string]string{"2020-12-24": "14:05"},
	})

	sessions := cal.Schedule(
		time.Date(2020, 12, 24, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 12, 24, 23, 0, 0, 0, time.UTC),
	)
	suite.Len(sessions, 1)
	suite.Equal(time.Date(2020, 12, 24, 19, 5, 0, 0, time.UTC), sessions[0].Close)
}
