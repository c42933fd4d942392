// Package calendar defines trading-session calendars used by daily candle
// aggregation and end-of-day handling. A calendar answers one question: for
// a date range, which sessions exist and when do they open and close.
package calendar

import (
	"time"
)

// Session is a single trading session. Open and Close are instants in UTC;
// Date labels the session for daily aggregation.
type Session struct {
	Date  time.Time
	Open  time.Time
	Close time.Time
}

// Contains reports whether t falls inside the session, open inclusive,
// close exclusive.
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Open) && t.Before(s.Close)
}

// MarketCalendar enumerates trading sessions for a venue.
type MarketCalendar interface {
	// Name identifies the calendar.
	Name() string
	// Schedule returns the sessions whose dates fall in [start, end],
	// ordered ascending.
	Schedule(start, end time.Time) []Session
	// SessionAt returns the session containing t, if any.
	SessionAt(t time.Time) (Session, bool)
}

// AlwaysOpenCalendar models venues without session boundaries, such as
// crypto exchanges. Every UTC day is one session.
type AlwaysOpenCalendar struct{}

// NewAlwaysOpenCalendar creates a 24/7 calendar.
func NewAlwaysOpenCalendar() *AlwaysOpenCalendar {
	return &AlwaysOpenCalendar{}
}

// Name implements MarketCalendar.
func (c *AlwaysOpenCalendar) Name() string { return "24/7" }

// Schedule implements MarketCalendar.
func (c *AlwaysOpenCalendar) Schedule(start, end time.Time) []Session {
	var sessions []Session

	day := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Truncate(24 * time.Hour)

	for !day.After(last) {
		sessions = append(sessions, Session{
			Date:  day,
			Open:  day,
			Close: day.Add(24 * time.Hour),
		})
		day = day.Add(24 * time.Hour)
	}

	return sessions
}

// SessionAt implements MarketCalendar.
func (c *AlwaysOpenCalendar) SessionAt(t time.Time) (Session, bool) {
	day := t.UTC().Truncate(24 * time.Hour)

	return Session{Date: day, Open: day, Close: day.Add(24 * time.Hour)}, true
}

// EquityCalendar models an exchange with fixed session hours, weekend
// closures, full holidays, and early closes (half days).
type EquityCalendar struct {
	name      string
	location  *time.Location
	openHour  int
	openMin   int
	closeHour int
	closeMin  int
	// holidays and earlyCloses are keyed by "2006-01-02" in exchange-local time.
	holidays    map[string]struct{}
	earlyCloses map[string]earlyClose
}

type earlyClose struct {
	hour, min int
}

// EquityCalendarConfig configures an EquityCalendar.
type EquityCalendarConfig struct {
	Name      string
	Location  *time.Location
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
	// Holidays lists full-closure dates as "2006-01-02".
	Holidays []string
	// EarlyCloses maps "2006-01-02" dates to "15:04" close times.
	EarlyCloses map[string]string
}

// NewEquityCalendar creates a calendar from config.
func NewEquityCalendar(cfg EquityCalendarConfig) *EquityCalendar {
	cal := &EquityCalendar{
		name:        cfg.Name,
		location:    cfg.Location,
		openHour:    cfg.OpenHour,
		openMin:     cfg.OpenMin,
		closeHour:   cfg.CloseHour,
		closeMin:    cfg.CloseMin,
		holidays:    make(map[string]struct{}),
		earlyCloses: make(map[string]earlyClose),
	}

	for _, h := range cfg.Holidays {
		cal.holidays[h] = struct{}{}
	}

	for date, closeAt := range cfg.EarlyCloses {
		t, err := time.Parse("15:04", closeAt)
		if err != nil {
			continue
		}

		cal.earlyCloses[date] = earlyClose{hour: t.Hour(), min: t.Minute()}
	}

	return cal
}

// NewNYSECalendar creates a US-equity style calendar: 09:30-16:00
// America/New_York, closed on weekends and the given holidays, half days
// closing at 13:00.
func NewNYSECalendar(holidays []string, halfDays []string) *EquityCalendar {
	loc, _ := time.LoadLocation("America/New_York")

	earlyCloses := make(map[string]string, len(halfDays))
	for _, d := range halfDays {
		earlyCloses[d] = "13:00"
	}

	return NewEquityCalendar(EquityCalendarConfig{
		Name:        "NYSE",
		Location:    loc,
		OpenHour:    9,
		OpenMin:     30,
		CloseHour:   16,
		CloseMin:    0,
		Holidays:    holidays,
		EarlyCloses: earlyCloses,
	})
}

// Name implements MarketCalendar.
func (c *EquityCalendar) Name() string { return c.name }

// sessionFor builds the session for a local calendar date, or false when
// the market is closed that day.
func (c *EquityCalendar) sessionFor(localDay time.Time) (Session, bool) {
	switch localDay.Weekday() {
	case time.Saturday, time.Sunday:
		return Session{}, false
	}

	key := localDay.Format("2006-01-02")
	if _, closed := c.holidays[key]; closed {
		return Session{}, false
	}

	closeHour, closeMin := c.closeHour, c.closeMin
	if ec, ok := c.earlyCloses[key]; ok {
		closeHour, closeMin = ec.hour, ec.min
	}

	open := time.Date(localDay.Year(), localDay.Month(), localDay.Day(), c.openHour, c.openMin, 0, 0, c.location)
	closeAt := time.Date(localDay.Year(), localDay.Month(), localDay.Day(), closeHour, closeMin, 0, 0, c.location)

	return Session{
		Date:  time.Date(localDay.Year(), localDay.Month(), localDay.Day(), 0, 0, 0, 0, time.UTC),
		Open:  open.UTC(),
		Close: closeAt.UTC(),
	}, true
}

// Schedule implements MarketCalendar.
func (c *EquityCalendar) Schedule(start, end time.Time) []Session {
	var sessions []Session

	day := start.In(c.location)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.location)
	last := end.In(c.location)

	for !day.After(last) {
		if s, ok := c.sessionFor(day); ok {
			sessions = append(sessions, s)
		}

		day = day.AddDate(0, 0, 1)
	}

	return sessions
}

// SessionAt implements MarketCalendar.
func (c *EquityCalendar) SessionAt(t time.Time) (Session, bool) {
	local := t.In(c.location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)

	s, ok := c.sessionFor(day)
	if !ok || !s.Contains(t) {
		return Session{}, false
	}

	return s, true
}
