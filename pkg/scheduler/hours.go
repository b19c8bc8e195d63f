package scheduler

import "time"

// TimeOfDay is a wall-clock instant within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// Session is a daily trading window. A session whose Close precedes its
// Open crosses midnight (e.g. US equities seen from Asia: 21:30-04:00).
// Close is inclusive so a 15:00 close still counts 15:00 as active.
type Session struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// Hours decides whether a market is in its active period, which switches
// the scheduler between the active and inactive refresh cadences.
type Hours struct {
	// Sessions are the daily windows; any matching session counts.
	Sessions []Session

	// WeekdaysOnly restricts sessions to Monday through Friday. For a
	// midnight-crossing session the weekday of the session's open
	// matters, so Friday 21:30 through Saturday 04:00 stays active.
	WeekdaysOnly bool

	// Location is the market's time zone; nil evaluates the instant in
	// its own location.
	Location *time.Location
}

// Active reports whether at falls inside any session.
func (h Hours) Active(at time.Time) bool {
	if h.Location != nil {
		at = at.In(h.Location)
	}
	m := at.Hour()*60 + at.Minute()

	for _, s := range h.Sessions {
		open, close := s.Open.minutes(), s.Close.minutes()
		if open <= close {
			if m >= open && m <= close && h.weekdayOK(at.Weekday()) {
				return true
			}
			continue
		}
		// Crosses midnight: the pre-midnight leg belongs to today, the
		// post-midnight leg to a session opened yesterday.
		if m >= open && h.weekdayOK(at.Weekday()) {
			return true
		}
		if m <= close && h.weekdayOK(at.AddDate(0, 0, -1).Weekday()) {
			return true
		}
	}
	return false
}

func (h Hours) weekdayOK(d time.Weekday) bool {
	if !h.WeekdaysOnly {
		return true
	}
	return d != time.Saturday && d != time.Sunday
}
