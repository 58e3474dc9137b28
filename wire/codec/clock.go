package codec

import "time"

// Timestamp is a wall-clock snapshot taken when a command is built.
// Weekday follows the blind's convention: 1 is Sunday, 7 is Saturday.
type Timestamp struct {
	Year        int
	Month       int
	Day         int
	Weekday     int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// TimestampOf converts t into command fields
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{
		Year:        t.Year(),
		Month:       int(t.Month()),
		Day:         t.Day(),
		Weekday:     int(t.Weekday()) + 1,
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
	}
}

// Time returns the timestamp as a time.Time in loc
func (ts Timestamp) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second,
		ts.Millisecond*int(time.Millisecond), loc)
}

// Clock supplies the timestamp embedded in every command.
type Clock interface {
	Now() Timestamp
}

// SystemClock reads the host clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

// Now implements Clock
func (c SystemClock) Now() Timestamp {
	now := time.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return TimestampOf(now)
}

// FixedClock always returns the same timestamp.
type FixedClock Timestamp

// Now implements Clock
func (c FixedClock) Now() Timestamp {
	return Timestamp(c)
}
