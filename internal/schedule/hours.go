package schedule

import (
	"fmt"
	"time"
)

// Hours is the configured operating window, [Start, End) in local hours of
// the day. Both the stream reader and the event engine consult the same
// predicate so the two loops can never disagree on whether the system is on
// duty.
type Hours struct {
	Start int
	End   int
}

// Contains reports whether t falls inside the operating window.
func (h Hours) Contains(t time.Time) bool {
	hour := t.Hour()
	return h.Start <= hour && hour < h.End
}

// Predicate returns a closure over the wall clock, suitable for injecting
// into the loops.
func (h Hours) Predicate() func() bool {
	return func() bool {
		return h.Contains(time.Now())
	}
}

func (h Hours) String() string {
	return fmt.Sprintf("%02d:00 - %02d:00", h.Start, h.End)
}
