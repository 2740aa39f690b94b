package quota

import (
	"sync"
	"time"
)

// ReferenceTimezone is the zone whose midnight the provider resets daily
// quota at. YouTube resets at midnight Pacific Time, DST included.
const ReferenceTimezone = "America/Los_Angeles"

// dayKeyFormat is the calendar-date layout used for DayKey values and
// persistence keys.
const dayKeyFormat = "2006-01-02"

// referenceLocation resolves the zone lazily so embedded tzdata (see
// the time/tzdata import in main) is registered before the lookup runs.
var referenceLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation(ReferenceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
})

// DayKey returns the provider-day calendar date for the given instant.
// It is a pure function of t so day-boundary behavior can be tested with
// fixed instants regardless of the process-local timezone.
func DayKey(t time.Time) string {
	return t.In(referenceLocation()).Format(dayKeyFormat)
}
