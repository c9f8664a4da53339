package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocalLayout is the wall-clock layout used by the provider and by the
// destination calendar (no zone designator).
const LocalLayout = "2006-01-02T15:04:05"

// ErrMissingTimestamp is wrapped by TimestampError when a required
// timestamp is absent.
var ErrMissingTimestamp = errors.New("timestamp missing")

// StripZone removes the trailing UTC designator the provider appends.
//
// Provider timestamps are treated as wall-clock times already expressed in
// the site timezone. The "Z" is dropped rather than honored, so
// "2024-01-10T09:00:00Z" becomes 09:00 local, not 09:00 UTC converted.
// Every timestamp that enters a Window passes through here.
func StripZone(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), "Z")
}

// ParseLocal parses a provider timestamp as wall-clock time in loc.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(LocalLayout, StripZone(s), loc)
}

// TimestampError reports an occurrence or recurrence timestamp that is
// missing or does not parse. The record is rejected; the run continues.
type TimestampError struct {
	MeetingID int64
	Field     string
	Value     string
	Err       error
}

func (e *TimestampError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("meeting %d: %s: %v", e.MeetingID, e.Field, e.Err)
	}
	return fmt.Sprintf("meeting %d: %s %q: %v", e.MeetingID, e.Field, e.Value, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

func parseField(id int64, field, value string, loc *time.Location) (time.Time, error) {
	t, err := ParseLocal(value, loc)
	if err != nil {
		return time.Time{}, &TimestampError{MeetingID: id, Field: field, Value: value, Err: err}
	}
	return t, nil
}
