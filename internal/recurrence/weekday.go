package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Provider weekday indexes run 1=Sunday through 7=Saturday, which is
// time.Weekday shifted by one. The same mapping applies to weekly_days and
// monthly_week_day.

// WeekdayFromIndex maps a provider index to a weekday.
func WeekdayFromIndex(i int) (time.Weekday, error) {
	if i < 1 || i > 7 {
		return 0, fmt.Errorf("weekday index %d out of range 1..7", i)
	}
	return time.Weekday(i - 1), nil
}

// IndexFromWeekday is the inverse of WeekdayFromIndex.
func IndexFromWeekday(d time.Weekday) int {
	return int(d) + 1
}

// WeekdaySet is a set of weekdays, bit n set for time.Weekday(n).
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	return s | 1<<uint(d)
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Empty() bool { return s == 0 }

func (s WeekdaySet) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days lists members Sunday first.
func (s WeekdaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Names returns lowercase day names, the form the destination expects.
func (s WeekdaySet) Names() []string {
	days := s.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = strings.ToLower(d.String())
	}
	return out
}

func (s WeekdaySet) String() string {
	return strings.Join(s.Names(), ",")
}

func (s WeekdaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// weekdaySetFromIndexes converts provider indexes; any index outside 1..7
// rejects the whole set.
func weekdaySetFromIndexes(idx []int) (WeekdaySet, error) {
	var s WeekdaySet
	for _, i := range idx {
		d, err := WeekdayFromIndex(i)
		if err != nil {
			return 0, err
		}
		s = s.With(d)
	}
	return s, nil
}
