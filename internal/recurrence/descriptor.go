package recurrence

import (
	"encoding/json"
	"time"
)

// Kind tags a Descriptor variant.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindCustom  Kind = "custom"
)

// Provider recurrence type codes.
const (
	TypeDaily   = 1
	TypeWeekly  = 2
	TypeMonthly = 3
)

// Anchor selects how a monthly recurrence picks its day.
type Anchor string

const (
	AnchorMonthDay Anchor = "monthday"
	AnchorWeekday  Anchor = "weekday"
)

// DayOccurrence is the week ordinal of a weekday-anchored monthly
// recurrence. The zero value means unset.
type DayOccurrence string

const (
	OccurrenceFirst  DayOccurrence = "first"
	OccurrenceSecond DayOccurrence = "second"
	OccurrenceThird  DayOccurrence = "third"
	OccurrenceFourth DayOccurrence = "fourth"
	OccurrenceLast   DayOccurrence = "last"
)

var monthlyWeeks = map[int]DayOccurrence{
	1:  OccurrenceFirst,
	2:  OccurrenceSecond,
	3:  OccurrenceThird,
	4:  OccurrenceFourth,
	-1: OccurrenceLast,
}

// Ordinal returns the RRULE BYDAY ordinal, 0 when unset.
func (o DayOccurrence) Ordinal() int {
	for n, v := range monthlyWeeks {
		if v == o {
			return n
		}
	}
	return 0
}

// Window is the date span a recurrence is valid for, in site time.
//
// Start and End are the span the destination shows; for a lone occurrence
// they are widened by a day on each side. First and Last are the real
// first and last starts and bound the rule. Zero First/Last fall back to
// Start/End.
type Window struct {
	Start    time.Time
	End      time.Time
	First    time.Time
	Last     time.Time
	Duration time.Duration
}

// RuleStart is the rule's DTSTART.
func (w Window) RuleStart() time.Time {
	if w.First.IsZero() {
		return w.Start
	}
	return w.First
}

// RuleUntil is the rule's UNTIL.
func (w Window) RuleUntil() time.Time {
	if w.Last.IsZero() {
		return w.End
	}
	return w.Last
}

// TimeOfDay is the wall-clock start as the destination stores it.
func (w Window) TimeOfDay() string {
	return w.Start.Format("03:04 pm")
}

// DurationSeconds is the provider's minute duration times 60.
func (w Window) DurationSeconds() int {
	return int(w.Duration / time.Second)
}

type windowJSON struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Time      string `json:"time"`
	Duration  int    `json:"duration"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{
		StartDate: w.Start.Format(LocalLayout),
		EndDate:   w.End.Format(LocalLayout),
		Time:      w.TimeOfDay(),
		Duration:  w.DurationSeconds(),
	})
}

// Descriptor is the normalized recurrence of one meeting: Daily, Weekly,
// Monthly or Custom.
type Descriptor interface {
	Kind() Kind
	// Span returns the window or nil when occurrence data was missing.
	Span() *Window
	isDescriptor()
}

type Daily struct {
	Window   *Window `json:"window,omitempty"`
	Interval int     `json:"interval"`
}

type Weekly struct {
	Window   *Window    `json:"window,omitempty"`
	Interval int        `json:"interval"`
	Weekdays WeekdaySet `json:"days"`
}

type Monthly struct {
	Window        *Window       `json:"window,omitempty"`
	Interval      int           `json:"interval"`
	Weekdays      WeekdaySet    `json:"days"`
	Anchor        Anchor        `json:"type"`
	DayOccurrence DayOccurrence `json:"day_occurrence,omitempty"`
	DayOfMonth    *int          `json:"day_of_month,omitempty"`
}

// Custom is a single non-recurring event.
type Custom struct {
	Window Window `json:"window"`
}

func (Daily) Kind() Kind   { return KindDaily }
func (Weekly) Kind() Kind  { return KindWeekly }
func (Monthly) Kind() Kind { return KindMonthly }
func (Custom) Kind() Kind  { return KindCustom }

func (d Daily) Span() *Window   { return d.Window }
func (d Weekly) Span() *Window  { return d.Window }
func (d Monthly) Span() *Window { return d.Window }
func (d Custom) Span() *Window  { return &d.Window }

func (Daily) isDescriptor()   {}
func (Weekly) isDescriptor()  {}
func (Monthly) isDescriptor() {}
func (Custom) isDescriptor()  {}
