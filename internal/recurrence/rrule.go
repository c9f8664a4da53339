package recurrence

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	ErrNotRecurring = errors.New("recurrence: custom descriptor has no rule")
	ErrNoWindow     = errors.New("recurrence: descriptor has no window")
)

// indexed by time.Weekday
var ruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RRule builds the iCalendar rule for a recurring descriptor. DTSTART and
// UNTIL are the window's first and last real starts, not its widened span.
func RRule(d Descriptor) (*rrule.RRule, error) {
	var opt rrule.ROption

	switch v := d.(type) {
	case Daily:
		opt.Freq = rrule.DAILY
		opt.Interval = v.Interval
	case Weekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = v.Interval
		opt.Byweekday = byDay(v.Weekdays, 0)
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Interval = v.Interval
		switch {
		case v.Anchor == AnchorWeekday:
			opt.Byweekday = byDay(v.Weekdays, v.DayOccurrence.Ordinal())
		case v.DayOfMonth != nil:
			opt.Bymonthday = []int{*v.DayOfMonth}
		}
	case Custom:
		return nil, ErrNotRecurring
	default:
		return nil, errors.New("recurrence: unknown descriptor")
	}

	w := d.Span()
	if w == nil {
		return nil, ErrNoWindow
	}
	opt.Dtstart = w.RuleStart()
	opt.Until = w.RuleUntil()

	return rrule.NewRRule(opt)
}

// RuleString is the RRULE value (without DTSTART) for d.
func RuleString(d Descriptor) (string, error) {
	r, err := RRule(d)
	if err != nil {
		return "", err
	}
	return r.OrigOptions.RRuleString(), nil
}

// Expand lists occurrence starts of d, at most limit of them (limit <= 0
// means no cap). A Custom descriptor yields its single start.
func Expand(d Descriptor, limit int) ([]time.Time, error) {
	if c, ok := d.(Custom); ok {
		return []time.Time{c.Window.RuleStart()}, nil
	}
	r, err := RRule(d)
	if err != nil {
		return nil, err
	}
	all := r.All()
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func byDay(s WeekdaySet, nth int) []rrule.Weekday {
	days := s.Days()
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		wd := ruleDays[d]
		if nth != 0 {
			wd = wd.Nth(nth)
		}
		out = append(out, wd)
	}
	return out
}
