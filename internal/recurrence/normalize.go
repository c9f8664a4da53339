package recurrence

import (
	"fmt"
	"strconv"
	"time"

	"zoomsync/internal/model"
)

// ClassificationError reports a recurrence payload that does not map onto
// a known shape: an unknown type code, weekday index or monthly week.
type ClassificationError struct {
	MeetingID int64
	Field     string
	Value     string
	Reason    string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("meeting %d: recurrence %s=%s: %s", e.MeetingID, e.Field, e.Value, e.Reason)
}

// Normalize computes the recurrence descriptor for a mapped meeting.
//
// Recurring types (daily, weekly, monthly) derive their window from the
// occurrence list:
//
//   - start is the first occurrence
//   - with several occurrences, end is the last one (list order is trusted)
//   - with one occurrence, end is recurrence.end_date_time when strictly
//     later than start; otherwise the window is widened to one day on each
//     side of start so the event stays visible downstream
//
// A meeting without a recurrence type is a one-off (Custom) whose window is
// start_time .. start_time+duration; occurrences are ignored for it.
//
// All timestamps are read as wall-clock time in loc (see StripZone).
func Normalize(m model.MappedMeeting, loc *time.Location) (Descriptor, error) {
	if loc == nil {
		loc = time.Local
	}

	rec := m.Recurrence
	if rec == nil || rec.Type == nil {
		return customDescriptor(m, loc)
	}

	typ := *rec.Type
	switch typ {
	case TypeDaily, TypeWeekly, TypeMonthly:
	default:
		return nil, &ClassificationError{
			MeetingID: m.ID,
			Field:     "type",
			Value:     strconv.Itoa(typ),
			Reason:    "unsupported recurrence type",
		}
	}

	var win *Window
	if len(m.Occurrences) > 0 {
		w, err := occurrenceWindow(m.ID, m.Occurrences, rec, loc)
		if err != nil {
			return nil, err
		}
		win = &w
	}

	interval := 1
	if rec.RepeatInterval != nil && *rec.RepeatInterval > 0 {
		interval = *rec.RepeatInterval
	}

	switch typ {
	case TypeDaily:
		return Daily{Window: win, Interval: interval}, nil

	case TypeWeekly:
		days, err := weekdays(m.ID, "weekly_days", rec.WeeklyDays)
		if err != nil {
			return nil, err
		}
		return Weekly{Window: win, Interval: interval, Weekdays: days}, nil

	default:
		days, err := weekdays(m.ID, "monthly_week_day", rec.MonthlyWeekDay)
		if err != nil {
			return nil, err
		}
		out := Monthly{
			Window:     win,
			Interval:   interval,
			Weekdays:   days,
			Anchor:     AnchorMonthDay,
			DayOfMonth: rec.MonthlyDay,
		}
		if rec.MonthlyWeek != nil {
			occ, ok := monthlyWeeks[*rec.MonthlyWeek]
			if !ok {
				return nil, &ClassificationError{
					MeetingID: m.ID,
					Field:     "monthly_week",
					Value:     strconv.Itoa(*rec.MonthlyWeek),
					Reason:    "expected 1, 2, 3, 4 or -1",
				}
			}
			out.Anchor = AnchorWeekday
			out.DayOccurrence = occ
		}
		return out, nil
	}
}

func occurrenceWindow(id int64, occ []model.Occurrence, rec *model.Recurrence, loc *time.Location) (Window, error) {
	first := occ[0]
	start, err := parseField(id, "occurrences[0].start_time", first.StartTime, loc)
	if err != nil {
		return Window{}, err
	}
	w := Window{
		Start:    start,
		First:    start,
		Duration: time.Duration(first.Duration) * time.Minute,
	}

	if len(occ) > 1 {
		last := len(occ) - 1
		end, err := parseField(id, fmt.Sprintf("occurrences[%d].start_time", last), occ[last].StartTime, loc)
		if err != nil {
			return Window{}, err
		}
		w.End, w.Last = end, end
		return w, nil
	}

	if rec.EndDateTime != nil && StripZone(*rec.EndDateTime) != "" {
		until, err := parseField(id, "recurrence.end_date_time", *rec.EndDateTime, loc)
		if err != nil {
			return Window{}, err
		}
		if until.After(start) {
			w.End, w.Last = until, until
			return w, nil
		}
	}

	// Lone occurrence: the span is widened, the rule still covers one start.
	w.Start = start.AddDate(0, 0, -1)
	w.End = start.AddDate(0, 0, 1)
	w.Last = start
	return w, nil
}

func customDescriptor(m model.MappedMeeting, loc *time.Location) (Descriptor, error) {
	if m.StartTime == nil || StripZone(*m.StartTime) == "" {
		return nil, &TimestampError{MeetingID: m.ID, Field: "start_time", Err: ErrMissingTimestamp}
	}
	start, err := parseField(m.ID, "start_time", *m.StartTime, loc)
	if err != nil {
		return nil, err
	}
	var dur time.Duration
	if m.Duration != nil {
		dur = time.Duration(*m.Duration) * time.Minute
	}
	return Custom{Window: Window{Start: start, End: start.Add(dur), First: start, Last: start, Duration: dur}}, nil
}

func weekdays(id int64, field string, list model.DayList) (WeekdaySet, error) {
	idx, err := list.Indexes()
	if err != nil {
		return 0, &ClassificationError{MeetingID: id, Field: field, Value: string(list), Reason: "malformed weekday list"}
	}
	s, err := weekdaySetFromIndexes(idx)
	if err != nil {
		return 0, &ClassificationError{MeetingID: id, Field: field, Value: string(list), Reason: err.Error()}
	}
	return s, nil
}
