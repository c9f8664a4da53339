package recurrence

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoomsync/internal/model"
)

var site = time.FixedZone("site", -5*60*60)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func at(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation(LocalLayout, s, site)
	require.NoError(t, err)
	return v
}

func recurring(typ int, occ ...string) model.MappedMeeting {
	m := model.MappedMeeting{
		ID:         42,
		Recurrence: &model.Recurrence{Type: intPtr(typ)},
	}
	for _, s := range occ {
		m.Occurrences = append(m.Occurrences, model.Occurrence{StartTime: s, Duration: 45})
	}
	return m
}

func TestParseLocalTreatsZuluAsSiteWallClock(t *testing.T) {
	got, err := ParseLocal("2024-01-10T09:00:00Z", site)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, site, got.Location())
	assert.True(t, got.Equal(at(t, "2024-01-10T09:00:00")))
}

func TestNormalizeMultipleOccurrencesUsesFirstAndLast(t *testing.T) {
	m := recurring(TypeDaily,
		"2024-03-01T10:00:00Z",
		"2024-03-02T10:00:00Z",
		"2024-03-05T10:00:00Z",
	)
	d, err := Normalize(m, site)
	require.NoError(t, err)

	w := d.Span()
	require.NotNil(t, w)
	assert.True(t, w.Start.Equal(at(t, "2024-03-01T10:00:00")))
	assert.True(t, w.End.Equal(at(t, "2024-03-05T10:00:00")))
	assert.Equal(t, 45*time.Minute, w.Duration)
	assert.Equal(t, 2700, w.DurationSeconds())
	assert.Equal(t, "10:00 am", w.TimeOfDay())
}

func TestNormalizeTrustsProviderOrder(t *testing.T) {
	m := recurring(TypeDaily,
		"2024-03-05T10:00:00Z",
		"2024-03-09T10:00:00Z",
		"2024-03-01T10:00:00Z",
	)
	d, err := Normalize(m, site)
	require.NoError(t, err)

	w := d.Span()
	require.NotNil(t, w)
	assert.True(t, w.Start.Equal(at(t, "2024-03-05T10:00:00")))
	assert.True(t, w.End.Equal(at(t, "2024-03-01T10:00:00")))
}

func TestNormalizeSingleOccurrenceUsesLaterEndDate(t *testing.T) {
	m := recurring(TypeWeekly, "2024-01-08T15:00:00Z")
	m.Recurrence.EndDateTime = strPtr("2024-02-26T15:00:00Z")
	m.Recurrence.WeeklyDays = model.DayList("2")

	d, err := Normalize(m, site)
	require.NoError(t, err)

	w := d.Span()
	require.NotNil(t, w)
	assert.True(t, w.Start.Equal(at(t, "2024-01-08T15:00:00")))
	assert.True(t, w.End.Equal(at(t, "2024-02-26T15:00:00")))
}

func TestNormalizeSingleOccurrenceFallbackWindow(t *testing.T) {
	cases := []struct {
		name string
		end  *string
	}{
		{name: "absent", end: nil},
		{name: "empty", end: strPtr("")},
		{name: "equal", end: strPtr("2024-01-08T15:00:00Z")},
		{name: "earlier", end: strPtr("2024-01-01T15:00:00Z")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := recurring(TypeDaily, "2024-01-08T15:00:00Z")
			m.Recurrence.EndDateTime = tc.end

			d, err := Normalize(m, site)
			require.NoError(t, err)

			w := d.Span()
			require.NotNil(t, w)
			assert.True(t, w.Start.Equal(at(t, "2024-01-07T15:00:00")), w.Start)
			assert.True(t, w.End.Equal(at(t, "2024-01-09T15:00:00")), w.End)
			assert.Equal(t, "03:00 pm", w.TimeOfDay())
		})
	}
}

func TestNormalizeDaily(t *testing.T) {
	d, err := Normalize(recurring(TypeDaily, "2024-03-01T10:00:00Z", "2024-03-03T10:00:00Z"), site)
	require.NoError(t, err)

	daily, ok := d.(Daily)
	require.True(t, ok, "want Daily, got %T", d)
	assert.Equal(t, KindDaily, daily.Kind())
	assert.Equal(t, 1, daily.Interval)
}

func TestNormalizeRecurringWithoutOccurrencesHasNoWindow(t *testing.T) {
	d, err := Normalize(recurring(TypeDaily), site)
	require.NoError(t, err)
	assert.Nil(t, d.Span())
}

func TestNormalizeWeekly(t *testing.T) {
	m := recurring(TypeWeekly, "2024-01-08T15:00:00Z", "2024-01-31T15:00:00Z")
	m.Recurrence.WeeklyDays = model.DayList("2,4")
	m.Recurrence.RepeatInterval = intPtr(2)

	d, err := Normalize(m, site)
	require.NoError(t, err)

	weekly, ok := d.(Weekly)
	require.True(t, ok, "want Weekly, got %T", d)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, weekly.Weekdays.Days())
	assert.Equal(t, "monday,wednesday", weekly.Weekdays.String())
	assert.Equal(t, 2, weekly.Interval)
}

func TestNormalizeMonthlyWeekdayAnchor(t *testing.T) {
	m := recurring(TypeMonthly, "2024-01-26T12:00:00Z", "2024-04-26T12:00:00Z")
	m.Recurrence.MonthlyWeek = intPtr(-1)
	m.Recurrence.MonthlyWeekDay = model.DayList("6")

	d, err := Normalize(m, site)
	require.NoError(t, err)

	monthly, ok := d.(Monthly)
	require.True(t, ok, "want Monthly, got %T", d)
	assert.Equal(t, AnchorWeekday, monthly.Anchor)
	assert.Equal(t, OccurrenceLast, monthly.DayOccurrence)
	assert.Equal(t, []time.Weekday{time.Friday}, monthly.Weekdays.Days())
	assert.Nil(t, monthly.DayOfMonth)
}

func TestNormalizeMonthlyDayAnchor(t *testing.T) {
	m := recurring(TypeMonthly, "2024-01-15T12:00:00Z", "2024-06-15T12:00:00Z")
	m.Recurrence.MonthlyDay = intPtr(15)

	d, err := Normalize(m, site)
	require.NoError(t, err)

	monthly, ok := d.(Monthly)
	require.True(t, ok, "want Monthly, got %T", d)
	assert.Equal(t, AnchorMonthDay, monthly.Anchor)
	assert.Equal(t, DayOccurrence(""), monthly.DayOccurrence)
	require.NotNil(t, monthly.DayOfMonth)
	assert.Equal(t, 15, *monthly.DayOfMonth)
	assert.True(t, monthly.Weekdays.Empty())
}

func TestNormalizeMonthlyWeekOrdinals(t *testing.T) {
	want := map[int]DayOccurrence{
		1:  OccurrenceFirst,
		2:  OccurrenceSecond,
		3:  OccurrenceThird,
		4:  OccurrenceFourth,
		-1: OccurrenceLast,
	}
	for week, occ := range want {
		m := recurring(TypeMonthly, "2024-01-01T12:00:00Z", "2024-05-01T12:00:00Z")
		m.Recurrence.MonthlyWeek = intPtr(week)
		m.Recurrence.MonthlyWeekDay = model.DayList("3")

		d, err := Normalize(m, site)
		require.NoError(t, err)
		assert.Equal(t, occ, d.(Monthly).DayOccurrence)
		assert.Equal(t, week, occ.Ordinal())
	}
}

func TestNormalizeCustom(t *testing.T) {
	m := model.MappedMeeting{
		ID:        7,
		StartTime: strPtr("2024-01-10T09:00:00Z"),
		Duration:  intPtr(30),
		// occurrences are ignored for one-off meetings
		Occurrences: []model.Occurrence{{StartTime: "2030-01-01T00:00:00Z", Duration: 5}},
	}

	d, err := Normalize(m, site)
	require.NoError(t, err)

	custom, ok := d.(Custom)
	require.True(t, ok, "want Custom, got %T", d)
	assert.True(t, custom.Window.Start.Equal(at(t, "2024-01-10T09:00:00")))
	assert.True(t, custom.Window.End.Equal(at(t, "2024-01-10T09:30:00")))
}

func TestNormalizeCustomWithNullType(t *testing.T) {
	m := model.MappedMeeting{
		ID:         8,
		StartTime:  strPtr("2024-01-10T09:00:00Z"),
		Duration:   intPtr(90),
		Recurrence: &model.Recurrence{},
	}
	d, err := Normalize(m, site)
	require.NoError(t, err)
	assert.Equal(t, KindCustom, d.Kind())
	assert.True(t, d.Span().End.Equal(at(t, "2024-01-10T10:30:00")))
}

func TestNormalizeRejectsUnknownType(t *testing.T) {
	for _, typ := range []int{0, 4, 8} {
		_, err := Normalize(recurring(typ, "2024-01-08T15:00:00Z"), site)
		var ce *ClassificationError
		require.True(t, errors.As(err, &ce), "type %d: %v", typ, err)
		assert.Equal(t, "type", ce.Field)
		assert.Equal(t, int64(42), ce.MeetingID)
	}
}

func TestNormalizeRejectsBadWeekdayIndex(t *testing.T) {
	m := recurring(TypeWeekly, "2024-01-08T15:00:00Z")
	m.Recurrence.WeeklyDays = model.DayList("2,8")

	_, err := Normalize(m, site)
	var ce *ClassificationError
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.Equal(t, "weekly_days", ce.Field)
	assert.Equal(t, "2,8", ce.Value)
}

func TestNormalizeRejectsMalformedWeekdayList(t *testing.T) {
	m := recurring(TypeWeekly, "2024-01-08T15:00:00Z")
	m.Recurrence.WeeklyDays = model.DayList("2,,4")

	_, err := Normalize(m, site)
	var ce *ClassificationError
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.Equal(t, "weekly_days", ce.Field)
	assert.Equal(t, "2,,4", ce.Value)

	m = recurring(TypeMonthly, "2024-01-08T15:00:00Z")
	m.Recurrence.MonthlyWeek = intPtr(1)
	m.Recurrence.MonthlyWeekDay = model.DayList("true")
	_, err = Normalize(m, site)
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.Equal(t, "monthly_week_day", ce.Field)
}

func TestNormalizeRejectsBadMonthlyWeek(t *testing.T) {
	m := recurring(TypeMonthly, "2024-01-08T15:00:00Z")
	m.Recurrence.MonthlyWeek = intPtr(5)

	_, err := Normalize(m, site)
	var ce *ClassificationError
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.Equal(t, "monthly_week", ce.Field)
}

func TestNormalizeRejectsMalformedTimestamps(t *testing.T) {
	t.Run("occurrence", func(t *testing.T) {
		_, err := Normalize(recurring(TypeDaily, "yesterday"), site)
		var te *TimestampError
		require.True(t, errors.As(err, &te), "%v", err)
		assert.Equal(t, "occurrences[0].start_time", te.Field)
	})
	t.Run("last occurrence", func(t *testing.T) {
		_, err := Normalize(recurring(TypeDaily, "2024-01-08T15:00:00Z", "2024-01-09"), site)
		var te *TimestampError
		require.True(t, errors.As(err, &te), "%v", err)
		assert.Equal(t, "occurrences[1].start_time", te.Field)
	})
	t.Run("end date", func(t *testing.T) {
		m := recurring(TypeDaily, "2024-01-08T15:00:00Z")
		m.Recurrence.EndDateTime = strPtr("soon")
		_, err := Normalize(m, site)
		var te *TimestampError
		require.True(t, errors.As(err, &te), "%v", err)
		assert.Equal(t, "recurrence.end_date_time", te.Field)
	})
	t.Run("custom missing start", func(t *testing.T) {
		_, err := Normalize(model.MappedMeeting{ID: 1, Duration: intPtr(30)}, site)
		var te *TimestampError
		require.True(t, errors.As(err, &te), "%v", err)
		assert.ErrorIs(t, err, ErrMissingTimestamp)
	})
}

func TestWindowJSON(t *testing.T) {
	w := Window{
		Start:    at(t, "2024-01-08T15:00:00"),
		End:      at(t, "2024-01-09T15:00:00"),
		Duration: time.Hour,
	}
	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_date":"2024-01-08T15:00:00","end_date":"2024-01-09T15:00:00","time":"03:00 pm","duration":3600}`, string(b))
}
