package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayListDecodesStringAndNumber(t *testing.T) {
	var rec Recurrence
	payload := `{"type":3,"weekly_days":"2, 4","monthly_week":-1,"monthly_week_day":6}`
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	idx, err := rec.WeeklyDays.Indexes()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, idx)
	idx, err = rec.MonthlyWeekDay.Indexes()
	require.NoError(t, err)
	assert.Equal(t, []int{6}, idx)
	require.NotNil(t, rec.MonthlyWeek)
	assert.Equal(t, -1, *rec.MonthlyWeek)
	assert.Nil(t, rec.MonthlyDay)
}

func TestDayListNullAndEmpty(t *testing.T) {
	var rec Recurrence
	require.NoError(t, json.Unmarshal([]byte(`{"weekly_days":null,"monthly_week_day":""}`), &rec))
	assert.Empty(t, rec.WeeklyDays)
	assert.Empty(t, rec.MonthlyWeekDay)
	idx, err := rec.WeeklyDays.Indexes()
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestDayListKeepsMalformedValues(t *testing.T) {
	for _, payload := range []string{
		`{"weekly_days":"2,,4"}`,
		`{"weekly_days":"mon"}`,
		`{"weekly_days":true}`,
	} {
		var rec Recurrence
		require.NoError(t, json.Unmarshal([]byte(payload), &rec), payload)
		assert.NotEmpty(t, rec.WeeklyDays, payload)
		_, err := rec.WeeklyDays.Indexes()
		assert.Error(t, err, payload)
	}
}

func TestDayListMarshal(t *testing.T) {
	b, err := json.Marshal(DayList("1,7"))
	require.NoError(t, err)
	assert.Equal(t, `"1,7"`, string(b))

	b, err = json.Marshal(DayList(""))
	require.NoError(t, err)
	assert.Equal(t, `null`, string(b))
}

func TestRawMeetingDecode(t *testing.T) {
	payload := `{
		"id": 85746065432,
		"topic": "Chair yoga",
		"start_time": "2024-01-10T09:00:00Z",
		"duration": 45,
		"join_url": "https://zoom.example/j/85746065432",
		"tracking_fields": [{"field": "3. Category", "value": "Wellness"}],
		"recurrence": {"type": 2, "repeat_interval": 1, "weekly_days": "2"}
	}`
	var m RawMeeting
	require.NoError(t, json.Unmarshal([]byte(payload), &m))
	assert.Equal(t, int64(85746065432), m.ID)
	assert.Equal(t, "Chair yoga", Deref(m.Topic))
	require.NotNil(t, m.Recurrence)
	assert.Equal(t, DayList("2"), m.Recurrence.WeeklyDays)
	assert.Nil(t, m.Occurrences)
	assert.Len(t, m.TrackingFields, 1)
}
