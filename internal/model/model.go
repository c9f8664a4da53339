package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// User is a single entry of the provider's user listing. Only the email is
// needed to list meetings; the rest is kept for logging.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// UsersPage is one page of GET /users.
type UsersPage struct {
	PageCount    int    `json:"page_count"`
	PageNumber   int    `json:"page_number"`
	PageSize     int    `json:"page_size"`
	TotalRecords int    `json:"total_records"`
	Users        []User `json:"users"`
}

// MeetingRef is a meeting as it appears in a user's meeting list. The list
// entry is not detailed enough to normalize; the detail endpoint is always
// consulted.
type MeetingRef struct {
	ID    int64  `json:"id"`
	UUID  string `json:"uuid,omitempty"`
	Topic string `json:"topic,omitempty"`
}

// Occurrence is one scheduled instance of a recurring meeting.
type Occurrence struct {
	OccurrenceID string `json:"occurrence_id,omitempty"`
	StartTime    string `json:"start_time"`
	Duration     int    `json:"duration"`
	Status       string `json:"status,omitempty"`
}

// Recurrence is the provider's recurrence block. Pointer fields are nil when
// the key was absent or null in the payload.
type Recurrence struct {
	Type           *int    `json:"type"`
	RepeatInterval *int    `json:"repeat_interval,omitempty"`
	EndDateTime    *string `json:"end_date_time,omitempty"`
	EndTimes       *int    `json:"end_times,omitempty"`
	WeeklyDays     DayList `json:"weekly_days,omitempty"`
	MonthlyDay     *int    `json:"monthly_day,omitempty"`
	MonthlyWeek    *int    `json:"monthly_week,omitempty"`
	MonthlyWeekDay DayList `json:"monthly_week_day,omitempty"`
}

// TrackingField is a free-form label/value pair configured on the account.
type TrackingField struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// RawMeeting is the meeting detail payload (GET /meetings/{id}).
type RawMeeting struct {
	ID             int64           `json:"id"`
	UUID           string          `json:"uuid,omitempty"`
	HostID         *string         `json:"host_id,omitempty"`
	HostEmail      *string         `json:"host_email,omitempty"`
	Type           *int            `json:"type,omitempty"`
	StartTime      *string         `json:"start_time,omitempty"`
	Duration       *int            `json:"duration,omitempty"`
	Topic          *string         `json:"topic,omitempty"`
	Agenda         *string         `json:"agenda,omitempty"`
	Status         *string         `json:"status,omitempty"`
	Timezone       *string         `json:"timezone,omitempty"`
	CreatedAt      *string         `json:"created_at,omitempty"`
	StartURL       *string         `json:"start_url,omitempty"`
	JoinURL        *string         `json:"join_url,omitempty"`
	Occurrences    []Occurrence    `json:"occurrences,omitempty"`
	Recurrence     *Recurrence     `json:"recurrence,omitempty"`
	TrackingFields []TrackingField `json:"tracking_fields,omitempty"`
}

// TrackedFields holds the five tracking-field slots the destination knows
// about. A nil slot means the label was not present.
type TrackedFields struct {
	ActivityFinder *string `json:"activity_finder,omitempty"`
	Location       *string `json:"location,omitempty"`
	Category       *string `json:"category,omitempty"`
	SubCategory    *string `json:"sub_category,omitempty"`
	Instructor     *string `json:"instructor,omitempty"`
}

// MappedMeeting is a RawMeeting projected onto the attributes the
// normalizer and emitter use. It only exists for meetings that carry a start
// time or occurrences.
type MappedMeeting struct {
	ID          int64
	HostID      *string
	HostEmail   *string
	StartTime   *string
	Duration    *int
	Topic       *string
	Agenda      *string
	Status      *string
	Timezone    *string
	CreatedAt   *string
	StartURL    *string
	JoinURL     *string
	Occurrences []Occurrence
	Recurrence  *Recurrence
	Tracked     TrackedFields
}

// TopicOrEmpty is used by log lines.
func (m MappedMeeting) TopicOrEmpty() string {
	return Deref(m.Topic)
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DayList is a provider weekday field as sent: a comma-separated string
// ("2,4") or a single number (4). Decoding never fails on the content, so
// a malformed list reaches the normalizer and rejects only its meeting.
// Indexes parses it; values are not range-checked here.
type DayList string

func (d *DayList) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null" || s == "":
		*d = ""
	case strings.HasPrefix(s, `"`):
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		*d = DayList(strings.TrimSpace(raw))
	default:
		// numbers and anything else are kept verbatim
		*d = DayList(s)
	}
	return nil
}

func (d DayList) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// Indexes parses the list into 1-based weekday indexes. An empty list
// yields nil.
func (d DayList) Indexes() ([]int, error) {
	raw := strings.TrimSpace(string(d))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("day list %q: %w", raw, err)
		}
		out = append(out, n)
	}
	return out, nil
}
