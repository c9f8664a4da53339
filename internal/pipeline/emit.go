package pipeline

import (
	"strconv"

	"zoomsync/internal/model"
	"zoomsync/internal/recurrence"
)

// IDPrefix namespaces provider meeting ids in the destination.
const IDPrefix = "zm_"

// Record is the normalized meeting handed to sinks.
type Record struct {
	ID          string                `json:"id"`
	MeetingID   int64                 `json:"meeting_id"`
	Topic       *string               `json:"topic"`
	Description *string               `json:"description"`
	Link        *string               `json:"link"`
	Type        string                `json:"recurrence_type"`
	Recurrence  recurrence.Descriptor `json:"recurrence"`
	Tracked     model.TrackedFields   `json:"tracked_fields"`
}

// Kind is the recurrence variant of the record.
func (r Record) Kind() recurrence.Kind {
	if r.Recurrence == nil {
		return recurrence.KindCustom
	}
	return r.Recurrence.Kind()
}

// Category is the tracked category or "".
func (r Record) Category() string { return model.Deref(r.Tracked.Category) }

// Instructor is the tracked instructor or "".
func (r Record) Instructor() string { return model.Deref(r.Tracked.Instructor) }

// TypeTag is the destination's recurrence field name: "custom" for one-off
// meetings, "<kind>_recurring_date" otherwise.
func TypeTag(k recurrence.Kind) string {
	if k == recurrence.KindCustom {
		return string(k)
	}
	return string(k) + "_recurring_date"
}

// Emit assembles the record for a mapped meeting and its descriptor.
func Emit(m model.MappedMeeting, d recurrence.Descriptor) Record {
	link := m.JoinURL
	if link == nil || *link == "" {
		link = m.StartURL
	}
	return Record{
		ID:          IDPrefix + strconv.FormatInt(m.ID, 10),
		MeetingID:   m.ID,
		Topic:       m.Topic,
		Description: m.Agenda,
		Link:        link,
		Type:        TypeTag(d.Kind()),
		Recurrence:  d,
		Tracked:     m.Tracked,
	}
}
