package pipeline

import (
	"zoomsync/internal/model"
)

// Tracking-field labels as configured on the provider account.
const (
	LabelActivityFinder = "1. Show in the Activity Finder"
	LabelLocation       = "2. Location"
	LabelCategory       = "3. Category"
	LabelSubCategory    = "4. Sub-category"
	LabelInstructor     = "5. Instructor name"
)

// MapMeeting projects a meeting detail onto MappedMeeting. The second
// result is false when the meeting has neither a start time nor
// occurrences; such meetings cannot be placed on a calendar and are dropped.
func MapMeeting(raw model.RawMeeting) (model.MappedMeeting, bool) {
	if raw.StartTime == nil && raw.Occurrences == nil {
		return model.MappedMeeting{}, false
	}

	return model.MappedMeeting{
		ID:          raw.ID,
		HostID:      raw.HostID,
		HostEmail:   raw.HostEmail,
		StartTime:   raw.StartTime,
		Duration:    raw.Duration,
		Topic:       raw.Topic,
		Agenda:      raw.Agenda,
		Status:      raw.Status,
		Timezone:    raw.Timezone,
		CreatedAt:   raw.CreatedAt,
		StartURL:    raw.StartURL,
		JoinURL:     raw.JoinURL,
		Occurrences: raw.Occurrences,
		Recurrence:  raw.Recurrence,
		Tracked:     trackedFields(raw.TrackingFields),
	}, true
}

// trackedFields matches labels exactly; unknown labels are ignored and a
// repeated label keeps its last value.
func trackedFields(fields []model.TrackingField) model.TrackedFields {
	var tf model.TrackedFields
	for _, f := range fields {
		v := f.Value
		switch f.Field {
		case LabelActivityFinder:
			tf.ActivityFinder = &v
		case LabelLocation:
			tf.Location = &v
		case LabelCategory:
			tf.Category = &v
		case LabelSubCategory:
			tf.SubCategory = &v
		case LabelInstructor:
			tf.Instructor = &v
		}
	}
	return tf
}
