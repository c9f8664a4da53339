package sink

import (
	"context"
	"errors"
	"time"

	ical "github.com/arran4/golang-ical"

	"zoomsync/internal/atomicfile"
	appLog "zoomsync/internal/log"
	"zoomsync/internal/model"
	"zoomsync/internal/pipeline"
	"zoomsync/internal/recurrence"
)

const DefaultProductID = "-//zoomsync//meetings//EN"

// UIDSuffix is appended to record ids to form VEVENT UIDs.
const UIDSuffix = "@zoomsync"

const (
	icsUTCLayout   = "20060102T150405Z"
	icsLocalLayout = "20060102T150405"
)

// BuildCalendar renders records as VEVENTs. Start and end are written as
// wall-clock time with TZID=loc so BYDAY and BYMONTHDAY expand on site
// days; a zone without an IANA name is written in UTC. Recurring records
// without a window cannot be placed and are left out; their ids are
// returned.
func BuildCalendar(records []pipeline.Record, productID string, stamp time.Time, loc *time.Location) (*ical.Calendar, []string) {
	if productID == "" {
		productID = DefaultProductID
	}
	tzid := zoneID(loc)
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	var omitted []string
	for _, r := range records {
		if r.Recurrence == nil || r.Recurrence.Span() == nil {
			omitted = append(omitted, r.ID)
			continue
		}
		w := r.Recurrence.Span()

		ev := cal.AddEvent(r.ID + UIDSuffix)
		ev.SetDtStampTime(stamp)
		ev.SetSummary(model.Deref(r.Topic))
		if d := model.Deref(r.Description); d != "" {
			ev.SetDescription(d)
		}
		if l := model.Deref(r.Link); l != "" {
			ev.SetURL(l)
		}
		if place := model.Deref(r.Tracked.Location); place != "" {
			ev.SetLocation(place)
		}
		if c := r.Category(); c != "" {
			ev.AddProperty(ical.ComponentPropertyCategories, c)
		}

		start := w.RuleStart()
		setTime(ev, ical.ComponentPropertyDtStart, start, loc, tzid)
		if r.Kind() == recurrence.KindCustom {
			setTime(ev, ical.ComponentPropertyDtEnd, w.End, loc, tzid)
			continue
		}
		setTime(ev, ical.ComponentPropertyDtEnd, start.Add(w.Duration), loc, tzid)
		rule, err := recurrence.RuleString(r.Recurrence)
		if err != nil {
			appLog.Error("rrule build failed", err, "id", r.ID)
			continue
		}
		ev.AddProperty(ical.ComponentPropertyRrule, rule)
	}
	return cal, omitted
}

// zoneID is the TZID for loc, or "" when loc has no loadable IANA name.
func zoneID(loc *time.Location) string {
	if loc == nil {
		return ""
	}
	name := loc.String()
	if name == "" || name == "UTC" || name == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

func setTime(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location, tzid string) {
	if tzid == "" {
		ev.SetProperty(prop, t.UTC().Format(icsUTCLayout))
		return
	}
	ev.SetProperty(prop, t.In(loc).Format(icsLocalLayout), ical.WithTZID(tzid))
}

// ICSWriter is a Sink that writes all records to one .ics file.
type ICSWriter struct {
	Path      string
	ProductID string
	// Location is the site zone written as TZID; UTC when nil.
	Location *time.Location
	// Now stamps DTSTAMP; time.Now when nil.
	Now func() time.Time
}

func (w *ICSWriter) Emit(ctx context.Context, records []pipeline.Record) error {
	if w.Path == "" {
		return errors.New("ics: output path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}

	cal, omitted := BuildCalendar(records, w.ProductID, now().UTC(), w.Location)
	for _, id := range omitted {
		appLog.Info("record has no window; left out of calendar", "id", id)
	}

	if err := atomicfile.Write(w.Path, []byte(cal.Serialize()), 0o644); err != nil {
		return err
	}
	appLog.Info("ics written", "path", w.Path, "events", len(records)-len(omitted))
	return nil
}
