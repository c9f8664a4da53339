package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appLog "zoomsync/internal/log"
	"zoomsync/internal/recurrence"
)

// RunConfig wires one pipeline run.
type RunConfig struct {
	Source Source
	// Sink may be nil; records are then only returned.
	Sink        Sink
	Location    *time.Location
	MeetingType string
	Concurrency int
}

// Rejection is a meeting that could not be normalized.
type Rejection struct {
	MeetingID int64  `json:"meeting_id"`
	Topic     string `json:"topic"`
	Err       error  `json:"-"`
}

type rejectionJSON struct {
	MeetingID int64  `json:"meeting_id"`
	Topic     string `json:"topic"`
	Reason    string `json:"reason"`
}

func (r Rejection) MarshalJSON() ([]byte, error) {
	a := rejectionJSON{MeetingID: r.MeetingID, Topic: r.Topic}
	if r.Err != nil {
		a.Reason = r.Err.Error()
	}
	return json.Marshal(a)
}

// UnmarshalJSON restores a stored rejection; the reason comes back as a
// plain error, its original type is lost.
func (r *Rejection) UnmarshalJSON(b []byte) error {
	var a rejectionJSON
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	r.MeetingID, r.Topic, r.Err = a.MeetingID, a.Topic, nil
	if a.Reason != "" {
		r.Err = errors.New(a.Reason)
	}
	return nil
}

// Summary is the user-facing outcome of a run.
type Summary struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Users      int         `json:"users"`
	Pages      int         `json:"pages"`
	Listed     int         `json:"listed"`
	Fetched    int         `json:"fetched"`
	Mapped     int         `json:"mapped"`
	Skipped    int         `json:"skipped"`
	Rejected   int         `json:"rejected"`
	Emitted    int         `json:"emitted"`
	Rejections []Rejection `json:"rejections,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Result is returned by Run.
type Result struct {
	Summary Summary
	Records []Record
}

// Run aggregates, normalizes and emits. Transport and sink failures abort
// the run; a meeting whose recurrence cannot be classified or whose
// timestamps do not parse is rejected and the run continues.
func Run(ctx context.Context, cfg RunConfig) (Result, error) {
	if cfg.Source == nil {
		return Result{}, errors.New("pipeline: source is nil")
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	sum := Summary{RunID: uuid.NewString(), StartedAt: time.Now()}
	fail := func(err error) (Result, error) {
		sum.FinishedAt = time.Now()
		sum.Error = err.Error()
		appLog.Error("sync run failed", err, "run_id", sum.RunID)
		return Result{Summary: sum}, err
	}

	appLog.Info("sync run started", "run_id", sum.RunID, "timezone", loc.String())

	agg := NewAggregator(cfg.Source, AggregatorConfig{
		MeetingType: cfg.MeetingType,
		Concurrency: cfg.Concurrency,
	})
	ar, err := agg.Aggregate(ctx)
	if err != nil {
		return fail(err)
	}
	sum.Users = ar.Users
	sum.Pages = ar.Pages
	sum.Listed = ar.Listed
	sum.Fetched = ar.Fetched
	sum.Mapped = len(ar.Meetings)
	sum.Skipped = ar.Skipped

	records := make([]Record, 0, len(ar.Meetings))
	for _, m := range ar.Meetings {
		d, err := recurrence.Normalize(m, loc)
		if err != nil {
			if !isRecordError(err) {
				return fail(err)
			}
			sum.Rejected++
			sum.Rejections = append(sum.Rejections, Rejection{MeetingID: m.ID, Topic: m.TopicOrEmpty(), Err: err})
			appLog.Error("meeting rejected", err, "meeting_id", m.ID, "topic", m.TopicOrEmpty())
			continue
		}
		records = append(records, Emit(m, d))
	}

	if cfg.Sink != nil {
		if err := cfg.Sink.Emit(ctx, records); err != nil {
			return fail(fmt.Errorf("emit: %w", err))
		}
	}
	sum.Emitted = len(records)
	sum.FinishedAt = time.Now()

	appLog.Info("sync run finished",
		"run_id", sum.RunID,
		"fetched", sum.Fetched,
		"mapped", sum.Mapped,
		"skipped", sum.Skipped,
		"rejected", sum.Rejected,
		"emitted", sum.Emitted,
		"elapsed", sum.FinishedAt.Sub(sum.StartedAt).String(),
	)
	return Result{Summary: sum, Records: records}, nil
}

func isRecordError(err error) bool {
	var ce *recurrence.ClassificationError
	var te *recurrence.TimestampError
	return errors.As(err, &ce) || errors.As(err, &te)
}
