// Package runner serializes pipeline runs and drives them from a cron
// schedule.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "zoomsync/internal/log"
	"zoomsync/internal/metrics"
	"zoomsync/internal/pipeline"
	"zoomsync/internal/sink"
)

// ErrRunning is returned when a run is requested while another is active.
var ErrRunning = errors.New("sync run already in progress")

// RunRecorder persists run summaries (sink.Store).
type RunRecorder interface {
	RecordRun(ctx context.Context, sum pipeline.Summary) error
}

type Options struct {
	Source      pipeline.Source
	Location    *time.Location
	MeetingType string
	Concurrency int

	// Sinks receive records in order; Snapshot is appended last so it only
	// ever shows records the other sinks accepted.
	Sinks    []pipeline.Sink
	Snapshot *sink.Snapshot
	Recorder RunRecorder
	Metrics  *metrics.Collector
}

type Runner struct {
	opts    Options
	sink    pipeline.Sink
	mu      sync.Mutex
	running atomic.Bool
}

func New(opts Options) *Runner {
	sinks := make(sink.Multi, 0, len(opts.Sinks)+1)
	sinks = append(sinks, opts.Sinks...)
	if opts.Snapshot != nil {
		sinks = append(sinks, opts.Snapshot)
	}
	return &Runner{opts: opts, sink: sinks}
}

// Running reports whether a run is active.
func (r *Runner) Running() bool { return r.running.Load() }

// Run executes one pipeline run. It returns ErrRunning without doing
// anything if a run is already active.
func (r *Runner) Run(ctx context.Context) (pipeline.Summary, error) {
	if !r.mu.TryLock() {
		appLog.Info("sync run skipped; previous run still active")
		return pipeline.Summary{}, ErrRunning
	}
	defer r.mu.Unlock()
	r.running.Store(true)
	defer r.running.Store(false)

	res, err := pipeline.Run(ctx, pipeline.RunConfig{
		Source:      r.opts.Source,
		Sink:        r.sink,
		Location:    r.opts.Location,
		MeetingType: r.opts.MeetingType,
		Concurrency: r.opts.Concurrency,
	})

	if r.opts.Snapshot != nil {
		r.opts.Snapshot.SetSummary(res.Summary)
	}
	r.opts.Metrics.ObserveRun(res.Summary, err)
	if r.opts.Recorder != nil && res.Summary.RunID != "" {
		// Record failed runs too, even when ctx was cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if rerr := r.opts.Recorder.RecordRun(rctx, res.Summary); rerr != nil {
			appLog.Error("record run failed", rerr, "run_id", res.Summary.RunID)
		}
		cancel()
	}
	return res.Summary, err
}

// Start schedules Run on spec (standard 5-field cron) in loc until ctx is
// done. The returned stop function waits for an active run to finish.
func (r *Runner) Start(ctx context.Context, spec string, loc *time.Location) (func(), error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.Run(ctx); err != nil && !errors.Is(err, ErrRunning) {
			appLog.Error("scheduled sync failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("sync scheduled", "refresh", spec, "timezone", loc.String())

	var once sync.Once
	stop := func() {
		once.Do(func() {
			<-c.Stop().Done()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}
