package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"zoomsync/internal/catalog"
	"zoomsync/internal/config"
	appLog "zoomsync/internal/log"
	"zoomsync/internal/metrics"
	"zoomsync/internal/pipeline"
	"zoomsync/internal/recurrence"
	"zoomsync/internal/runner"
	"zoomsync/internal/sink"
)

// Refresher triggers a sync run (runner.Runner).
type Refresher interface {
	Run(ctx context.Context) (pipeline.Summary, error)
	Running() bool
}

// RunLister reads run history (sink.Store).
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]pipeline.Summary, error)
}

type Options struct {
	Config    *config.Config
	Snapshot  *sink.Snapshot
	Refresher Refresher
	Runs      RunLister
	Metrics   *metrics.Collector
	Location  *time.Location
}

// Server exposes the last sync result, the calendar feed and run controls.
type Server struct {
	opts Options
	mux  *http.ServeMux

	// /calendar.ics body, rebuilt when the run id changes.
	icsMu    sync.Mutex
	icsCache *icsCache
}

type icsCache struct {
	runID string
	body  []byte
}

func NewServer(opts Options) *Server {
	if opts.Snapshot == nil {
		opts.Snapshot = sink.NewSnapshot()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	c := s.opts.Config
	if c == nil || c.BasicAuth == nil {
		return false
	}
	return c.BasicAuth.Username != "" && c.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.opts.Config.BasicAuth.Username
	password := s.opts.Config.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="zoomsync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/meetings", s.handleMeetings)
	s.mux.HandleFunc("/api/meetings/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("/api/categories", s.handleCategories)
	s.mux.HandleFunc("/api/instructors", s.handleInstructors)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.Handle("/metrics", s.opts.Metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusResponse struct {
	Running  bool              `json:"running"`
	Timezone string            `json:"timezone"`
	Records  int               `json:"records"`
	LastRun  *pipeline.Summary `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := statusResponse{
		Timezone: s.opts.Location.String(),
		Records:  len(s.opts.Snapshot.Records()),
	}
	if s.opts.Refresher != nil {
		resp.Running = s.opts.Refresher.Running()
	}
	if sum, ok := s.opts.Snapshot.Summary(); ok {
		resp.LastRun = &sum
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRuns lists stored run history.
//
// GET /api/runs?limit=20
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is not stored")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	runs, err := s.opts.Runs.Runs(r.Context(), limit)
	if err != nil {
		appLog.Error("api runs: query failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read runs")
		return
	}
	if runs == nil {
		runs = []pipeline.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type meetingsResponse struct {
	Count    int               `json:"count"`
	Meetings []pipeline.Record `json:"meetings"`
}

// handleMeetings returns the records of the last successful run.
//
// GET /api/meetings?type=weekly&category=Cardio
//   - type:     one of daily, weekly, monthly, custom
//   - category: exact tracked category
func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	kind := strings.ToLower(strings.TrimSpace(q.Get("type")))
	category := strings.TrimSpace(q.Get("category"))

	out := make([]pipeline.Record, 0)
	for _, rec := range s.opts.Snapshot.Records() {
		if kind != "" && string(rec.Kind()) != kind {
			continue
		}
		if category != "" && rec.Category() != category {
			continue
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, meetingsResponse{Count: len(out), Meetings: out})
}

type occurrenceDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type occurrencesResponse struct {
	ID          string          `json:"id"`
	Rule        string          `json:"rrule,omitempty"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

// handleOccurrences expands one record's recurrence.
//
// GET /api/meetings/occurrences?id=zm_123&limit=50
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if !strings.HasPrefix(id, pipeline.IDPrefix) {
		id = pipeline.IDPrefix + id
	}
	limit := parseIntDefault(q.Get("limit"), 50)
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	rec, ok := s.opts.Snapshot.Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}

	starts, err := recurrence.Expand(rec.Recurrence, limit)
	if err != nil {
		if errors.Is(err, recurrence.ErrNoWindow) {
			writeError(w, http.StatusUnprocessableEntity, "meeting has no occurrence window")
			return
		}
		appLog.Error("api occurrences: expand failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to expand recurrence")
		return
	}

	resp := occurrencesResponse{ID: id, Occurrences: make([]occurrenceDTO, 0, len(starts))}
	if rec.Kind() != recurrence.KindCustom {
		resp.Rule, _ = recurrence.RuleString(rec.Recurrence)
	}
	dur := rec.Recurrence.Span().Duration
	for _, st := range starts {
		st = st.In(s.opts.Location)
		resp.Occurrences = append(resp.Occurrences, occurrenceDTO{Start: st, End: st.Add(dur)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": catalog.Categories(s.opts.Snapshot.Records())})
}

func (s *Server) handleInstructors(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instructors": catalog.Instructors(s.opts.Snapshot.Records())})
}

// handleRefresh runs a sync synchronously and returns its summary.
//
// POST /api/refresh
//   - 200 with the summary on success
//   - 409 when a run is already active
//   - 502 when the run failed
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.opts.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh is not available")
		return
	}
	sum, err := s.opts.Refresher.Run(r.Context())
	switch {
	case errors.Is(err, runner.ErrRunning):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, sum)
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	runID := ""
	if sum, ok := s.opts.Snapshot.Summary(); ok {
		runID = sum.RunID
	}

	s.icsMu.Lock()
	c := s.icsCache
	if c == nil || c.runID != runID {
		cal, _ := sink.BuildCalendar(s.opts.Snapshot.Records(), "", time.Now().UTC(), s.opts.Location)
		c = &icsCache{runID: runID, body: []byte(cal.Serialize())}
		s.icsCache = c
	}
	s.icsMu.Unlock()

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.body)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
