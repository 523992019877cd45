// Package api serves stored runs, sweep submission and live progress over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exit-strategy-lab/internal/batch"
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/observability"
	"exit-strategy-lab/internal/orchestrator"
	"exit-strategy-lab/internal/reporting"
	"exit-strategy-lab/internal/storage"
	"exit-strategy-lab/internal/strategy"
)

// Defaults
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
	DefaultMaxBody   = 1 << 20
)

// Sweep states
const (
	SweepRunning   = "running"
	SweepSucceeded = "succeeded"
	SweepFailed    = "failed"
)

// Sweeper runs one sweep request.
type Sweeper interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.RunResult, error)
}

// Compile-time interface check.
var _ Sweeper = (*orchestrator.Orchestrator)(nil)

// SweepStatus tracks a submitted sweep.
type SweepStatus struct {
	RunID      string    `json:"run_id"`
	State      string    `json:"state"`
	Signals    int       `json:"signals"`
	Strategies int       `json:"strategies"`
	BadLines   []string  `json:"bad_lines,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	Error      string    `json:"error,omitempty"`
	Submitted  time.Time `json:"submitted"`
	Finished   time.Time `json:"finished,omitempty"`
}

// SweepRequest is the POST /sweeps body. Batch holds batch-file lines.
type SweepRequest struct {
	Batch    string `json:"batch"`
	Grid     string `json:"grid"`
	FillMode string `json:"fill_mode"`
	Timezone string `json:"timezone"`
}

// Server holds the HTTP handlers.
type Server struct {
	runs       storage.RunStore
	results    storage.ResultStore
	aggregates storage.AggregateStore
	sweeper    Sweeper
	progress   http.Handler
	defaultTZ  domain.TimezoneTag
	topN       int
	maxBody    int64
	newRunID   func() string
	now        func() time.Time
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	sweeps map[string]*SweepStatus
}

// Options configures a Server. Sweeper and Progress are optional; without
// them POST /sweeps and /ws/progress answer 503.
type Options struct {
	Runs       storage.RunStore
	Results    storage.ResultStore
	Aggregates storage.AggregateStore
	Sweeper    Sweeper
	Progress   http.Handler
	Timezone   domain.TimezoneTag
	TopN       int
	MaxBody    int64
	NewRunID   func() string
	Now        func() time.Time
	Logger     *zap.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	s := &Server{
		runs:       opts.Runs,
		results:    opts.Results,
		aggregates: opts.Aggregates,
		sweeper:    opts.Sweeper,
		progress:   opts.Progress,
		defaultTZ:  opts.Timezone,
		topN:       opts.TopN,
		maxBody:    opts.MaxBody,
		newRunID:   opts.NewRunID,
		now:        opts.Now,
		logger:     opts.Logger,
		sweeps:     make(map[string]*SweepStatus),
	}
	if s.defaultTZ == "" {
		s.defaultTZ = domain.TimezoneUTC
	}
	if s.topN <= 0 {
		s.topN = 3
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBody
	}
	if s.newRunID == nil {
		s.newRunID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /sweeps", s.handleSubmitSweep)
	mux.HandleFunc("GET /sweeps/{id}", s.handleGetSweep)
	mux.HandleFunc("GET /ws/progress", func(w http.ResponseWriter, r *http.Request) {
		if s.progress == nil {
			http.Error(w, "progress feed disabled", http.StatusServiceUnavailable)
			return
		}
		s.progress.ServeHTTP(w, r)
	})
	return mux
}

// Shutdown cancels running sweeps and waits for them to return or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxListLimit)
	}

	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}
	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i] = newRunView(run)
	}
	writeJSON(w, http.StatusOK, views)
}

// runResponse is the JSON form of a stored run.
type runResponse struct {
	Run        runView                   `json:"run"`
	Top        []aggregateView           `json:"top"`
	ExitTotals map[domain.ExitReason]int `json:"exit_totals"`
	Strategies int                       `json:"strategies"`
}

// handleGetRun renders a run as JSON, or as markdown or ranking CSV with
// ?format=md or ?format=csv.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	topN := s.topN
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "top must be a positive integer", http.StatusBadRequest)
			return
		}
		topN = n
	}

	gen := reporting.NewGenerator(s.runs, s.results, s.aggregates).WithClock(s.now)
	report, err := gen.Generate(r.Context(), r.PathValue("id"), topN)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		s.internalError(w, "generate report", err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		resp := runResponse{
			Run:        newRunView(report.Run),
			Top:        []aggregateView{},
			ExitTotals: report.ExitTotals(),
			Strategies: len(report.Ranking),
		}
		for _, a := range report.Top() {
			resp.Top = append(resp.Top, newAggregateView(a))
		}
		writeJSON(w, http.StatusOK, resp)
	case "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(reporting.RenderMarkdown(report)))
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(reporting.RenderRankingCSV(report)))
	default:
		http.Error(w, "format must be json, md or csv", http.StatusBadRequest)
	}
}

// handleSubmitSweep validates the batch and grid, then runs the sweep in the
// background. The response carries the run ID to follow on /ws/progress.
func (s *Server) handleSubmitSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		http.Error(w, "sweeps disabled", http.StatusServiceUnavailable)
		return
	}

	var req SweepRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode body: %v", err), http.StatusBadRequest)
		return
	}

	sweep, status, err := s.prepare(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.sweeps[status.RunID] = status
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runSweep(sweep)

	s.logger.Info("sweep submitted",
		zap.String("run_id", status.RunID),
		zap.Int("signals", status.Signals),
		zap.Int("strategies", status.Strategies),
	)
	writeJSON(w, http.StatusAccepted, s.snapshot(status.RunID))
}

func (s *Server) prepare(req SweepRequest) (orchestrator.Request, *SweepStatus, error) {
	gridName := req.Grid
	if gridName == "" {
		gridName = strategy.PresetFinder
	}
	mode := domain.FillRealistic
	if req.FillMode != "" {
		m, err := domain.ParseFillMode(req.FillMode)
		if err != nil {
			return orchestrator.Request{}, nil, err
		}
		mode = m
	}
	tz := s.defaultTZ
	if req.Timezone != "" {
		t, err := domain.ParseTimezone(req.Timezone)
		if err != nil {
			return orchestrator.Request{}, nil, err
		}
		tz = t
	}

	gb, ok := strategy.PresetGrid(gridName, mode)
	if !ok {
		return orchestrator.Request{}, nil, fmt.Errorf("unknown grid %q", gridName)
	}
	grid, rejected := gb.Build()

	signals, lineErrs := batch.Parse(strings.NewReader(req.Batch), batch.Defaults{Timezone: tz})
	if len(signals) == 0 {
		return orchestrator.Request{}, nil, errors.New("batch has no valid signals")
	}

	status := &SweepStatus{
		RunID:      s.newRunID(),
		State:      SweepRunning,
		Signals:    len(signals),
		Strategies: len(grid),
		Submitted:  s.now().UTC(),
	}
	for _, le := range lineErrs {
		status.BadLines = append(status.BadLines, le.Error())
	}
	return orchestrator.Request{RunID: status.RunID, Signals: signals, Grid: grid, Rejected: rejected}, status, nil
}

func (s *Server) runSweep(req orchestrator.Request) {
	defer s.wg.Done()

	res, err := s.sweeper.Run(s.ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sweeps[req.RunID]
	st.Finished = s.now().UTC()
	if err != nil {
		st.State = SweepFailed
		st.Error = err.Error()
		s.logger.Warn("sweep failed", zap.String("run_id", req.RunID), zap.Error(err))
		return
	}
	st.State = SweepSucceeded
	st.Errors = res.Errors
	s.logger.Info("sweep finished", zap.String("run_id", req.RunID), zap.Int("errors", len(res.Errors)))
}

func (s *Server) handleGetSweep(w http.ResponseWriter, r *http.Request) {
	st := s.snapshot(r.PathValue("id"))
	if st == nil {
		http.Error(w, "sweep not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// snapshot copies a status under the lock.
func (s *Server) snapshot(runID string) *SweepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sweeps[runID]
	if !ok {
		return nil
	}
	cp := *st
	cp.BadLines = append([]string(nil), st.BadLines...)
	cp.Errors = append([]string(nil), st.Errors...)
	return &cp
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
