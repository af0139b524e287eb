// Package server exposes an HTTP API for launching experiment runs in the
// background and browsing stored results.
package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/signalnine/bart/internal/result"
	"github.com/signalnine/bart/internal/store"
)

// LaunchRequest overrides parts of the configured experiment. Zero values
// keep the configured settings.
type LaunchRequest struct {
	Models      []string `json:"models,omitempty"`
	NumBalloons int      `json:"num_balloons,omitempty"`
	Seed        int64    `json:"seed,omitempty"`
}

// Launcher runs one experiment to completion under runID.
type Launcher func(ctx context.Context, runID string, req LaunchRequest) error

type runState struct {
	ID        string    `json:"run_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Handler serves the run API. At most one run executes at a time.
type Handler struct {
	db     *sql.DB
	launch Launcher

	runs      *store.RunRepo
	trials    *store.TrialRepo
	summaries *store.SummaryRepo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active string
	states map[string]*runState
}

func NewHandler(db *sql.DB, launch Launcher) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		db:        db,
		launch:    launch,
		runs:      &store.RunRepo{},
		trials:    &store.TrialRepo{},
		summaries: &store.SummaryRepo{},
		ctx:       ctx,
		cancel:    cancel,
		states:    map[string]*runState{},
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	e.POST("/v1/runs", h.StartRun)
	e.GET("/v1/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/trials", h.ListTrials)
}

// New builds an echo server with the handler's routes.
func New(h *Handler, verbose bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if verbose {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	h.RegisterRoutes(e)
	return e
}

// Shutdown cancels a run in progress and waits for it to stop.
func (h *Handler) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

// Wait blocks until no run is in progress.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// StartRun launches an experiment in the background.
// POST /v1/runs
func (h *Handler) StartRun(c echo.Context) error {
	var req LaunchRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	if req.NumBalloons < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "num_balloons must be >= 1"})
	}
	for _, m := range req.Models {
		if m == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "model ids must not be empty"})
		}
	}

	h.mu.Lock()
	if h.active != "" {
		active := h.active
		h.mu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "a run is already in progress", "run_id": active})
	}
	state := &runState{ID: result.NewRunID(), Status: result.StatusRunning, StartedAt: time.Now().UTC()}
	h.active = state.ID
	h.states[state.ID] = state
	h.wg.Add(1)
	h.mu.Unlock()

	go h.execute(state.ID, req)

	return c.JSON(http.StatusAccepted, map[string]string{
		"run_id": state.ID,
		"status": result.StatusRunning,
	})
}

func (h *Handler) execute(runID string, req LaunchRequest) {
	defer h.wg.Done()
	log.Printf("run %s started", runID)
	err := h.launch(h.ctx, runID, req)

	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.states[runID]
	if err != nil {
		state.Status = result.StatusFailed
		state.Error = err.Error()
		log.Printf("run %s failed: %v", runID, err)
	} else {
		state.Status = result.StatusCompleted
		log.Printf("run %s completed", runID)
	}
	h.active = ""
}

func (h *Handler) state(runID string) (runState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.states[runID]
	if !ok {
		return runState{}, false
	}
	return *s, true
}

// ListRuns lists stored runs, newest first.
// GET /v1/runs
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()
	runs, err := h.runs.List(ctx, h.db)
	if err != nil {
		log.Printf("ERROR: failed to list runs: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}

	seen := map[string]bool{}
	for i := range runs {
		seen[runs[i].ID] = true
		if s, ok := h.state(runs[i].ID); ok {
			runs[i].Status = s.Status
		}
	}
	// Runs that failed before reaching the store.
	h.mu.Lock()
	for id, s := range h.states {
		if !seen[id] {
			runs = append(runs, result.RunMeta{ID: id, Status: s.Status, StartedAt: s.StartedAt, Error: s.Error})
		}
	}
	h.mu.Unlock()
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })

	if runs == nil {
		runs = []result.RunMeta{}
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}

// GetRun returns a run's status and, once available, its summaries.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	state, tracked := h.state(runID)
	meta, err := h.runs.Get(ctx, h.db, runID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !tracked {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		meta = &result.RunMeta{ID: runID, StartedAt: state.StartedAt}
	case err != nil:
		log.Printf("ERROR: failed to get run: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if tracked {
		meta.Status = state.Status
		if state.Error != "" {
			meta.Error = state.Error
		}
	}

	summaries, err := h.summaries.ListByRun(ctx, h.db, runID)
	if err != nil {
		log.Printf("ERROR: failed to list summaries: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list summaries"})
	}
	if summaries == nil {
		summaries = []result.Summary{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run":       meta,
		"summaries": summaries,
	})
}

// ListTrials returns a run's trial records.
// GET /v1/runs/:run_id/trials
func (h *Handler) ListTrials(c echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	if _, tracked := h.state(runID); !tracked {
		if _, err := h.runs.Get(ctx, h.db, runID); errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		} else if err != nil {
			log.Printf("ERROR: failed to get run: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
		}
	}

	trials, err := h.trials.ListByRun(ctx, h.db, runID)
	if err != nil {
		log.Printf("ERROR: failed to list trials: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list trials"})
	}
	if trials == nil {
		trials = []result.TrialRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{"trials": trials})
}
