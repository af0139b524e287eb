package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalnine/bart/internal/result"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunRepo handles persistence for run metadata.
type RunRepo struct{}

// Save inserts a run or replaces the stored copy.
func (r *RunRepo) Save(ctx context.Context, db *sql.DB, meta *result.RunMeta) error {
	models, err := json.Marshal(meta.Models)
	if err != nil {
		return fmt.Errorf("marshal models: %w", err)
	}
	thresholds, err := json.Marshal(meta.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	const q = `INSERT INTO runs (run_id, status, dir, seed, models_json, thresholds_json, min_pumps, max_pumps,
	reward_per_pump, num_balloons, error, started_at_ms, finished_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	status = excluded.status,
	dir = excluded.dir,
	seed = excluded.seed,
	models_json = excluded.models_json,
	thresholds_json = excluded.thresholds_json,
	min_pumps = excluded.min_pumps,
	max_pumps = excluded.max_pumps,
	reward_per_pump = excluded.reward_per_pump,
	num_balloons = excluded.num_balloons,
	error = excluded.error,
	started_at_ms = excluded.started_at_ms,
	finished_at_ms = excluded.finished_at_ms`
	_, err = db.ExecContext(ctx, q,
		meta.ID,
		meta.Status,
		meta.Dir,
		meta.Seed,
		string(models),
		string(thresholds),
		meta.MinPumps,
		meta.MaxPumps,
		meta.RewardPerPump,
		meta.NumBalloons,
		meta.Error,
		unixMilli(meta.StartedAt),
		unixMilli(meta.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

const runColumns = `run_id, status, dir, seed, models_json, thresholds_json, min_pumps, max_pumps,
	reward_per_pump, num_balloons, error, started_at_ms, finished_at_ms`

// Get returns one run, or ErrNotFound.
func (r *RunRepo) Get(ctx context.Context, db *sql.DB, runID string) (*result.RunMeta, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	meta, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return meta, nil
}

// List returns all runs, newest first.
func (r *RunRepo) List(ctx context.Context, db *sql.DB) ([]result.RunMeta, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at_ms DESC, run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []result.RunMeta
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *meta)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*result.RunMeta, error) {
	var (
		meta                  result.RunMeta
		models, thresholds    string
		startedMS, finishedMS int64
	)
	if err := s.Scan(&meta.ID, &meta.Status, &meta.Dir, &meta.Seed, &models, &thresholds,
		&meta.MinPumps, &meta.MaxPumps, &meta.RewardPerPump, &meta.NumBalloons, &meta.Error,
		&startedMS, &finishedMS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(models), &meta.Models); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	if err := json.Unmarshal([]byte(thresholds), &meta.Thresholds); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	meta.StartedAt = fromUnixMilli(startedMS)
	meta.FinishedAt = fromUnixMilli(finishedMS)
	return &meta, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
