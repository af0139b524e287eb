// Package store provides SQLite-backed persistence of runs, trial records
// and summaries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/signalnine/bart/internal/result"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'running',
	dir             TEXT NOT NULL DEFAULT '',
	seed            INTEGER NOT NULL DEFAULT 0,
	models_json     TEXT NOT NULL DEFAULT '[]',
	thresholds_json TEXT NOT NULL DEFAULT '[]',
	min_pumps       INTEGER NOT NULL DEFAULT 0,
	max_pumps       INTEGER NOT NULL DEFAULT 0,
	reward_per_pump REAL NOT NULL DEFAULT 0.0,
	num_balloons    INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at_ms   INTEGER NOT NULL DEFAULT 0,
	finished_at_ms  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trials (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	model           TEXT NOT NULL,
	balloon_id      INTEGER NOT NULL,
	threshold       INTEGER NOT NULL,
	pumps_attempted INTEGER NOT NULL DEFAULT 0,
	burst           INTEGER NOT NULL DEFAULT 0,
	earnings        REAL NOT NULL DEFAULT 0.0,
	outcome         TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	decisions_json  TEXT NOT NULL DEFAULT '[]',
	responses_json  TEXT NOT NULL DEFAULT '[]',
	turns           INTEGER NOT NULL DEFAULT 0,
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	UNIQUE(run_id, model, balloon_id)
);
CREATE INDEX IF NOT EXISTS idx_trials_run ON trials(run_id, model, balloon_id);

CREATE TABLE IF NOT EXISTS summaries (
	run_id              TEXT NOT NULL,
	model               TEXT NOT NULL,
	position            INTEGER NOT NULL DEFAULT 0,
	trials              INTEGER NOT NULL DEFAULT 0,
	aborted             INTEGER NOT NULL DEFAULT 0,
	mean_pumps          REAL NOT NULL DEFAULT 0.0,
	adjusted_mean_pumps REAL,
	burst_rate          REAL NOT NULL DEFAULT 0.0,
	mean_earnings       REAL NOT NULL DEFAULT 0.0,
	total_earnings      REAL NOT NULL DEFAULT 0.0,
	min_pumps           INTEGER NOT NULL DEFAULT 0,
	max_pumps           INTEGER NOT NULL DEFAULT 0,
	stddev_pumps        REAL NOT NULL DEFAULT 0.0,
	mean_pumps_burst    REAL,
	mean_pumps_cashout  REAL,
	input_tokens        INTEGER NOT NULL DEFAULT 0,
	output_tokens       INTEGER NOT NULL DEFAULT 0,
	cost_usd            REAL,
	PRIMARY KEY(run_id, model)
);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: SQLite has a single writer and workers share the handle.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

// nullable maps an undefined statistic to SQL NULL.
func nullable(v result.OptFloat) sql.NullFloat64 {
	if !v.Valid() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(v), Valid: true}
}

func optional(v sql.NullFloat64) result.OptFloat {
	if !v.Valid {
		return result.OptFloat(math.NaN())
	}
	return result.OptFloat(v.Float64)
}
