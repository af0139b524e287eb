package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/signalnine/bart/internal/result"
)

// TrialRepo handles persistence for trial records.
type TrialRepo struct{}

// Record stores one trial. A later record for the same run, model and
// balloon replaces the earlier one.
func (r *TrialRepo) Record(ctx context.Context, db *sql.DB, runID string, rec *result.TrialRecord) error {
	decisions, err := json.Marshal(rec.Decisions)
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}
	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	const q = `INSERT OR REPLACE INTO trials (run_id, model, balloon_id, threshold, pumps_attempted, burst, earnings,
	outcome, error, decisions_json, responses_json, turns, input_tokens, output_tokens, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q,
		runID,
		rec.Model,
		rec.BalloonID,
		rec.Threshold,
		rec.PumpsAttempted,
		rec.Burst,
		rec.Earnings,
		string(rec.Outcome),
		rec.Error,
		string(decisions),
		string(responses),
		rec.Turns,
		rec.InputTokens,
		rec.OutputTokens,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record trial: %w", err)
	}
	return nil
}

// ListByRun returns a run's trials ordered by model then balloon index.
func (r *TrialRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]result.TrialRecord, error) {
	const q = `SELECT model, balloon_id, threshold, pumps_attempted, burst, earnings, outcome, error,
	decisions_json, responses_json, turns, input_tokens, output_tokens, duration_ms
FROM trials
WHERE run_id = ?
ORDER BY model ASC, balloon_id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var records []result.TrialRecord
	for rows.Next() {
		var (
			t                    result.TrialRecord
			outcome              string
			decisions, responses string
		)
		if err := rows.Scan(&t.Model, &t.BalloonID, &t.Threshold, &t.PumpsAttempted, &t.Burst, &t.Earnings,
			&outcome, &t.Error, &decisions, &responses, &t.Turns, &t.InputTokens, &t.OutputTokens, &t.DurationMS); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Outcome = result.Outcome(outcome)
		if err := json.Unmarshal([]byte(decisions), &t.Decisions); err != nil {
			return nil, fmt.Errorf("decode decisions: %w", err)
		}
		if err := json.Unmarshal([]byte(responses), &t.Responses); err != nil {
			return nil, fmt.Errorf("decode responses: %w", err)
		}
		records = append(records, t)
	}
	return records, rows.Err()
}
