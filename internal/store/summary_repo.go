package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/signalnine/bart/internal/result"
)

// SummaryRepo handles persistence for aggregate summaries.
type SummaryRepo struct{}

// Replace swaps a run's stored summaries for the given rows in one
// transaction. Row order is preserved.
func (r *SummaryRepo) Replace(ctx context.Context, db *sql.DB, runID string, summaries []result.Summary) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear summaries: %w", err)
	}
	const q = `INSERT INTO summaries (run_id, model, position, trials, aborted, mean_pumps, adjusted_mean_pumps,
	burst_rate, mean_earnings, total_earnings, min_pumps, max_pumps, stddev_pumps, mean_pumps_burst,
	mean_pumps_cashout, input_tokens, output_tokens, cost_usd)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, s := range summaries {
		if _, err := tx.ExecContext(ctx, q,
			runID,
			s.Model,
			i,
			s.Trials,
			s.Aborted,
			s.MeanPumps,
			nullable(s.AdjustedMeanPumps),
			s.BurstRate,
			s.MeanEarnings,
			s.TotalEarnings,
			s.MinPumps,
			s.MaxPumps,
			s.StdDevPumps,
			nullable(s.MeanPumpsBurst),
			nullable(s.MeanPumpsCashOut),
			s.InputTokens,
			s.OutputTokens,
			nullable(s.CostUSD),
		); err != nil {
			return fmt.Errorf("insert summary %s: %w", s.Model, err)
		}
	}
	return tx.Commit()
}

// ListByRun returns a run's summaries in stored order.
func (r *SummaryRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]result.Summary, error) {
	const q = `SELECT model, trials, aborted, mean_pumps, adjusted_mean_pumps, burst_rate, mean_earnings,
	total_earnings, min_pumps, max_pumps, stddev_pumps, mean_pumps_burst, mean_pumps_cashout,
	input_tokens, output_tokens, cost_usd
FROM summaries
WHERE run_id = ?
ORDER BY position ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []result.Summary
	for rows.Next() {
		var (
			s                     result.Summary
			adjusted, burst, safe sql.NullFloat64
			cost                  sql.NullFloat64
		)
		if err := rows.Scan(&s.Model, &s.Trials, &s.Aborted, &s.MeanPumps, &adjusted, &s.BurstRate,
			&s.MeanEarnings, &s.TotalEarnings, &s.MinPumps, &s.MaxPumps, &s.StdDevPumps, &burst, &safe,
			&s.InputTokens, &s.OutputTokens, &cost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.AdjustedMeanPumps = optional(adjusted)
		s.MeanPumpsBurst = optional(burst)
		s.MeanPumpsCashOut = optional(safe)
		s.CostUSD = optional(cost)
		out = append(out, s)
	}
	return out, rows.Err()
}
