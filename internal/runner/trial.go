package runner

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/signalnine/bart/internal/balloon"
	"github.com/signalnine/bart/internal/config"
	"github.com/signalnine/bart/internal/result"
)

// Player plays one balloon. *balloon.Engine satisfies it.
type Player interface {
	Play(ctx context.Context, model string, balloon, threshold int) (*result.TrialRecord, error)
}

var _ Player = (*balloon.Engine)(nil)

type AgentOpts struct {
	Player       Player
	Model        string
	Thresholds   []int
	Policy       string
	TrialRetries int
	Collector    *Collector
	// Progress, if set, is called after each recorded trial.
	Progress func(rec *result.TrialRecord)
}

// RunTrial plays balloon index i (1-based), replaying it under the retry
// policy. Only the final attempt is returned.
func RunTrial(ctx context.Context, opts *AgentOpts, i int) (*result.TrialRecord, error) {
	threshold := opts.Thresholds[i-1]
	rec, err := opts.Player.Play(ctx, opts.Model, i, threshold)
	if opts.Policy != config.PolicyRetry {
		return rec, err
	}
	for attempt := 1; err != nil && attempt <= opts.TrialRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		log.Printf("warning: %s balloon %d aborted (%v), replaying %d/%d", opts.Model, i, err, attempt, opts.TrialRetries)
		rec, err = opts.Player.Play(ctx, opts.Model, i, threshold)
	}
	return rec, err
}

// RunAgent plays every balloon for one model in index order. Each balloon
// starts from a fresh conversation and trials never overlap. An aborted trial
// is recorded; whether the agent continues depends on the failure policy.
func RunAgent(ctx context.Context, opts *AgentOpts) error {
	var skipped []error
	for i := 1; i <= len(opts.Thresholds); i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", opts.Model, err)
		}
		rec, err := RunTrial(ctx, opts, i)
		if rec != nil {
			opts.Collector.Add(*rec)
			if opts.Progress != nil {
				opts.Progress(rec)
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil || opts.Policy != config.PolicySkip {
			return fmt.Errorf("%s: %w", opts.Model, err)
		}
		log.Printf("warning: %s: skipping aborted balloon %d: %v", opts.Model, i, err)
		skipped = append(skipped, err)
	}
	if len(skipped) > 0 {
		return &SkippedError{Model: opts.Model, Errs: skipped}
	}
	return nil
}

// SkippedError reports trials that aborted under the skip policy. The agent
// still played every balloon.
type SkippedError struct {
	Model string
	Errs  []error
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("%s: %d balloon(s) aborted and skipped: %v", e.Model, len(e.Errs), errors.Join(e.Errs...))
}

func (e *SkippedError) Unwrap() []error { return e.Errs }
