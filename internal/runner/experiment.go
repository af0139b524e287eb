package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/bart/internal/result"
)

type ExperimentOpts struct {
	Player       Player
	Models       []string
	Thresholds   []int
	Parallel     int
	Policy       string
	TrialRetries int
	// OnRecord sees each record as its trial ends. Calls are serialized.
	OnRecord func(result.TrialRecord)
	Progress func(rec *result.TrialRecord)
}

// Outcome is everything an experiment produced. Records are ordered by model
// as configured, then balloon index.
type Outcome struct {
	Records []result.TrialRecord
	// Errors holds one entry per agent that stopped early or skipped trials.
	Errors []error
}

// RunExperiment plays the shared threshold sequence against every model,
// one agent per pool job. An agent's failure never stops the others.
func RunExperiment(ctx context.Context, opts ExperimentOpts) (*Outcome, error) {
	if opts.Player == nil {
		return nil, errors.New("no player configured")
	}
	if len(opts.Models) == 0 {
		return nil, errors.New("no models to run")
	}
	if len(opts.Thresholds) == 0 {
		return nil, errors.New("no thresholds generated")
	}

	collector := NewCollector(opts.OnRecord)
	jobs := make([]Job, 0, len(opts.Models))
	for _, model := range opts.Models {
		agent := &AgentOpts{
			Player:       opts.Player,
			Model:        model,
			Thresholds:   opts.Thresholds,
			Policy:       opts.Policy,
			TrialRetries: opts.TrialRetries,
			Collector:    collector,
			Progress:     opts.Progress,
		}
		jobs = append(jobs, func() error {
			return RunAgent(ctx, agent)
		})
	}
	errs := RunPool(opts.Parallel, jobs)

	out := &Outcome{Records: collector.Records(opts.Models), Errors: errs}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("experiment interrupted: %w", err)
	}
	return out, nil
}
