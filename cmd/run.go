package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/signalnine/bart/internal/balloon"
	"github.com/signalnine/bart/internal/config"
	"github.com/signalnine/bart/internal/gateway"
	"github.com/signalnine/bart/internal/pricing"
	"github.com/signalnine/bart/internal/report"
	"github.com/signalnine/bart/internal/result"
	"github.com/signalnine/bart/internal/runner"
	"github.com/signalnine/bart/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagModels   []string
	flagBalloons int
	flagParallel int
	flagSeed     int64
	flagMock     bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the balloon task against every configured model",
		RunE:  runExperiment,
	}
	cmd.Flags().StringSliceVar(&flagModels, "model", nil, "model id to run instead of the configured list (repeatable)")
	cmd.Flags().IntVar(&flagBalloons, "balloons", 0, "override number of balloons")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent agents")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "threshold seed (0 = time-based)")
	cmd.Flags().BoolVar(&flagMock, "mock", false, "use the offline mock agent instead of the API")
	return cmd
}

// overrides are per-run changes layered over the config file.
type overrides struct {
	Models      []string
	NumBalloons int
	Parallel    int
	Seed        int64
}

// applyOverrides copies non-zero overrides into cfg and re-validates it.
func applyOverrides(cfg *config.Config, o overrides) error {
	if len(o.Models) > 0 {
		cfg.Models = dedupe(o.Models)
	}
	if o.NumBalloons != 0 {
		cfg.Experiment.NumBalloons = o.NumBalloons
	}
	if o.Parallel != 0 {
		cfg.Concurrency.Parallel = o.Parallel
	}
	if o.Seed != 0 {
		cfg.Experiment.Seed = o.Seed
	}
	return config.Validate(cfg)
}

func dedupe(models []string) []string {
	seen := make(map[string]bool, len(models))
	var out []string
	for _, m := range models {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, overrides{
		Models:      flagModels,
		NumBalloons: flagBalloons,
		Parallel:    flagParallel,
		Seed:        flagSeed,
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ex := &executor{cfg: cfg, db: db, mock: flagMock || gateway.MockMode(), out: os.Stdout}
	meta, err := ex.run(ctx, result.NewRunID())
	if meta == nil {
		return err
	}

	fmt.Println("\n--- Results ---")
	if rerr := report.Generate(meta.Dir, "table", os.Stdout, cfg.Pricing.File); rerr != nil {
		log.Printf("warning: rendering report: %v", rerr)
	}
	return err
}

func openStore(cfg *config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Results.Database), 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}
	return store.NewDB(cfg.Results.Database)
}

// executor runs one experiment end to end: thresholds, agents, storage
// and aggregation. The run and serve commands share it.
type executor struct {
	cfg  *config.Config
	db   *sql.DB
	mock bool
	out  io.Writer
}

// run executes the experiment under runID. The returned meta is nil only
// when nothing was started. Per-agent failures are reported and do not fail
// the run; an interrupt does.
func (x *executor) run(ctx context.Context, runID string) (*result.RunMeta, error) {
	cfg := x.cfg
	exp := cfg.Experiment

	seed := runner.ResolveSeed(exp.Seed)
	thresholds, err := runner.GenerateThresholds(runner.NewRand(seed), exp.NumBalloons, exp.MinPumps, exp.MaxPumps)
	if err != nil {
		return nil, err
	}

	// Resolve the client before touching results so a bad setup leaves
	// "latest" on the previous run.
	base, err := x.baseCompleter(seed)
	if err != nil {
		return nil, err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(x.out, "Run %s: %s\n", runID, runDir)

	completer, closeTrace := x.completer(base, runDir)
	defer closeTrace()

	meta := &result.RunMeta{
		ID:            runID,
		Status:        result.StatusRunning,
		StartedAt:     time.Now().UTC(),
		Seed:          seed,
		Models:        cfg.Models,
		Thresholds:    thresholds,
		MinPumps:      exp.MinPumps,
		MaxPumps:      exp.MaxPumps,
		RewardPerPump: exp.RewardPerPump,
		NumBalloons:   exp.NumBalloons,
		Dir:           runDir,
	}
	if err := x.saveMeta(meta); err != nil {
		return nil, err
	}

	engine := balloon.NewEngine(completer, balloon.Rules{
		RewardPerPump: exp.RewardPerPump,
		MaxPumps:      exp.MaxPumps,
		NumBalloons:   exp.NumBalloons,
	})
	trials := &store.TrialRepo{}
	outcome, runErr := runner.RunExperiment(ctx, runner.ExperimentOpts{
		Player:       engine,
		Models:       cfg.Models,
		Thresholds:   thresholds,
		Parallel:     cfg.Concurrency.Parallel,
		Policy:       cfg.Concurrency.FailurePolicy,
		TrialRetries: cfg.Concurrency.TrialRetries,
		OnRecord: func(rec result.TrialRecord) {
			if err := result.WriteTrialRecord(result.TrialDir(runDir, rec.Model, rec.BalloonID), &rec); err != nil {
				log.Printf("warning: %v", err)
			}
			// The store write must outlive an interrupt so the record is kept.
			if err := trials.Record(context.WithoutCancel(ctx), x.db, runID, &rec); err != nil {
				log.Printf("warning: %v", err)
			}
		},
		Progress: func(rec *result.TrialRecord) {
			fmt.Fprintf(x.out, "  %s balloon %d/%d: %s (pumps %d, $%.2f)\n",
				rec.Model, rec.BalloonID, exp.NumBalloons, rec.Outcome, rec.PumpsAttempted, rec.Earnings)
		},
	})
	if outcome == nil {
		meta.Status = result.StatusFailed
		meta.Error = runErr.Error()
		meta.FinishedAt = time.Now().UTC()
		if err := x.saveMeta(meta); err != nil {
			log.Printf("warning: %v", err)
		}
		return meta, runErr
	}
	for _, err := range outcome.Errors {
		fmt.Fprintf(x.out, "  ERROR: %v\n", err)
	}

	summaries := report.Summarize(outcome.Records)
	if cfg.Pricing.File != "" {
		table, err := pricing.Load(cfg.Pricing.File)
		if err != nil {
			log.Printf("warning: %v", err)
		} else {
			report.EnrichCosts(summaries, table)
		}
	}
	if err := result.WriteCSVFiles(runDir, outcome.Records, summaries); err != nil {
		log.Printf("warning: %v", err)
	}
	if err := (&store.SummaryRepo{}).Replace(context.WithoutCancel(ctx), x.db, runID, summaries); err != nil {
		log.Printf("warning: %v", err)
	}

	meta.FinishedAt = time.Now().UTC()
	meta.Status = result.StatusCompleted
	if runErr != nil {
		meta.Status = result.StatusFailed
		meta.Error = runErr.Error()
	}
	if err := x.saveMeta(meta); err != nil {
		log.Printf("warning: %v", err)
	}
	return meta, runErr
}

func (x *executor) saveMeta(meta *result.RunMeta) error {
	if err := result.WriteRunMeta(meta.Dir, meta); err != nil {
		return err
	}
	return (&store.RunRepo{}).Save(context.Background(), x.db, meta)
}

// baseCompleter returns the mock agent or the API client. It fails when no
// API key can be found.
func (x *executor) baseCompleter(seed int64) (gateway.Completer, error) {
	cfg := x.cfg
	if x.mock {
		log.Printf("mock mode: no API calls will be made")
		return gateway.NewMockCompleter(seed, cfg.Experiment.MaxPumps), nil
	}
	var secrets map[string]string
	if cfg.Secrets.EnvFile != "" {
		s, err := gateway.ParseEnvFile(cfg.Secrets.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("warning: could not load secrets: %v", err)
		}
		secrets = s
	}
	key := cfg.APIKey(secrets)
	if key == "" {
		return nil, errors.New("no API key: set api.api_key, OPENROUTER_API_KEY, or use --mock")
	}
	return gateway.NewClient(gateway.ClientOpts{
		BaseURL: cfg.API.BaseURL,
		APIKey:  key,
		Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		Referer: cfg.API.Referer,
		Title:   cfg.API.Title,
	}), nil
}

// completer wraps base with the payload trace, the rate limit and the retry
// policy. The returned func closes the trace file.
func (x *executor) completer(base gateway.Completer, runDir string) (gateway.Completer, func()) {
	cfg := x.cfg
	closeTrace := func() {}
	var tracer *gateway.Tracer
	if cfg.DebugMode || flagVerbose {
		t, err := gateway.OpenTracer(filepath.Join(runDir, gateway.TraceFile))
		if err != nil {
			log.Printf("warning: %v", err)
		} else {
			tracer = t
			closeTrace = func() { t.Close() }
		}
	}

	c := gateway.WithTrace(base, tracer)
	c = gateway.WithRateLimit(c, cfg.API.RequestsPerSecond, cfg.Concurrency.Parallel)
	c = gateway.WithRetry(c, gateway.RetryPolicy{
		MaxAttempts: cfg.API.MaxAttempts,
		BaseDelay:   time.Duration(cfg.API.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.API.MaxDelayMS) * time.Millisecond,
	})
	return c, closeTrace
}
