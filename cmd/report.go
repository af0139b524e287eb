package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/bart/internal/config"
	"github.com/signalnine/bart/internal/report"
	"github.com/spf13/cobra"
)

var (
	flagFormat string
	flagTrend  bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg, args)
			if err != nil {
				return err
			}
			if flagTrend {
				return report.GenerateTrend(runDir, flagFormat, os.Stdout)
			}
			return report.Generate(runDir, flagFormat, os.Stdout, cfg.Pricing.File)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, text, markdown, json, csv)")
	cmd.Flags().BoolVar(&flagTrend, "trend", false, "show per-balloon trend instead of per-model summary")
	return cmd
}

// resolveRunDir returns the run directory named in args, or the latest run.
func resolveRunDir(cfg *config.Config, args []string) (string, error) {
	runDir := filepath.Join(cfg.Results.Dir, "latest")
	if len(args) > 0 {
		runDir = args[0]
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}
