package cmd

import (
	"fmt"

	"github.com/signalnine/bart/internal/config"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured models and experiment parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			e := cfg.Experiment
			fmt.Println("Experiment:")
			fmt.Printf("  balloons: %d\n", e.NumBalloons)
			fmt.Printf("  thresholds: %d..%d pumps\n", e.MinPumps, e.MaxPumps)
			fmt.Printf("  reward per pump: $%.2f\n", e.RewardPerPump)
			if e.Seed != 0 {
				fmt.Printf("  seed: %d\n", e.Seed)
			} else {
				fmt.Println("  seed: time-based")
			}
			fmt.Printf("  parallel: %d (failure policy: %s)\n", cfg.Concurrency.Parallel, cfg.Concurrency.FailurePolicy)
			fmt.Println("\nModels:")
			for _, m := range cfg.Models {
				fmt.Printf("  - %s\n", m)
			}
			return nil
		},
	}
}
