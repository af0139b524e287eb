package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/signalnine/bart/internal/balloon"
	"github.com/signalnine/bart/internal/gateway"
	"github.com/signalnine/bart/internal/result"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit [run-dir]",
		Short: "Re-classify stored responses",
		Long: "Walk a run directory and re-run the response classifier on every stored reply, reporting turns whose recorded decision no longer matches. " +
			"When the run kept a payload trace, token usage in the trace is compared with the trial records.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir := args[0]
			records, err := result.ReadTrialRecords(runDir)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no trial records found in %s", runDir)
			}
			n := auditRecords(records, os.Stdout)

			entries, err := gateway.ReadTrace(filepath.Join(runDir, gateway.TraceFile))
			switch {
			case errors.Is(err, os.ErrNotExist):
			case err != nil:
				log.Printf("warning: %v", err)
			default:
				auditUsage(records, entries, os.Stdout)
			}

			if n > 0 {
				return fmt.Errorf("%d decision(s) differ from the current classifier", n)
			}
			return nil
		},
	}
}

// auditRecords prints every mismatch and returns how many were found.
func auditRecords(records []result.TrialRecord, w io.Writer) int {
	var total int
	for i := range records {
		rec := &records[i]
		mismatches := balloon.Reclassify(rec)
		if len(mismatches) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s balloon %d:\n", rec.Model, rec.BalloonID)
		for _, m := range mismatches {
			fmt.Fprintf(w, "  turn %d: %q recorded %s, now %s\n", m.Turn, m.Response, m.Recorded, m.Current)
		}
		total += len(mismatches)
	}
	fmt.Fprintf(w, "Audited %d trial(s): %d mismatch(es)\n", len(records), total)
	return total
}

// auditUsage compares per-model token totals in the payload trace with the
// totals in the trial records and returns the models that differ. Replayed
// balloons only keep their last attempt, so the trace may count more.
func auditUsage(records []result.TrialRecord, entries []gateway.TraceEntry, w io.Writer) []string {
	traced := map[string][]gateway.Usage{}
	for _, e := range entries {
		if e.Response != nil {
			traced[e.Model] = append(traced[e.Model], e.Response.Usage)
		}
	}
	recorded := map[string][]gateway.Usage{}
	for _, r := range records {
		recorded[r.Model] = append(recorded[r.Model], gateway.Usage{InputTokens: r.InputTokens, OutputTokens: r.OutputTokens})
	}

	models := make([]string, 0, len(recorded))
	for m := range recorded {
		models = append(models, m)
	}
	for m := range traced {
		if _, ok := recorded[m]; !ok {
			models = append(models, m)
		}
	}
	sort.Strings(models)

	var differ []string
	for _, m := range models {
		tin, tout := gateway.TotalUsage(traced[m])
		rin, rout := gateway.TotalUsage(recorded[m])
		if tin == rin && tout == rout {
			continue
		}
		fmt.Fprintf(w, "%s usage: trace %d/%d tokens, records %d/%d\n", m, tin, tout, rin, rout)
		differ = append(differ, m)
	}
	fmt.Fprintf(w, "Checked usage against %d trace entries: %d model(s) differ\n", len(entries), len(differ))
	return differ
}
