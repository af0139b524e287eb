package result

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	TrialsCSV  = "trials.csv"
	SummaryCSV = "summary.csv"
)

var trialHeader = []string{
	"model", "balloon_id", "threshold_pumps", "pumps_attempted", "burst",
	"earnings", "outcome", "choices", "full_responses", "error",
}

var summaryHeader = []string{
	"model", "total_balloons", "aborted", "avg_pumps", "adjusted_pumps",
	"burst_rate", "avg_earnings", "total_earnings", "cost_usd",
}

// WriteTrialsCSV writes one flat row per trial. Decisions are joined with
// ", " and responses with " | ".
func WriteTrialsCSV(w io.Writer, records []TrialRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(trialHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Model,
			strconv.Itoa(r.BalloonID),
			strconv.Itoa(r.Threshold),
			strconv.Itoa(r.PumpsAttempted),
			strconv.FormatBool(r.Burst),
			FormatMoney(r.Earnings),
			string(r.Outcome),
			strings.Join(r.Decisions, ", "),
			strings.Join(r.Responses, " | "),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteSummaryCSV(w io.Writer, summaries []Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		row := []string{
			s.Model,
			strconv.Itoa(s.Trials),
			strconv.Itoa(s.Aborted),
			FormatStat(OptFloat(s.MeanPumps)),
			FormatStat(s.AdjustedMeanPumps),
			FormatStat(OptFloat(s.BurstRate)),
			FormatStat(OptFloat(s.MeanEarnings)),
			FormatStat(OptFloat(s.TotalEarnings)),
			formatCost(s.CostUSD),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFiles writes trials.csv and summary.csv into runDir.
func WriteCSVFiles(runDir string, records []TrialRecord, summaries []Summary) error {
	if err := writeFile(filepath.Join(runDir, TrialsCSV), func(w io.Writer) error {
		return WriteTrialsCSV(w, records)
	}); err != nil {
		return fmt.Errorf("writing %s: %w", TrialsCSV, err)
	}
	if err := writeFile(filepath.Join(runDir, SummaryCSV), func(w io.Writer) error {
		return WriteSummaryCSV(w, summaries)
	}); err != nil {
		return fmt.Errorf("writing %s: %w", SummaryCSV, err)
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FormatStat renders a statistic with two decimals, "n/a" when undefined.
func FormatStat(v OptFloat) string {
	if !v.Valid() {
		return "n/a"
	}
	return strconv.FormatFloat(float64(v), 'f', 2, 64)
}

func FormatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatCost(v OptFloat) string {
	if !v.Valid() {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', 4, 64)
}
