package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/signalnine/bart/internal/pricing"
	"github.com/signalnine/bart/internal/result"
)

// Formats accepted by Render and Generate.
var Formats = []string{"table", "text", "markdown", "json", "csv"}

// TrendFormats are accepted by RenderTrend; table and text are the same.
var TrendFormats = []string{"table", "text", "markdown", "json"}

// Generate reads trial records from a run directory and renders the summary.
func Generate(runDir, format string, w io.Writer, pricingPath ...string) error {
	records, err := result.ReadTrialRecords(runDir)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no trial records found in %s", runDir)
	}

	summaries := Summarize(records)
	if len(pricingPath) > 0 && pricingPath[0] != "" {
		table, err := pricing.Load(pricingPath[0])
		if err != nil {
			log.Printf("warning: %v", err)
		} else {
			EnrichCosts(summaries, table)
		}
	}
	return Render(summaries, format, w)
}

// GenerateTrend renders the per-balloon trend of a run directory.
func GenerateTrend(runDir, format string, w io.Writer) error {
	records, err := result.ReadTrialRecords(runDir)
	if err != nil {
		return err
	}
	return RenderTrend(Trend(records), format, w)
}

func Render(summaries []result.Summary, format string, w io.Writer) error {
	switch format {
	case "text":
		return writeText(summaries, w)
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	case "csv":
		return result.WriteSummaryCSV(w, summaries)
	case "table", "":
		return writeTable(summaries, w)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

var summaryHeaders = []string{"MODEL", "TRIALS", "ABORTED", "MEAN PUMPS", "ADJ PUMPS", "BURST RATE", "MEAN EARN", "TOTAL EARN", "COST"}

func summaryRow(s result.Summary) []string {
	return []string{
		s.Model,
		fmt.Sprintf("%d", s.Trials),
		fmt.Sprintf("%d", s.Aborted),
		fmt.Sprintf("%.2f", s.MeanPumps),
		result.FormatStat(s.AdjustedMeanPumps),
		fmt.Sprintf("%.0f%%", s.BurstRate*100),
		"$" + result.FormatMoney(s.MeanEarnings),
		"$" + result.FormatMoney(s.TotalEarnings),
		formatCost(s.CostUSD),
	}
}

func formatCost(v result.OptFloat) string {
	if !v.Valid() {
		return "n/a"
	}
	return fmt.Sprintf("$%.4f", float64(v))
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	allStyle    = cellStyle.Bold(true)
)

func writeTable(summaries []result.Summary, w io.Writer) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, summaryRow(s))
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(summaryHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(summaries) && summaries[row].Model == result.AllModels:
				return allStyle
			default:
				return cellStyle
			}
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func writeText(summaries []result.Summary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(summaryHeaders, "\t"))
	fmt.Fprintln(tw, strings.Repeat("-", 96))
	for _, s := range summaries {
		fmt.Fprintln(tw, strings.Join(summaryRow(s), "\t"))
	}
	return tw.Flush()
}

func writeMarkdown(summaries []result.Summary, w io.Writer) error {
	fmt.Fprintln(w, "| Model | Trials | Aborted | Mean Pumps | Adjusted Pumps | Burst Rate | Mean Earnings | Total Earnings | Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s |\n", strings.Join(summaryRow(s), " | "))
	}
	return nil
}

func writeJSON(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderTrend renders a per-balloon trend.
func RenderTrend(trend []result.BalloonTrend, format string, w io.Writer) error {
	switch format {
	case "json":
		return writeJSON(trend, w)
	case "markdown":
		fmt.Fprintln(w, "| Balloon | Threshold | Agents | Mean Pumps | Burst Rate | Mean Earnings |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|")
		for _, b := range trend {
			fmt.Fprintf(w, "| %d | %d | %d | %.2f | %.0f%% | $%.2f |\n",
				b.BalloonID, b.Threshold, b.Agents, b.MeanPumps, b.BurstRate*100, b.MeanEarnings)
		}
		return nil
	case "text", "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BALLOON\tTHRESHOLD\tAGENTS\tMEAN PUMPS\tBURST RATE\tMEAN EARN")
		for _, b := range trend {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\t%.0f%%\t$%.2f\n",
				b.BalloonID, b.Threshold, b.Agents, b.MeanPumps, b.BurstRate*100, b.MeanEarnings)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown trend format %q (want one of %s)", format, strings.Join(TrendFormats, ", "))
	}
}
