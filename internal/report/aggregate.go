package report

import (
	"math"
	"sort"

	"github.com/signalnine/bart/internal/pricing"
	"github.com/signalnine/bart/internal/result"
)

// Summarize reduces trial records to one summary per model, sorted by name,
// followed by a combined ALL row. Aborted trials are counted but excluded
// from every behavioral statistic. The input is not modified.
func Summarize(records []result.TrialRecord) []result.Summary {
	byModel := map[string][]result.TrialRecord{}
	for _, r := range records {
		byModel[r.Model] = append(byModel[r.Model], r)
	}
	names := make([]string, 0, len(byModel))
	for name := range byModel {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]result.Summary, 0, len(names)+1)
	for _, name := range names {
		summaries = append(summaries, summarize(name, byModel[name]))
	}
	summaries = append(summaries, summarize(result.AllModels, records))
	return summaries
}

func summarize(name string, records []result.TrialRecord) result.Summary {
	s := result.Summary{
		Model:             name,
		AdjustedMeanPumps: result.NaN(),
		MeanPumpsBurst:    result.NaN(),
		MeanPumpsCashOut:  result.NaN(),
		CostUSD:           result.NaN(),
	}

	var pumps []float64
	var burstPumps, safePumps float64
	var bursts, safe int
	for _, r := range records {
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		if r.Aborted() {
			s.Aborted++
			continue
		}
		p := r.PumpsAttempted
		pumps = append(pumps, float64(p))
		if s.Trials == 0 || p < s.MinPumps {
			s.MinPumps = p
		}
		if p > s.MaxPumps {
			s.MaxPumps = p
		}
		s.Trials++
		s.TotalEarnings += r.Earnings
		if r.Burst {
			bursts++
			burstPumps += float64(p)
		} else {
			safe++
			safePumps += float64(p)
		}
	}
	if s.Trials == 0 {
		return s
	}

	n := float64(s.Trials)
	s.MeanPumps = sum(pumps) / n
	s.BurstRate = float64(bursts) / n
	s.MeanEarnings = s.TotalEarnings / n
	s.StdDevPumps = stddev(pumps, s.MeanPumps)
	if safe > 0 {
		s.AdjustedMeanPumps = result.OptFloat(safePumps / float64(safe))
		s.MeanPumpsCashOut = s.AdjustedMeanPumps
	}
	if bursts > 0 {
		s.MeanPumpsBurst = result.OptFloat(burstPumps / float64(bursts))
	}
	return s
}

// Trend aggregates each balloon index across models.
func Trend(records []result.TrialRecord) []result.BalloonTrend {
	type accum struct {
		threshold int
		agents    int
		pumps     float64
		bursts    int
		earnings  float64
	}
	byBalloon := map[int]*accum{}
	for _, r := range records {
		if r.Aborted() {
			continue
		}
		a, ok := byBalloon[r.BalloonID]
		if !ok {
			a = &accum{threshold: r.Threshold}
			byBalloon[r.BalloonID] = a
		}
		a.agents++
		a.pumps += float64(r.PumpsAttempted)
		a.earnings += r.Earnings
		if r.Burst {
			a.bursts++
		}
	}

	trend := make([]result.BalloonTrend, 0, len(byBalloon))
	for id, a := range byBalloon {
		n := float64(a.agents)
		trend = append(trend, result.BalloonTrend{
			BalloonID:    id,
			Threshold:    a.threshold,
			Agents:       a.agents,
			MeanPumps:    a.pumps / n,
			BurstRate:    float64(a.bursts) / n,
			MeanEarnings: a.earnings / n,
		})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].BalloonID < trend[j].BalloonID })
	return trend
}

// EnrichCosts fills CostUSD from each row's token totals. Unpriced models
// stay undefined; the ALL row sums whatever could be priced.
func EnrichCosts(summaries []result.Summary, table *pricing.Table) {
	if table == nil {
		return
	}
	var total float64
	var priced bool
	allIdx := -1
	for i := range summaries {
		s := &summaries[i]
		if s.Model == result.AllModels {
			allIdx = i
			continue
		}
		cost, ok := table.CostForModel(s.Model, s.InputTokens, s.OutputTokens)
		if !ok {
			continue
		}
		s.CostUSD = result.OptFloat(cost)
		total += cost
		priced = true
	}
	if allIdx >= 0 && priced {
		summaries[allIdx].CostUSD = result.OptFloat(total)
	}
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

// stddev is the sample standard deviation; zero below two observations.
func stddev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
