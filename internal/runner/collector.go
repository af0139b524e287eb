package runner

import (
	"sort"
	"sync"

	"github.com/signalnine/bart/internal/result"
)

// Collector gathers trial records from concurrent agents.
type Collector struct {
	mu       sync.Mutex
	records  []result.TrialRecord
	onRecord func(result.TrialRecord)
}

// NewCollector returns a collector. onRecord, if set, sees every record as it
// is added; calls are serialized.
func NewCollector(onRecord func(result.TrialRecord)) *Collector {
	return &Collector{onRecord: onRecord}
}

func (c *Collector) Add(rec result.TrialRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	if c.onRecord != nil {
		c.onRecord(rec)
	}
}

// Records returns a copy ordered by the position of each model in models,
// then balloon index. Models not listed sort last by name.
func (c *Collector) Records(models []string) []result.TrialRecord {
	c.mu.Lock()
	out := append([]result.TrialRecord(nil), c.records...)
	c.mu.Unlock()

	rank := make(map[string]int, len(models))
	for i, m := range models {
		if _, ok := rank[m]; !ok {
			rank[m] = i
		}
	}
	pos := func(m string) int {
		if r, ok := rank[m]; ok {
			return r
		}
		return len(models)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := pos(out[i].Model), pos(out[j].Model)
		if pi != pj {
			return pi < pj
		}
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].BalloonID < out[j].BalloonID
	})
	return out
}
