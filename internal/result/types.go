package result

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a trial ended.
type Outcome string

const (
	OutcomeCashedOut Outcome = "cashed_out"
	OutcomeBurst     Outcome = "burst"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeAborted   Outcome = "aborted"
)

// AllModels labels the combined summary row.
const AllModels = "ALL"

type TrialRecord struct {
	Model          string   `json:"model"`
	BalloonID      int      `json:"balloon_id"`
	Threshold      int      `json:"threshold"`
	PumpsAttempted int      `json:"pumps_attempted"`
	Burst          bool     `json:"burst"`
	Earnings       float64  `json:"earnings"`
	Decisions      []string `json:"decisions"`
	Responses      []string `json:"responses"`
	Outcome        Outcome  `json:"outcome"`
	Error          string   `json:"error,omitempty"`
	Turns          int      `json:"turns"`
	InputTokens    int      `json:"input_tokens"`
	OutputTokens   int      `json:"output_tokens"`
	DurationMS     int64    `json:"duration_ms"`
}

// Aborted reports whether the trial ended on a client failure. Aborted
// trials are excluded from behavioral statistics.
func (r *TrialRecord) Aborted() bool {
	return r.Outcome == OutcomeAborted
}

// OptFloat is a statistic that may be undefined. NaN encodes as JSON null.
type OptFloat float64

// NaN is the undefined OptFloat.
func NaN() OptFloat { return OptFloat(math.NaN()) }

func (f OptFloat) Valid() bool { return !math.IsNaN(float64(f)) }

func (f OptFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *OptFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = NaN()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = OptFloat(v)
	return nil
}

type Summary struct {
	Model             string   `json:"model"`
	Trials            int      `json:"trials"`
	Aborted           int      `json:"aborted"`
	MeanPumps         float64  `json:"mean_pumps"`
	AdjustedMeanPumps OptFloat `json:"adjusted_mean_pumps"`
	BurstRate         float64  `json:"burst_rate"`
	MeanEarnings      float64  `json:"mean_earnings"`
	TotalEarnings     float64  `json:"total_earnings"`
	MinPumps          int      `json:"min_pumps"`
	MaxPumps          int      `json:"max_pumps"`
	StdDevPumps       float64  `json:"stddev_pumps"`
	MeanPumpsBurst    OptFloat `json:"mean_pumps_burst"`
	MeanPumpsCashOut  OptFloat `json:"mean_pumps_cashout"`
	InputTokens       int      `json:"input_tokens"`
	OutputTokens      int      `json:"output_tokens"`
	CostUSD           OptFloat `json:"cost_usd"`
}

// BalloonTrend aggregates one balloon index across agents.
type BalloonTrend struct {
	BalloonID    int     `json:"balloon_id"`
	Threshold    int     `json:"threshold"`
	Agents       int     `json:"agents"`
	MeanPumps    float64 `json:"mean_pumps"`
	BurstRate    float64 `json:"burst_rate"`
	MeanEarnings float64 `json:"mean_earnings"`
}

// RunStatus values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// NewRunID returns an id of the form "run_" plus eight hex digits.
func NewRunID() string {
	return "run_" + uuid.New().String()[:8]
}

type RunMeta struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Seed          int64     `json:"seed"`
	Models        []string  `json:"models"`
	Thresholds    []int     `json:"thresholds"`
	MinPumps      int       `json:"min_pumps"`
	MaxPumps      int       `json:"max_pumps"`
	RewardPerPump float64   `json:"reward_per_pump"`
	NumBalloons   int       `json:"num_balloons"`
	Dir           string    `json:"dir,omitempty"`
	Error         string    `json:"error,omitempty"`
}
