package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/bart/internal/result"
)

type Config struct {
	Experiment  Experiment  `yaml:"experiment"`
	Models      []string    `yaml:"models"`
	DebugMode   bool        `yaml:"debug_mode"`
	Concurrency Concurrency `yaml:"concurrency"`
	API         API         `yaml:"api"`
	Secrets     Secrets     `yaml:"secrets"`
	Pricing     Pricing     `yaml:"pricing"`
	Results     Results     `yaml:"results"`
}

// Experiment holds the balloon game parameters shared by every agent.
type Experiment struct {
	MinPumps      int     `yaml:"min_pumps"`
	MaxPumps      int     `yaml:"max_pumps"`
	RewardPerPump float64 `yaml:"reward_per_pump"`
	NumBalloons   int     `yaml:"num_balloons"`
	Seed          int64   `yaml:"seed"`
}

type Concurrency struct {
	Parallel      int    `yaml:"parallel"`
	FailurePolicy string `yaml:"failure_policy"`
	TrialRetries  int    `yaml:"trial_retries"`
}

type API struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BaseDelayMS       int     `yaml:"base_delay_ms"`
	MaxDelayMS        int     `yaml:"max_delay_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Referer           string  `yaml:"referer"`
	Title             string  `yaml:"title"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Pricing struct {
	File string `yaml:"file"`
}

type Results struct {
	Dir      string `yaml:"dir"`
	Database string `yaml:"database"`
}

// Failure policies applied when a trial aborts.
const (
	PolicyAbort = "abort"
	PolicySkip  = "skip"
	PolicyRetry = "retry"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	e := &cfg.Experiment
	if e.MinPumps == 0 {
		e.MinPumps = 1
	}
	if e.MaxPumps == 0 {
		e.MaxPumps = 20
	}
	if e.RewardPerPump == 0 {
		e.RewardPerPump = 0.10
	}
	if e.NumBalloons == 0 {
		e.NumBalloons = 5
	}

	c := &cfg.Concurrency
	if c.Parallel == 0 {
		c.Parallel = 1
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = PolicyAbort
	}
	if c.FailurePolicy == PolicyRetry && c.TrialRetries == 0 {
		c.TrialRetries = 1
	}

	a := &cfg.API
	if a.BaseURL == "" {
		a.BaseURL = DefaultBaseURL
	}
	if a.TimeoutSeconds == 0 {
		a.TimeoutSeconds = 60
	}
	if a.MaxAttempts == 0 {
		a.MaxAttempts = 5
	}
	if a.BaseDelayMS == 0 {
		a.BaseDelayMS = 1000
	}
	if a.MaxDelayMS == 0 {
		a.MaxDelayMS = 30000
	}
	if a.Referer == "" {
		a.Referer = "https://github.com/signalnine/bart"
	}
	if a.Title == "" {
		a.Title = "BART LLM Experiment"
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Results.Database == "" {
		cfg.Results.Database = filepath.Join(cfg.Results.Dir, "bart.db")
	}
}

// Validate checks the experiment contract. It is exported so callers that
// build or override a Config in code (flags, the HTTP API) can re-check it.
func Validate(cfg *Config) error {
	e := cfg.Experiment
	if e.MinPumps < 1 {
		return fmt.Errorf("min_pumps must be at least 1")
	}
	if e.MaxPumps < e.MinPumps {
		return fmt.Errorf("max_pumps (%d) must be >= min_pumps (%d)", e.MaxPumps, e.MinPumps)
	}
	if e.RewardPerPump <= 0 {
		return fmt.Errorf("reward_per_pump must be positive")
	}
	if e.NumBalloons < 1 {
		return fmt.Errorf("num_balloons must be at least 1")
	}
	if len(cfg.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	seen := make(map[string]bool, len(cfg.Models))
	for i, m := range cfg.Models {
		if m == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if m == result.AllModels {
			return fmt.Errorf("model %d: %q is reserved for the combined summary", i, m)
		}
		if seen[m] {
			return fmt.Errorf("model %q listed twice", m)
		}
		seen[m] = true
	}
	c := cfg.Concurrency
	if c.Parallel < 1 {
		return fmt.Errorf("concurrency.parallel must be at least 1")
	}
	switch c.FailurePolicy {
	case PolicyAbort, PolicySkip, PolicyRetry:
	default:
		return fmt.Errorf("unknown failure_policy %q", c.FailurePolicy)
	}
	if c.TrialRetries < 0 {
		return fmt.Errorf("trial_retries must not be negative")
	}
	if cfg.API.MaxAttempts < 1 {
		return fmt.Errorf("api.max_attempts must be at least 1")
	}
	if cfg.API.RequestsPerSecond < 0 {
		return fmt.Errorf("api.requests_per_second must not be negative")
	}
	return nil
}

// APIKey resolves the key from config, then the environment, then the
// secrets map parsed from the env file.
func (c *Config) APIKey(secrets map[string]string) string {
	if c.API.APIKey != "" {
		return c.API.APIKey
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		return v
	}
	return secrets["OPENROUTER_API_KEY"]
}
