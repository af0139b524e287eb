package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	runMetaFile = "run.json"
	trialFile   = "trial.json"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir, err := filepath.Abs(filepath.Join(runsDir, stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	// Two runs started within the same second get distinct dirs.
	for i := 2; ; i++ {
		if _, err := os.Stat(runDir); errors.Is(err, fs.ErrNotExist) {
			break
		}
		runDir = filepath.Join(filepath.Dir(runDir), fmt.Sprintf("%s-%d", stamp, i))
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// ModelSlug turns a model id like "openai/gpt-4o" into a single path element.
// Distinct ids always map to distinct slugs.
func ModelSlug(model string) string {
	slug := url.PathEscape(model)
	if slug == "." || slug == ".." {
		slug = strings.ReplaceAll(slug, ".", "%2E")
	}
	return slug
}

func TrialDir(runDir, model string, balloon int) string {
	return filepath.Join(runDir, "trials", ModelSlug(model), fmt.Sprintf("balloon-%d", balloon))
}

func WriteTrialRecord(trialDir string, rec *TrialRecord) error {
	if err := os.MkdirAll(trialDir, 0o755); err != nil {
		return fmt.Errorf("creating trial dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trial record: %w", err)
	}
	return os.WriteFile(filepath.Join(trialDir, trialFile), data, 0o644)
}

func ReadTrialRecord(path string) (*TrialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trial record: %w", err)
	}
	var rec TrialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing trial record %s: %w", path, err)
	}
	return &rec, nil
}

// ReadTrialRecords loads every trial record under runDir, ordered by model
// then balloon index.
func ReadTrialRecords(runDir string) ([]TrialRecord, error) {
	paths, err := filepath.Glob(filepath.Join(runDir, "trials", "*", "*", trialFile))
	if err != nil {
		return nil, fmt.Errorf("globbing trial records: %w", err)
	}
	records := make([]TrialRecord, 0, len(paths))
	for _, p := range paths {
		rec, err := ReadTrialRecord(p)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	SortRecords(records)
	return records, nil
}

// SortRecords orders records by model then balloon index.
func SortRecords(records []TrialRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Model != records[j].Model {
			return records[i].Model < records[j].Model
		}
		return records[i].BalloonID < records[j].BalloonID
	})
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, runMetaFile), data, 0o644)
}

func ReadRunMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, runMetaFile))
	if err != nil {
		return nil, fmt.Errorf("reading run meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing run meta: %w", err)
	}
	return &meta, nil
}
