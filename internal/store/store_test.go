package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/bart/internal/result"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query tables: %v", err)
	}
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table name: %v", err)
		}
		tables[name] = true
	}
	for _, want := range []string{"runs", "trials", "summaries"} {
		if !tables[want] {
			t.Errorf("missing table %q", want)
		}
	}
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		db, err := NewDB(path)
		if err != nil {
			t.Fatalf("NewDB #%d: %v", i+1, err)
		}
		db.Close()
	}
}

func TestRunRepo_SaveAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &RunRepo{}

	started := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	meta := &result.RunMeta{
		ID:            "run_0a1b2c3d",
		Status:        result.StatusRunning,
		StartedAt:     started,
		Seed:          42,
		Models:        []string{"openai/gpt-4o", "anthropic/claude-3.5-sonnet"},
		Thresholds:    []int{4, 9, 2},
		MinPumps:      1,
		MaxPumps:      10,
		RewardPerPump: 0.10,
		NumBalloons:   3,
	}
	if err := repo.Save(ctx, db, meta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	meta.Status = result.StatusCompleted
	meta.FinishedAt = started.Add(time.Minute)
	if err := repo.Save(ctx, db, meta); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := repo.Get(ctx, db, meta.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != result.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, result.StatusCompleted)
	}
	if !got.StartedAt.Equal(started) || !got.FinishedAt.Equal(meta.FinishedAt) {
		t.Errorf("times = %v / %v", got.StartedAt, got.FinishedAt)
	}
	if len(got.Models) != 2 || got.Thresholds[1] != 9 {
		t.Errorf("models/thresholds = %v / %v", got.Models, got.Thresholds)
	}
	if got.RewardPerPump != 0.10 || got.Seed != 42 {
		t.Errorf("params = %+v", got)
	}
}

func TestRunRepo_GetNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := (&RunRepo{}).Get(context.Background(), db, "run_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunRepo_ListNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &RunRepo{}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run_a", "run_b", "run_c"} {
		if err := repo.Save(ctx, db, &result.RunMeta{ID: id, Status: result.StatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	runs, err := repo.List(ctx, db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run_c" || runs[2].ID != "run_a" {
		t.Errorf("order = %v", runs)
	}
}

func TestTrialRepo_RecordAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &TrialRepo{}

	records := []result.TrialRecord{
		{Model: "b", BalloonID: 2, Threshold: 3, PumpsAttempted: 4, Burst: true, Outcome: result.OutcomeBurst,
			Decisions: []string{"Pump", "Pump", "Pump", "Pump"}, Responses: []string{"Pump", "Pump", "Pump", "Pump"}},
		{Model: "a", BalloonID: 1, Threshold: 5, PumpsAttempted: 2, Earnings: 0.2, Outcome: result.OutcomeCashedOut,
			Decisions: []string{"Pump", "Pump", "CashOut"}, Responses: []string{"Pump", "pump", "Cash Out"}, Turns: 3, InputTokens: 90, DurationMS: 1200},
		{Model: "b", BalloonID: 1, Threshold: 5, Outcome: result.OutcomeAborted, Error: "fatal API error [401]: no key",
			Decisions: []string{}, Responses: []string{}},
	}
	for i := range records {
		if err := repo.Record(ctx, db, "run_1", &records[i]); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := repo.Record(ctx, db, "run_2", &records[0]); err != nil {
		t.Fatalf("Record other run: %v", err)
	}

	got, err := repo.ListByRun(ctx, db, "run_1")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d trials, want 3", len(got))
	}
	if got[0].Model != "a" || got[1].BalloonID != 1 || got[2].BalloonID != 2 {
		t.Errorf("order: %+v", got)
	}
	if !got[2].Burst || got[2].Outcome != result.OutcomeBurst {
		t.Errorf("burst trial: %+v", got[2])
	}
	if got[0].Responses[1] != "pump" || got[0].DurationMS != 1200 || got[0].Earnings != 0.2 {
		t.Errorf("cash-out trial: %+v", got[0])
	}
	if got[1].Error == "" {
		t.Errorf("aborted trial lost its error marker")
	}
}

func TestTrialRepo_RecordReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &TrialRepo{}
	rec := result.TrialRecord{Model: "m", BalloonID: 1, Threshold: 3, Outcome: result.OutcomeAborted, Error: "boom"}
	if err := repo.Record(ctx, db, "run_1", &rec); err != nil {
		t.Fatal(err)
	}
	rec.Outcome, rec.Error, rec.PumpsAttempted = result.OutcomeCashedOut, "", 2
	if err := repo.Record(ctx, db, "run_1", &rec); err != nil {
		t.Fatal(err)
	}
	got, err := repo.ListByRun(ctx, db, "run_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Outcome != result.OutcomeCashedOut {
		t.Errorf("got %+v", got)
	}
}

func TestSummaryRepo_ReplaceAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SummaryRepo{}
	nan := result.OptFloat(math.NaN())

	first := []result.Summary{{Model: "stale", Trials: 1}}
	if err := repo.Replace(ctx, db, "run_1", first); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	sums := []result.Summary{
		{Model: "z/model", Trials: 3, MeanPumps: 5, AdjustedMeanPumps: nan, BurstRate: 1, MeanPumpsBurst: 5, MeanPumpsCashOut: nan, CostUSD: nan},
		{Model: "a/model", Trials: 3, MeanPumps: 2, AdjustedMeanPumps: 2, MeanPumpsBurst: nan, MeanPumpsCashOut: 2, CostUSD: 0.25},
		{Model: result.AllModels, Trials: 6, MeanPumps: 3.5, AdjustedMeanPumps: 2, MeanPumpsBurst: 5, MeanPumpsCashOut: 2, CostUSD: 0.25},
	}
	if err := repo.Replace(ctx, db, "run_1", sums); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := repo.ListByRun(ctx, db, "run_1")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d summaries, want 3", len(got))
	}
	if got[0].Model != "z/model" || got[2].Model != result.AllModels {
		t.Errorf("stored order not preserved: %v, %v", got[0].Model, got[2].Model)
	}
	if got[0].AdjustedMeanPumps.Valid() || got[0].CostUSD.Valid() {
		t.Errorf("NULL should read back as undefined: %+v", got[0])
	}
	if float64(got[1].CostUSD) != 0.25 || float64(got[1].AdjustedMeanPumps) != 2 {
		t.Errorf("values: %+v", got[1])
	}
}
