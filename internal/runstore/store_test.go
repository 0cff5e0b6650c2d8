package runstore

import (
	"testing"
	"time"
)

func TestStore_SaveAndFinishRun(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	run := &Run{
		ID:        "run-1",
		Command:   "generate",
		Backend:   "claude",
		Model:     "sonnet",
		StartedAt: time.Now(),
	}
	if err := store.SaveRun(run); err != nil {
		t.Fatal(err)
	}

	run.Status = StatusComplete
	run.FinishedAt = time.Now()
	run.Processed = 12
	run.Failed = 1
	run.TokensIn = 50000
	run.TokensOut = 8000
	run.CostUSD = 0.42
	if err := store.FinishRun(run); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRecentRuns(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}

	got := runs[0]
	if got.Status != StatusComplete {
		t.Errorf("Status = %q, want %q", got.Status, StatusComplete)
	}
	if got.Processed != 12 || got.Failed != 1 {
		t.Errorf("Processed/Failed = %d/%d, want 12/1", got.Processed, got.Failed)
	}
	if got.CostUSD != 0.42 {
		t.Errorf("CostUSD = %v, want 0.42", got.CostUSD)
	}
	if got.Backend != "claude" || got.Model != "sonnet" {
		t.Errorf("Backend/Model = %q/%q", got.Backend, got.Model)
	}
}

func TestStore_ListRecentRunsNewestFirst(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		run := &Run{ID: id, Command: "update", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.SaveRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRecentRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("order = [%s %s], want [new mid]", runs[0].ID, runs[1].ID)
	}
}

func TestStore_TaskResultsFailuresFirst(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveRun(&Run{ID: "run-1", Command: "generate", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	results := []*TaskResult{
		{RunID: "run-1", Task: "src/a.go", Status: "done", DurationMS: 900},
		{RunID: "run-1", Task: "src/b.go", Status: "failed", Error: "timeout"},
		{RunID: "run-1", Task: "src/c.go", Status: "done"},
	}
	for _, res := range results {
		if err := store.SaveTaskResult(res); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListTaskResults("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Task != "src/b.go" || got[0].Error != "timeout" {
		t.Errorf("first result = %+v, want the failed task", got[0])
	}
}
