package schedule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestJobConfig_Validate(t *testing.T) {
	cfg := JobConfig{
		Name:        "nightly",
		Cron:        "0 22 * * *",
		Command:     CommandUpdate,
		MaxDuration: 2 * time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	cfg.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	cfg.Name = "nightly"
	cfg.Command = "deploy"
	if err := cfg.Validate(); err == nil {
		t.Error("Unknown command should error")
	}
}

func TestJobConfig_ValidateDefaults(t *testing.T) {
	cfg := JobConfig{Name: "nightly", Cron: "0 22 * * *"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Command != CommandUpdate {
		t.Errorf("Command = %q, want default %q", cfg.Command, CommandUpdate)
	}
	if cfg.MaxDuration != 2*time.Hour {
		t.Errorf("MaxDuration = %v, want 2h default", cfg.MaxDuration)
	}
}

func TestLoadScheduleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	content := `
[[job]]
name = "nightly"
cron = "0 22 * * *"
command = "update"
notify_on_complete = true

[[job]]
name = "weekly-full"
cron = "0 4 * * 0"
command = "generate"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("Jobs = %d, want 2", len(cfg.Jobs))
	}
	if cfg.Jobs[0].Name != "nightly" || !cfg.Jobs[0].NotifyOnComplete {
		t.Errorf("Jobs[0] = %+v", cfg.Jobs[0])
	}
	if cfg.Jobs[1].Command != CommandGenerate {
		t.Errorf("Jobs[1].Command = %q", cfg.Jobs[1].Command)
	}
}

func TestLoadScheduleConfig_MissingFile(t *testing.T) {
	cfg, err := LoadScheduleConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Jobs) != 0 {
		t.Errorf("Jobs = %d, want 0", len(cfg.Jobs))
	}
}

func TestScheduler_NextRun(t *testing.T) {
	cfg := JobConfig{
		Name:    "test",
		Cron:    "0 22 * * *", // 10 PM daily
		Command: CommandUpdate,
	}

	sched, err := NewScheduler([]JobConfig{cfg}, nil)
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}

	// Should be in the future
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}
}

func TestScheduler_JobsSortedByName(t *testing.T) {
	sched, err := NewScheduler([]JobConfig{
		{Name: "weekly", Cron: "0 4 * * 0"},
		{Name: "nightly", Cron: "0 22 * * *"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	jobs := sched.Jobs()
	if len(jobs) != 2 || jobs[0].Name != "nightly" || jobs[1].Name != "weekly" {
		t.Errorf("Jobs() = %+v, want sorted by name", jobs)
	}
}

func TestScheduler_RejectsDuplicateNames(t *testing.T) {
	_, err := NewScheduler([]JobConfig{
		{Name: "nightly", Cron: "0 22 * * *"},
		{Name: "nightly", Cron: "0 4 * * *"},
	}, nil)
	if err == nil {
		t.Error("duplicate job names should error")
	}
}

func TestScheduler_LaunchSkipsOverlap(t *testing.T) {
	sched, err := NewScheduler([]JobConfig{{Name: "tick", Cron: "* * * * *"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	job := sched.Jobs()[0]

	block := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.launch(context.Background(), job, func(ctx context.Context, j JobConfig) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	// A second tick while the first run is in flight must not execute.
	sched.launch(context.Background(), job, func(ctx context.Context, j JobConfig) error {
		t.Error("overlapping run executed")
		return nil
	})

	close(block)
	<-done
}

func TestScheduler_LaunchAppliesDeadline(t *testing.T) {
	cfg := JobConfig{Name: "quick", Cron: "* * * * *", MaxDuration: time.Hour}
	sched, err := NewScheduler([]JobConfig{cfg}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ran := false
	sched.launch(context.Background(), sched.Jobs()[0], func(ctx context.Context, j JobConfig) error {
		ran = true
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("job context has no deadline")
		} else if until := time.Until(deadline); until > time.Hour || until < 50*time.Minute {
			t.Errorf("deadline %v away, want about 1h", until)
		}
		return nil
	})
	if !ran {
		t.Fatal("job did not run")
	}
}
