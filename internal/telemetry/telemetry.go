// Package telemetry accumulates one record per provider call and persists a
// run log with an aggregate summary once per invocation.
package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// promptSnippetLen bounds how much prompt/response text lands in the run log.
const promptSnippetLen = 2000

// Entry records one provider call.
type Entry struct {
	Timestamp        time.Time     `json:"timestamp"`
	Prompt           string        `json:"prompt"`
	Response         string        `json:"response"`
	Model            string        `json:"model"`
	Backend          string        `json:"backend"`
	TokensIn         int           `json:"tokens_in"`
	TokensOut        int           `json:"tokens_out"`
	TokensCacheRead  int           `json:"tokens_cache_read"`
	TokensCacheWrite int           `json:"tokens_cache_write"`
	CostUSD          float64       `json:"cost_usd"`
	Latency          time.Duration `json:"latency_ns"`
	ExitCode         int           `json:"exit_code"`
	Error            string        `json:"error,omitempty"`
	Retries          int           `json:"retries"`
}

// Summary aggregates a whole run.
type Summary struct {
	Calls            int           `json:"calls"`
	Failures         int           `json:"failures"`
	TokensIn         int           `json:"tokens_in"`
	TokensOut        int           `json:"tokens_out"`
	TokensCacheRead  int           `json:"tokens_cache_read"`
	TokensCacheWrite int           `json:"tokens_cache_write"`
	CostUSD          float64       `json:"cost_usd"`
	Duration         time.Duration `json:"duration_ns"`
}

// RunLog is the persisted form of one invocation.
type RunLog struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Entries   []Entry   `json:"entries"`
	Summary   Summary   `json:"summary"`
}

// Recorder accumulates entries in memory for one run. Safe for use from
// concurrent pool workers.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	start   time.Time
	entries []Entry
	final   bool
}

// NewRecorder starts a fresh run.
func NewRecorder() *Recorder {
	return &Recorder{
		runID: uuid.New().String(),
		start: time.Now(),
	}
}

// RunID returns the run identifier.
func (r *Recorder) RunID() string { return r.runID }

// StartTime returns when the run began.
func (r *Recorder) StartTime() time.Time { return r.start }

// Record appends one call entry. Prompt and response text are truncated so
// the run log stays readable.
func (r *Recorder) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Prompt = snippet(e.Prompt)
	e.Response = snippet(e.Response)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.final {
		return
	}
	r.entries = append(r.entries, e)
}

// Summary computes the aggregate over everything recorded so far.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

func (r *Recorder) summaryLocked() Summary {
	s := Summary{Duration: time.Since(r.start)}
	for _, e := range r.entries {
		s.Calls++
		if e.Error != "" {
			s.Failures++
		}
		s.TokensIn += e.TokensIn
		s.TokensOut += e.TokensOut
		s.TokensCacheRead += e.TokensCacheRead
		s.TokensCacheWrite += e.TokensCacheWrite
		s.CostUSD += e.CostUSD
	}
	return s
}

// Finalize seals the recorder and returns the completed run log. Recording
// after Finalize is a no-op.
func (r *Recorder) Finalize() *RunLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = true
	return &RunLog{
		RunID:     r.runID,
		StartTime: r.start,
		EndTime:   time.Now(),
		Entries:   r.entries,
		Summary:   r.summaryLocked(),
	}
}

func snippet(s string) string {
	if len(s) <= promptSnippetLen {
		return s
	}
	return s[:promptSnippetLen] + "..."
}
