package checkpoint

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Manager owns one checkpoint file. All mutations funnel through a single
// writer goroutine so concurrent unit completions from pool workers can
// never interleave partial writes. Persisting is best-effort: a write
// failure is logged and swallowed, never surfaced to the run.
type Manager struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	cp *Checkpoint

	writeCh chan chan struct{}
	done    chan struct{}
	closed  bool
	once    sync.Once
}

// Load reads the checkpoint for outputDir, validates it against the current
// spec inputs, and returns a ready Manager. resumed is true only when a
// valid checkpoint with matching spec hashes was found; any drift in
// content or in the set of tracked paths resets every unit to pending.
func Load(outputDir string, specFiles []string, units []string, logger *slog.Logger) (m *Manager, resumed bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	hashes, err := HashFiles(specFiles)
	if err != nil {
		return nil, false, err
	}

	path := Path(outputDir)
	cp := read(path)

	switch {
	case cp == nil:
		logger.Debug("no usable checkpoint, starting fresh", "path", path)
		cp = fresh(outputDir, hashes, units)
	case !cp.matches(hashes):
		logger.Info("spec inputs drifted since last checkpoint, resetting all units")
		cp = fresh(outputDir, hashes, units)
	default:
		resumed = true
		// New units since the last session start pending.
		for _, u := range units {
			if _, ok := cp.Modules[u]; !ok {
				cp.Modules[u] = &UnitState{Status: StatusPending}
			}
		}
	}

	m = &Manager{
		path:    path,
		logger:  logger,
		cp:      cp,
		writeCh: make(chan chan struct{}, 64),
		done:    make(chan struct{}),
	}
	go m.writer()
	return m, resumed, nil
}

// writer is the single goroutine allowed to touch the checkpoint file.
func (m *Manager) writer() {
	defer close(m.done)
	for ack := range m.writeCh {
		m.persist()
		if ack != nil {
			close(ack)
		}
	}
}

func (m *Manager) persist() {
	m.mu.Lock()
	m.cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(m.cp, "", "  ")
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("checkpoint encode failed", "error", err)
		return
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		m.logger.Warn("checkpoint write failed", "error", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.logger.Warn("checkpoint rename failed", "error", err)
	}
}

// enqueue schedules a persist. When the queue is full the write collapses
// into whichever queued write runs next; the in-memory state is already
// updated, so nothing is lost.
func (m *Manager) enqueue() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	select {
	case m.writeCh <- nil:
	default:
	}
}

// MarkDone records a unit as completed along with the files it produced.
func (m *Manager) MarkDone(unit string, filesWritten []string) {
	now := time.Now()
	m.mu.Lock()
	m.cp.Modules[unit] = &UnitState{
		Status:       StatusDone,
		CompletedAt:  &now,
		FilesWritten: filesWritten,
	}
	m.mu.Unlock()
	m.enqueue()
}

// MarkFailed records a unit failure. The unit stays eligible for the next
// invocation.
func (m *Manager) MarkFailed(unit string, errMsg string) {
	m.mu.Lock()
	m.cp.Modules[unit] = &UnitState{Status: StatusFailed, Error: errMsg}
	m.mu.Unlock()
	m.enqueue()
}

// State returns a copy of one unit's record.
func (m *Manager) State(unit string) UnitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.cp.Modules[unit]; ok {
		return *st
	}
	return UnitState{Status: StatusPending}
}

// Pending lists units not yet done, preserving the order given.
func (m *Manager) Pending(units []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, u := range units {
		st, ok := m.cp.Modules[u]
		if !ok || st.Status != StatusDone {
			out = append(out, u)
		}
	}
	return out
}

// Snapshot returns a deep copy of the checkpoint for reporting.
func (m *Manager) Snapshot() Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.cp
	cp.Modules = make(map[string]*UnitState, len(m.cp.Modules))
	for name, st := range m.cp.Modules {
		c := *st
		cp.Modules[name] = &c
	}
	return cp
}

// Flush blocks until every queued write has hit disk. It must run before
// process exit to guarantee durability of the last mutation.
func (m *Manager) Flush() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	ack := make(chan struct{})
	m.writeCh <- ack
	<-ack
}

// Close flushes and stops the writer. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.Flush()
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.writeCh)
	})
	<-m.done
}
