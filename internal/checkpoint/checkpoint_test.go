package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeSpecs(t *testing.T, dir string, contents map[string]string) []string {
	t.Helper()
	var paths []string
	for name, body := range contents {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestLoad_FreshWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha"})

	m, resumed, err := Load(dir, specs, []string{"core", "api"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if resumed {
		t.Error("resumed = true with no checkpoint on disk")
	}
	if got := m.State("core").Status; got != StatusPending {
		t.Errorf("core status = %s, want pending", got)
	}
}

func TestLoad_RoundTripResume(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha", "b.md": "beta"})
	units := []string{"core", "api"}

	m, _, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.MarkDone("core", []string{"core.go"})
	m.MarkDone("api", []string{"api.go"})
	m.Close()

	m2, resumed, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	if !resumed {
		t.Fatal("resumed = false with unchanged spec inputs")
	}
	if pending := m2.Pending(units); len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
	if files := m2.State("core").FilesWritten; len(files) != 1 || files[0] != "core.go" {
		t.Errorf("FilesWritten = %v, want [core.go]", files)
	}
}

func TestLoad_DriftResetsEverything(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha", "b.md": "beta"})
	units := []string{"core", "api"}

	m, _, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.MarkDone("core", nil)
	m.MarkDone("api", nil)
	m.Close()

	// Mutate one byte of one tracked spec file.
	var mutated string
	for _, p := range specs {
		if filepath.Base(p) == "a.md" {
			mutated = p
		}
	}
	if err := os.WriteFile(mutated, []byte("alphX"), 0644); err != nil {
		t.Fatal(err)
	}

	m2, resumed, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	if resumed {
		t.Fatal("resumed = true after drift")
	}
	// Every unit resets, not just the one near the changed file.
	if pending := m2.Pending(units); len(pending) != 2 {
		t.Errorf("pending = %v, want both units", pending)
	}
}

func TestLoad_TrackedPathSetChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha"})
	units := []string{"core"}

	m, _, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.MarkDone("core", nil)
	m.Close()

	extra := writeSpecs(t, dir, map[string]string{"c.md": "gamma"})
	_, resumed, err := Load(dir, append(specs, extra...), units, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resumed {
		t.Error("resumed = true after the tracked path set changed")
	}
}

func TestLoad_CorruptCheckpointStartsFresh(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha"})
	if err := os.WriteFile(Path(dir), []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	m, resumed, err := Load(dir, specs, []string{"core"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if resumed {
		t.Error("resumed = true from corrupt checkpoint")
	}
}

func TestFailedUnitEligibleAgain(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha"})
	units := []string{"a", "b", "c"}

	m, _, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.MarkDone("a", nil)
	m.MarkDone("b", nil)
	m.MarkFailed("c", "rate limit exhausted")
	m.Close()

	m2, resumed, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	if !resumed {
		t.Fatal("resumed = false")
	}
	pending := m2.Pending(units)
	if len(pending) != 1 || pending[0] != "c" {
		t.Errorf("pending = %v, want [c]", pending)
	}
	if m2.State("c").Error == "" {
		t.Error("failed unit lost its error message")
	}
}

func TestConcurrentMarksDoNotCorrupt(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha"})

	var units []string
	for i := 0; i < 50; i++ {
		units = append(units, fmt.Sprintf("u%02d", i))
	}

	m, _, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			m.MarkDone(u, []string{u + ".go"})
		}(u)
	}
	wg.Wait()
	m.Close()

	m2, resumed, err := Load(dir, specs, units, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()

	if !resumed {
		t.Fatal("resumed = false after concurrent completion")
	}
	if pending := m2.Pending(units); len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	specs := writeSpecs(t, dir, map[string]string{"a.md": "alpha"})

	m, _, err := Load(dir, specs, []string{"core"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Close()

	if err := Remove(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(Path(dir)); !os.IsNotExist(err) {
		t.Error("checkpoint file still exists after Remove")
	}
	// Removing again is not an error.
	if err := Remove(dir); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
}
