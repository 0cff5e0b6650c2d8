// Package checkpoint persists rebuild progress across sessions. A
// checkpoint records per-unit status plus a content-hash fingerprint of
// every spec input; any drift in those inputs invalidates the checkpoint
// wholesale rather than per unit.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FileName is the checkpoint file kept in each rebuild output directory.
const FileName = ".scribe-checkpoint.json"

// Version guards the on-disk schema. A version mismatch means no resume.
const Version = 1

// UnitStatus is the lifecycle state of one rebuild unit. A failed unit is
// eligible again on the next invocation; failed is not terminal.
type UnitStatus string

const (
	StatusPending UnitStatus = "pending"
	StatusDone    UnitStatus = "done"
	StatusFailed  UnitStatus = "failed"
)

// UnitState is the persisted record for one unit.
type UnitState struct {
	Status       UnitStatus `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FilesWritten []string   `json:"files_written,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Checkpoint is the on-disk document.
type Checkpoint struct {
	Version    int                   `json:"version"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
	OutputDir  string                `json:"output_dir"`
	SpecHashes map[string]string     `json:"spec_hashes"`
	Modules    map[string]*UnitState `json:"modules"`
}

// HashFile fingerprints one spec input.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashFiles fingerprints every spec input, keyed by path.
func HashFiles(paths []string) (map[string]string, error) {
	hashes := make(map[string]string, len(paths))
	for _, p := range paths {
		h, err := HashFile(p)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", p, err)
		}
		hashes[p] = h
	}
	return hashes, nil
}

// fresh builds an all-pending checkpoint for the given units.
func fresh(outputDir string, specHashes map[string]string, units []string) *Checkpoint {
	now := time.Now()
	cp := &Checkpoint{
		Version:    Version,
		CreatedAt:  now,
		UpdatedAt:  now,
		OutputDir:  outputDir,
		SpecHashes: specHashes,
		Modules:    make(map[string]*UnitState, len(units)),
	}
	for _, u := range units {
		cp.Modules[u] = &UnitState{Status: StatusPending}
	}
	return cp
}

// matches reports whether the stored spec hashes are identical to the
// current ones: same set of paths, same hash per path.
func (cp *Checkpoint) matches(current map[string]string) bool {
	if len(cp.SpecHashes) != len(current) {
		return false
	}
	for path, hash := range current {
		if cp.SpecHashes[path] != hash {
			return false
		}
	}
	return true
}

// Path returns the checkpoint file location for an output directory.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Remove deletes a checkpoint file. Used by --force.
func Remove(outputDir string) error {
	err := os.Remove(Path(outputDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// read loads and validates the raw checkpoint document. Any problem
// (missing file, bad JSON, wrong schema version) yields nil, meaning
// start fresh.
func read(path string) *Checkpoint {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	if cp.Version != Version || cp.Modules == nil || cp.SpecHashes == nil {
		return nil
	}
	return &cp
}
