package parser

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFile_WithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeSpec(t, dir, "core.md", `---
name: core-types
order: 2
---
# Core types

Define the domain structs.
`)

	u, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "core-types" {
		t.Errorf("Name = %q, want core-types", u.Name)
	}
	if u.Order != 2 {
		t.Errorf("Order = %d, want 2", u.Order)
	}
	if u.Spec == "" || u.Spec[0] != '#' {
		t.Errorf("Spec = %q, want body starting at heading", u.Spec)
	}
}

func TestParseFile_NoFrontmatterDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeSpec(t, dir, "storage.md", "Storage layer spec body.\n")

	u, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "storage" {
		t.Errorf("Name = %q, want storage (file stem)", u.Name)
	}
	if u.Order != 1 {
		t.Errorf("Order = %d, want 1", u.Order)
	}
}

func TestParseFile_EmptyBodyRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeSpec(t, dir, "empty.md", "---\nname: x\norder: 1\n---\n\n")

	if _, err := ParseFile(path); err == nil {
		t.Fatal("err = nil for empty spec body")
	}
}

func TestParseDir_SortedByOrderThenName(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "z.md", "---\nname: zeta\norder: 1\n---\nbody")
	writeSpec(t, dir, "a.md", "---\nname: alpha\norder: 2\n---\nbody")
	writeSpec(t, dir, "m.md", "---\nname: mid\norder: 1\n---\nbody")
	writeSpec(t, dir, "notes.txt", "ignored")

	units, files, err := ParseDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(units) != 3 {
		t.Fatalf("unit count = %d, want 3", len(units))
	}
	wantOrder := []string{"mid", "zeta", "alpha"}
	for i, w := range wantOrder {
		if units[i].Name != w {
			t.Errorf("units[%d] = %s, want %s", i, units[i].Name, w)
		}
	}
	if len(files) != 3 {
		t.Errorf("tracked file count = %d, want 3", len(files))
	}
}

func TestParseDir_DuplicateNamesRejected(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "a.md", "---\nname: core\n---\nbody")
	writeSpec(t, dir, "b.md", "---\nname: core\n---\nbody")

	if _, _, err := ParseDir(dir); err == nil {
		t.Fatal("err = nil for duplicate unit names")
	}
}

func TestGroupByOrder(t *testing.T) {
	units := []Unit{
		{Name: "a", Order: 1},
		{Name: "b", Order: 1},
		{Name: "c", Order: 3},
		{Name: "d", Order: 2},
	}

	groups := GroupByOrder(units)

	if len(groups) != 3 {
		t.Fatalf("group count = %d, want 3", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Errorf("group[0] size = %d, want 2", len(groups[0]))
	}
	if groups[1][0].Name != "d" {
		t.Errorf("group[1] = %s, want d", groups[1][0].Name)
	}
	if groups[2][0].Name != "c" {
		t.Errorf("group[2] = %s, want c", groups[2][0].Name)
	}
}
