// Package parser partitions specification documents into rebuild units.
// Each spec file is a markdown document with YAML frontmatter naming the
// unit and its ordering group; the body is the spec slice handed to the
// provider.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Unit is one reconstruction unit. Units sharing an Order value have no
// dependency on each other; a higher Order depends on completion of all
// lower orders.
type Unit struct {
	Name   string
	Order  int
	Spec   string // markdown body handed to the provider
	Source string // spec file this unit came from
}

// ParseFile reads one spec document into a Unit. Without frontmatter the
// unit is named after the file stem and joins order group 1.
func ParseFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec %s: %w", path, err)
	}

	fm, body, err := parseFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	unit := &Unit{
		Name:   fm.Name,
		Order:  fm.Order,
		Spec:   strings.TrimSpace(body),
		Source: path,
	}
	if unit.Name == "" {
		unit.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if unit.Order <= 0 {
		unit.Order = 1
	}
	if unit.Spec == "" {
		return nil, fmt.Errorf("spec %s has no body", path)
	}
	return unit, nil
}

// ParseDir loads every .md spec under dir (non-recursive) and returns the
// units plus the tracked file list used for checkpoint fingerprinting.
// Names must be unique across the set.
func ParseDir(dir string) ([]Unit, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading spec dir: %w", err)
	}

	var units []Unit
	var files []string
	seen := make(map[string]string)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		u, err := ParseFile(path)
		if err != nil {
			return nil, nil, err
		}
		if prev, dup := seen[u.Name]; dup {
			return nil, nil, fmt.Errorf("duplicate unit name %q in %s and %s", u.Name, prev, path)
		}
		seen[u.Name] = path
		units = append(units, *u)
		files = append(files, path)
	}

	if len(units) == 0 {
		return nil, nil, fmt.Errorf("no spec documents found in %s", dir)
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].Order != units[j].Order {
			return units[i].Order < units[j].Order
		}
		return units[i].Name < units[j].Name
	})
	sort.Strings(files)

	return units, files, nil
}

// GroupByOrder partitions units into order groups, ascending. Units within
// a group may run concurrently; groups run strictly in sequence.
func GroupByOrder(units []Unit) [][]Unit {
	byOrder := make(map[int][]Unit)
	var orders []int
	for _, u := range units {
		if _, ok := byOrder[u.Order]; !ok {
			orders = append(orders, u.Order)
		}
		byOrder[u.Order] = append(byOrder[u.Order], u)
	}
	sort.Ints(orders)

	groups := make([][]Unit, 0, len(orders))
	for _, o := range orders {
		groups = append(groups, byOrder[o])
	}
	return groups
}
