package service

import (
	"sort"
	"strings"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
)

// PriorityTable resolves container names to priorities by substring match.
// The table is immutable after construction; every name maps to exactly one
// priority.
type PriorityTable struct {
	keys     []string // sorted for deterministic iteration
	entries  map[string]int
	fallback int
}

// NewPriorityTable merges overrides onto the built-in table.
func NewPriorityTable(overrides map[string]int) *PriorityTable {
	entries := domain.DefaultPriorities()
	for k, v := range overrides {
		entries[k] = v
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &PriorityTable{keys: keys, entries: entries, fallback: domain.DefaultPriority}
}

// Lookup returns the priority for a container name. The longest matching
// substring wins so "claude-architect" beats a generic "claude" entry;
// unmatched names get the default.
func (t *PriorityTable) Lookup(name string) int {
	best := ""
	for _, key := range t.keys {
		if strings.Contains(name, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return t.fallback
	}
	return t.entries[best]
}
