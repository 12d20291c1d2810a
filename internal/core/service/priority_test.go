package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityTableLookup(t *testing.T) {
	table := NewPriorityTable(nil)

	assert.Equal(t, 10, table.Lookup("orchestrator"))
	assert.Equal(t, 8, table.Lookup("claude-architect-a1b2c3d4"))
	assert.Equal(t, 7, table.Lookup("gemini-developer-a1b2c3d4"))
	assert.Equal(t, 3, table.Lookup("grafana"))
}

func TestPriorityTableLookup_Default(t *testing.T) {
	table := NewPriorityTable(nil)
	assert.Equal(t, 5, table.Lookup("postgres"))
	assert.Equal(t, 5, table.Lookup(""))
}

func TestPriorityTableLookup_LongestMatchWins(t *testing.T) {
	table := NewPriorityTable(map[string]int{
		"claude":        2,
		"claude-tester": 9,
	})

	// Both entries match; the more specific one decides.
	assert.Equal(t, 9, table.Lookup("claude-tester-a1b2c3d4"))
	assert.Equal(t, 2, table.Lookup("claude-worker"))
}

func TestPriorityTableLookup_Deterministic(t *testing.T) {
	// Two equal-length matches; sorted iteration keeps the tie stable.
	table := NewPriorityTable(map[string]int{"aa": 1, "ab": 2})
	for i := 0; i < 50; i++ {
		assert.Equal(t, 1, table.Lookup("xaabx"))
	}
}

func TestPriorityTableOverrides(t *testing.T) {
	table := NewPriorityTable(map[string]int{"grafana": 8})
	assert.Equal(t, 8, table.Lookup("grafana"))
	// Untouched entries survive the merge.
	assert.Equal(t, 10, table.Lookup("redis"))
}
