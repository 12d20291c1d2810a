package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMemory(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"1K", 1024},
		{"512M", 512 * 1024 * 1024},
		{"2G", 2 * 1024 * 1024 * 1024},
		{"2g", 2 * 1024 * 1024 * 1024},
		{" 16G ", 16 * 1024 * 1024 * 1024},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseMemory(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseMemory_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12X3", "-1G", "G"} {
		_, err := ParseMemory(in)
		assert.Error(t, err, in)
	}
}
