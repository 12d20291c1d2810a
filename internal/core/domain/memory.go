package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// ParseMemory converts a memory string like "512M" or "16G" to bytes.
// A bare number is taken as bytes.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty memory value")
	}

	mult := int64(1)
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		mult = kib
		s = s[:len(s)-1]
	case "M":
		mult = mib
		s = s[:len(s)-1]
	case "G":
		mult = gib
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory value %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative memory value %q", s)
	}
	return n * mult, nil
}
