// Package idgen generates identifiers for sessions and suppression records.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings, sortable by time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen, e.g. "sup_", "ses_".
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator for tests: prefix1, prefix2...
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID with Default.
func New() string {
	return Default()
}

// Parse validates a UUID string, ignoring a prefix ending in '_'.
func Parse(s string) (string, error) {
	raw := s
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '_' {
			raw = s[i+1:]
			break
		}
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return s, nil
}
