// Package strings provides small slice utilities for ordered string sets,
// e.g. role lists and broker lists, where duplicates are dropped but the
// caller's ordering is meaningful and must survive.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice, trimming
// whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  broker-1:9092 ", "broker-2:9092", "broker-1:9092", ""})
//	// Returns: []string{"broker-1:9092", "broker-2:9092"}
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
// Role names are matched case-insensitively, so role lists go through this
// before storage or comparison.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  Admin ", "auditor", "admin"})
//	// Returns: []string{"admin", "auditor"}
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func dedupe(values []string, canon func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		c := canon(v)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
