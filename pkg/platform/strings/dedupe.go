// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved and comparison
// is case-sensitive.
//
//	DedupeAndTrim([]string{"  studio ", "cli", "studio", "", "  "})
//	// Returns: []string{"studio", "cli"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList parses a comma-separated column value into a clean list.
//
//	SplitList("studio, cli,,studio")
//	// Returns: []string{"studio", "cli"}
func SplitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return []string{}
	}
	return DedupeAndTrim(strings.Split(csv, ","))
}

// JoinList is the inverse of SplitList.
func JoinList(values []string) string {
	return strings.Join(DedupeAndTrim(values), ",")
}
