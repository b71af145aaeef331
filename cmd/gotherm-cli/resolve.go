package main

import (
	"fmt"
	"sort"
	"strings"
)

// normalizeName folds case, trims whitespace, and collapses separators so
// "Living Room" matches "living_room" and "living-room".
func normalizeName(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case ' ', '-', '_':
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		default:
			b.WriteRune(r)
			lastSep = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// resolveNamedID maps a user-supplied name to an entity id. Names must
// match exactly one option after normalization.
func resolveNamedID(kind, input string, options map[string]string) (string, error) {
	needle := normalizeName(input)
	var (
		id      string
		matches []string
	)
	for label, candidate := range options {
		if normalizeName(label) == needle {
			matches = append(matches, label)
			id = candidate
		}
	}
	switch len(matches) {
	case 1:
		return id, nil
	case 0:
		labels := make([]string, 0, len(options))
		for label := range options {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(labels, ", "))
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%s %q is ambiguous: %s", kind, input, strings.Join(matches, ", "))
	}
}
