package roster

import (
	"fmt"
	"strings"
)

// MatchPolicy decides which names a non-empty search query selects.
// Matching is always case-insensitive.
type MatchPolicy string

// Supported match policies.
const (
	MatchPrefix   MatchPolicy = "prefix"
	MatchContains MatchPolicy = "contains"
)

// DefaultMatchPolicy is used when none is configured.
const DefaultMatchPolicy = MatchPrefix

// ParseMatchPolicy converts a configuration value into a MatchPolicy.
// An empty value selects DefaultMatchPolicy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch p := MatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultMatchPolicy, nil
	case MatchPrefix, MatchContains:
		return p, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

// Matches reports whether name is selected by query. An empty query matches everything.
func (p MatchPolicy) Matches(name, query string) bool {
	if query == "" {
		return true
	}

	name, query = fold(name), fold(query)
	if p == MatchContains {
		return strings.Contains(name, query)
	}
	return strings.HasPrefix(name, query)
}

func (p MatchPolicy) String() string {
	return string(p)
}

// fold maps a name onto its case-insensitive key.
func fold(s string) string {
	return strings.ToLower(s)
}
