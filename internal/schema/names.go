package schema

import (
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s can be used as an unquoted column name.
func IsIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// SanitizeNames keeps the string entries that are non-blank identifiers after
// trimming, in order and without repeats. dropped counts the rejected entries;
// repeats are not counted.
func SanitizeNames[T any](in []T) (names []string, dropped int) {
	if len(in) == 0 {
		return nil, 0
	}
	seen := make(map[string]struct{}, len(in))
	names = make([]string, 0, len(in))
	for _, v := range in {
		s, ok := any(v).(string)
		if !ok {
			dropped++
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || !IsIdentifier(s) {
			dropped++
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		names = append(names, s)
	}
	return names, dropped
}
