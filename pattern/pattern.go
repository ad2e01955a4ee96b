// Package pattern provides plain and wildcard string matching plus a cheap
// deterministic string hash. It backs rule deduplication and domain matching
// in the compiler, so everything here is case-insensitive and allocation-light.
package pattern

import "strings"

// HasWildcard reports whether the pattern contains a wildcard character.
func HasWildcard(pattern string) bool {
	return strings.Contains(pattern, "*")
}

// IsRegexPattern reports whether the string is a regex literal, i.e. wrapped
// in forward slashes like /ads?[0-9]+/.
func IsRegexPattern(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/")
}

// Equals reports whether two strings are byte-equal.
func Equals(a, b string) bool {
	return a == b
}

// EqualsIgnoreCase reports whether two strings are equal ignoring case.
func EqualsIgnoreCase(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Matches reports whether subject matches the given pattern.
//
// A pattern without wildcards is a case-insensitive substring test. With
// wildcards, the pattern is split on '*' into literal parts which must occur
// in order anywhere in the subject, so "example.*" matches "||example.com^".
// A trailing literal part is anchored to the end; a bare "*" matches anything.
func Matches(pattern, subject string) bool {
	p := strings.ToLower(pattern)
	s := strings.ToLower(subject)

	if !strings.Contains(p, "*") {
		return strings.Contains(s, p)
	}

	var parts []string
	for _, part := range strings.Split(p, "*") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return true
	}

	pos := 0
	for _, part := range parts {
		idx := strings.Index(s[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	if !strings.HasSuffix(p, "*") {
		return strings.HasSuffix(s, parts[len(parts)-1])
	}
	return true
}

// Hash returns a 32-bit djb2 hash of s. It is not cryptographic; collisions
// are acceptable for deduplication keys, but the value is deterministic for
// identical input across runs and platforms.
func Hash(s string) uint32 {
	h := uint32(5381)
	for _, r := range s {
		h = h*33 + uint32(r)
	}
	return h
}
