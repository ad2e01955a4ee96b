package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// SourceKey derives a stable storage key slug from a source URL. The slug is
// readable (domain plus path) so health and cache entries can be inspected
// with plain KV tooling, and carries a short hash of the full URL so sources
// that differ only in scheme or query string never share a key. URLs that
// fail to parse fall back to a hash-only slug.
func SourceKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return hex.EncodeToString(hash[:8])
	}

	slug := strings.ReplaceAll(parsed.Hostname(), ".", "-")
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		slug = slug + "-" + strings.ReplaceAll(path, "/", "-")
	}

	slug = strings.ToLower(slug)
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, slug)

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > 71 {
		slug = strings.TrimRight(slug[:71], "-")
	}
	return slug + "-" + hex.EncodeToString(hash[:4])
}
