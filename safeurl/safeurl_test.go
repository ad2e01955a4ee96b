package safeurl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	urls := []string{
		"https://example.com/list.txt",
		"http://example.com",
		"https://filters.example.org/ads/hosts",
		"https://1.1.1.1/list.txt",
		"https://8.8.8.8",
		"HTTPS://EXAMPLE.COM/LIST.TXT",
		"https://example.com:8443/list.txt",
	}

	for _, url := range urls {
		t.Run(url, func(t *testing.T) {
			assert.NoError(t, Validate(url))
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		prefix string
	}{
		{"localhost", "http://localhost/list.txt", "Localhost access is blocked"},
		{"localhost subdomain", "http://foo.localhost/list.txt", "Localhost access is blocked"},
		{"localhost mixed case", "http://LocalHost/list.txt", "Localhost access is blocked"},
		{"ipv4 loopback", "http://127.0.0.1/list.txt", "Localhost access is blocked"},
		{"ipv4 loopback range", "http://127.8.8.8/list.txt", "Localhost access is blocked"},
		{"ipv6 loopback", "http://[::1]/list.txt", "Localhost access is blocked"},
		{"unspecified ipv4", "http://0.0.0.0/list.txt", "Localhost access is blocked"},
		{"private 10/8", "http://10.0.0.5/list.txt", "Private IP access is blocked"},
		{"private 172.16/12", "http://172.16.10.10/list.txt", "Private IP access is blocked"},
		{"private 192.168/16", "http://192.168.1.1/list.txt", "Private IP access is blocked"},
		{"ipv6 unique local", "http://[fc00::1]/list.txt", "Private IP access is blocked"},
		{"ipv6 site local", "http://[fec0::1]/list.txt", "Private IP access is blocked"},
		{"ipv4-mapped private", "http://[::ffff:192.168.1.1]/list.txt", "Private IP access is blocked"},
		{"ipv4-mapped loopback", "http://[::ffff:127.0.0.1]/list.txt", "Localhost access is blocked"},
		{"ipv4-mapped link-local", "http://[::ffff:169.254.169.254]/list.txt", "Link-local address access is blocked"},
		{"link-local ipv4", "http://169.254.169.254/latest/meta-data", "Link-local address access is blocked"},
		{"link-local ipv6", "http://[fe80::1]/list.txt", "Link-local address access is blocked"},
		{"file scheme", "file:///etc/passwd", "Unsafe protocol"},
		{"ftp scheme", "ftp://example.com/list.txt", "Unsafe protocol"},
		{"gopher scheme", "gopher://example.com", "Unsafe protocol"},
		{"no scheme", "example.com/list.txt", "Unsafe protocol"},
		{"empty host", "http://", "Invalid URL format"},
		{"unparseable", "http://exa mple.com/%zz", "Invalid URL format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.url)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, strings.HasPrefix(err.Error(), tt.prefix),
				"error %q should start with %q", err.Error(), tt.prefix)
		})
	}
}

func TestValidateNoNetworkForHostnames(t *testing.T) {
	// Non-IP hostnames pass syntactic validation; resolution is deferred to
	// fetch time. A hostname that does not exist must still validate.
	assert.NoError(t, Validate("https://definitely-not-a-real-host.invalid/list.txt"))
}
