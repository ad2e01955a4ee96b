// Package safeurl validates URLs before any network fetch is attempted.
// It implements SSRF prevention: only http and https schemes are allowed,
// and loopback, private, and link-local targets are rejected.
package safeurl

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Pre-compiled CIDR networks for private/reserved IP ranges.
// These are parsed once at package initialization.
var (
	v6unique    *net.IPNet // fc00::/7 - IPv6 unique local
	v6siteLocal *net.IPNet // fec0::/10 - deprecated IPv6 site-local
	v6link      *net.IPNet // fe80::/10 - IPv6 link-local
)

func init() {
	var err error

	_, v6unique, err = net.ParseCIDR("fc00::/7")
	if err != nil {
		panic("invalid IPv6 unique local CIDR: " + err.Error())
	}

	_, v6siteLocal, err = net.ParseCIDR("fec0::/10")
	if err != nil {
		panic("invalid IPv6 site-local CIDR: " + err.Error())
	}

	_, v6link, err = net.ParseCIDR("fe80::/10")
	if err != nil {
		panic("invalid IPv6 link-local CIDR: " + err.Error())
	}
}

// ValidationError reports a URL that failed SSRF validation. Callers and
// tests key off the stable message prefixes, so the Reason string is part of
// the contract and must not be rewrapped.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a URL against unsafe network targets. It performs no
// network access: only the URL syntax and any literal IP address are
// inspected. A nil return means the URL is safe to fetch.
func Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		// Some bracketed IP literals (notably IPv4-mapped IPv6 forms like
		// [::ffff:192.168.1.1]) fail url.Parse's host validation. Classify
		// the literal directly so the rejection names the blocked range
		// rather than the syntax.
		if ip := bracketedHostIP(rawURL); ip != nil {
			if blockErr := classifyIP(ip, ip.String()); blockErr != nil {
				return blockErr
			}
		}
		return validationErrorf("Invalid URL format: %s", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return validationErrorf("Unsafe protocol: %s", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return validationErrorf("Invalid URL format: %s", rawURL)
	}

	lowHost := strings.ToLower(host)
	if lowHost == "localhost" || strings.HasSuffix(lowHost, ".localhost") {
		return validationErrorf("Localhost access is blocked: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Hostname that is not a literal IP; resolution happens at fetch
		// time against the validated host.
		return nil
	}

	return classifyIP(ip, host)
}

// classifyIP rejects loopback, link-local, and private targets. A nil return
// means the address is routable.
func classifyIP(ip net.IP, host string) error {
	// Normalize IPv4-mapped IPv6 addresses (::ffff:x.x.x.x) so the IPv4
	// range checks below apply to them too.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsLoopback() || ip.IsUnspecified():
		return validationErrorf("Localhost access is blocked: %s", host)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || v6link.Contains(ip):
		return validationErrorf("Link-local address access is blocked: %s", host)
	case ip.IsPrivate() || v6unique.Contains(ip) || v6siteLocal.Contains(ip):
		return validationErrorf("Private IP access is blocked: %s", host)
	}

	return nil
}

// bracketedHostIP extracts an IP literal from the first [...] segment of a
// raw URL, for inputs url.Parse refuses to parse.
func bracketedHostIP(rawURL string) net.IP {
	start := strings.Index(rawURL, "[")
	if start < 0 {
		return nil
	}
	end := strings.Index(rawURL[start:], "]")
	if end < 0 {
		return nil
	}
	return net.ParseIP(rawURL[start+1 : start+end])
}
