package fetch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listforge/listforge/safeurl"
)

// testFetcher returns a Fetcher whose client dials the test server regardless
// of the hostname in the URL. httptest binds the loopback interface, which
// the SSRF guard rejects, so tests fetch through a validating hostname that
// resolves onto the listener.
func testFetcher(server *httptest.Server) *Fetcher {
	return New(nil, WithClient(&http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, server.Listener.Addr().String())
			},
		},
	}))
}

const testTarget = "http://filters.example.test/list.txt"

func TestCanHandle(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"https url", "https://example.com/list.txt", true},
		{"http url", "http://example.com/list.txt", true},
		{"uppercase scheme", "HTTPS://example.com", true},
		{"file url", "file:///etc/hosts", false},
		{"filesystem path", "/var/lists/ads.txt", false},
		{"relative path", "lists/ads.txt", false},
		{"ftp url", "ftp://example.com/list.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanHandle(tt.target))
		})
	}
}

func TestFetchRejectsUnsafeURLBeforeConnecting(t *testing.T) {
	f := New(nil)

	_, err := f.Fetch(context.Background(), "http://127.0.0.1/list.txt", Options{})
	require.Error(t, err)

	// The validation error passes through unchanged so callers can key off
	// its stable prefix.
	var verr *safeurl.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, strings.HasPrefix(err.Error(), "Localhost access is blocked"))
}

func TestFetchSuccess(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("||example.com^\n||ads.example.org^\n"))
	}))
	defer server.Close()

	f := testFetcher(server)
	content, err := f.Fetch(context.Background(), testTarget, Options{})
	require.NoError(t, err)
	assert.Contains(t, content, "||example.com^")
	assert.Equal(t, DefaultUserAgent, gotUserAgent)
}

func TestFetchCustomHeaders(t *testing.T) {
	var gotUserAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("||example.com^\n"))
	}))
	defer server.Close()

	f := testFetcher(server)
	_, err := f.Fetch(context.Background(), testTarget, Options{
		UserAgent: "custom-agent/2.0",
		Headers:   map[string]string{"Accept": "text/plain"},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-agent/2.0", gotUserAgent)
	assert.Equal(t, "text/plain", gotAccept)
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := testFetcher(server)
	_, err := f.Fetch(context.Background(), testTarget, Options{})
	require.Error(t, err)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.False(t, ferr.Timeout)
}

func TestFetchEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := testFetcher(server)

	t.Run("rejected by default", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), testTarget, Options{})
		require.Error(t, err)

		var ferr *FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Contains(t, ferr.Reason, "empty response body")
	})

	t.Run("accepted when allowed", func(t *testing.T) {
		content, err := f.Fetch(context.Background(), testTarget, Options{AllowEmptyResponse: true})
		require.NoError(t, err)
		assert.Empty(t, content)
	})
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	f := testFetcher(server)
	_, err := f.Fetch(context.Background(), testTarget, Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.True(t, ferr.Timeout)
}
