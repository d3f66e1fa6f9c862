package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleHTML simulates a minimal publisher landing page.
var sampleHTML = []byte(`<html><head><title>Paper</title></head><body><div class="abstract">Deep learning methods.</div></body></html>`)

// writeContent is a test helper that writes content to the response writer.
func writeContent(w http.ResponseWriter, content []byte) {
	_, _ = w.Write(content)
}

// newTestFetcher builds a fetcher that may talk to loopback test servers.
func newTestFetcher(cfg Config) *Fetcher {
	cfg.AllowPrivateNetworks = true
	return New(cfg)
}

func TestNewFetcher(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		f := New(Config{})

		require.NotNil(t, f)
		assert.Equal(t, int64(5*1024*1024), f.maxSize)
		assert.Equal(t, browserUserAgent, f.userAgent)
		assert.Equal(t, 10*time.Second, f.client.Timeout)
		assert.False(t, f.allowPrivateNetworks)
	})

	t.Run("uses custom config values", func(t *testing.T) {
		f := New(Config{
			Timeout:   3 * time.Second,
			MaxSize:   1024,
			UserAgent: "CustomAgent/2.0",
		})

		require.NotNil(t, f)
		assert.Equal(t, int64(1024), f.maxSize)
		assert.Equal(t, "CustomAgent/2.0", f.userAgent)
		assert.Equal(t, 3*time.Second, f.client.Timeout)
	})
}

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		writeContent(w, sampleHTML)
	}))
	defer server.Close()

	f := newTestFetcher(Config{})

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, sampleHTML, body)
}

func TestFetch_SendsBrowserHeaders(t *testing.T) {
	var receivedUserAgent, receivedAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUserAgent = r.Header.Get("User-Agent")
		receivedAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, sampleHTML)
	}))
	defer server.Close()

	t.Run("default browser identity", func(t *testing.T) {
		f := newTestFetcher(Config{})

		_, err := f.Fetch(context.Background(), server.URL)
		require.NoError(t, err)

		assert.Equal(t, browserUserAgent, receivedUserAgent)
		assert.Contains(t, receivedUserAgent, "Mozilla/5.0")
		assert.Contains(t, receivedAccept, "text/html")
	})

	t.Run("custom user agent", func(t *testing.T) {
		f := newTestFetcher(Config{UserAgent: "OtherBot/3.0"})

		_, err := f.Fetch(context.Background(), server.URL)
		require.NoError(t, err)

		assert.Equal(t, "OtherBot/3.0", receivedUserAgent)
	})
}

func TestFetch_ContentTypes(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		wantErr     error
	}{
		{"text/html", "text/html", nil},
		{"text/html with charset", "text/html; charset=ISO-8859-1", nil},
		{"application/xhtml+xml", "application/xhtml+xml", nil},
		{"empty content type tolerated", "", nil},
		{"application/pdf", "application/pdf", ErrNotHTML},
		{"application/json", "application/json", ErrNotHTML},
		{"image/png", "image/png", ErrNotHTML},
		{"text/plain", "text/plain", ErrNotHTML},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(http.StatusOK)
				writeContent(w, sampleHTML)
			}))
			defer server.Close()

			f := newTestFetcher(Config{})

			body, err := f.Fetch(context.Background(), server.URL)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, body)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), "Content-Type")
			} else {
				require.NoError(t, err)
				assert.Equal(t, sampleHTML, body)
			}
		})
	}
}

func TestFetch_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeContent(w, []byte("Access Denied"))
	}))
	defer server.Close()

	f := newTestFetcher(Config{})

	body, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Nil(t, body)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestFetch_HTTPErrors(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"404 Not Found", http.StatusNotFound, ErrNotFound},
		{"500 Internal Server Error", http.StatusInternalServerError, ErrFetchFailed},
		{"503 Service Unavailable", http.StatusServiceUnavailable, ErrFetchFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			f := newTestFetcher(Config{})

			body, err := f.Fetch(context.Background(), server.URL)
			require.Error(t, err)
			assert.Nil(t, body)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.NotErrorIs(t, err, ErrBlocked)
		})
	}
}

func TestFetch_TooLarge(t *testing.T) {
	largeContent := []byte(strings.Repeat("x", 1024))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, largeContent)
	}))
	defer server.Close()

	f := newTestFetcher(Config{MaxSize: 512})

	body, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Nil(t, body)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "512")
}

func TestFetch_ExactlyMaxSize(t *testing.T) {
	content := []byte(strings.Repeat("x", 512))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, content)
	}))
	defer server.Close()

	f := newTestFetcher(Config{MaxSize: 512})

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, body, 512)
}

func TestFetch_SSRFProtection(t *testing.T) {
	var requestCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		writeContent(w, sampleHTML)
	}))
	defer server.Close()

	// Private network checks enabled: the loopback test server must be
	// rejected before any request is made.
	f := New(Config{})

	t.Run("rejects loopback address", func(t *testing.T) {
		body, err := f.Fetch(context.Background(), server.URL)
		require.Error(t, err)
		assert.Nil(t, body)
		assert.ErrorIs(t, err, ErrSSRF)
		assert.Zero(t, requestCount)
	})

	t.Run("rejects file scheme", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "file:///etc/passwd")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSSRF)
		assert.Contains(t, err.Error(), "scheme")
	})

	t.Run("rejects missing scheme", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "not-a-url")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSSRF)
	})
}

func TestFetch_RedirectFollowed(t *testing.T) {
	finalServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, sampleHTML)
	}))
	defer finalServer.Close()

	redirectServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, finalServer.URL, http.StatusMovedPermanently)
	}))
	defer redirectServer.Close()

	f := newTestFetcher(Config{})

	body, err := f.Fetch(context.Background(), redirectServer.URL)
	require.NoError(t, err)
	assert.Equal(t, sampleHTML, body)
}

func TestFetch_TooManyRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL, http.StatusFound)
	}))
	defer server.Close()

	f := newTestFetcher(Config{})

	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
}

func TestFetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, sampleHTML)
	}))
	defer server.Close()

	f := newTestFetcher(Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	body, err := f.Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.Nil(t, body)
	assert.ErrorIs(t, err, ErrFetchFailed)
}
