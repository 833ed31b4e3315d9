package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	client := New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	// Use the test server's transport
	client.http = server.Client()

	return client, server
}

func TestFetch_Success(t *testing.T) {
	var gotUserAgent string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><p>Chapter text</p></body></html>"))
	}

	client, server := newTestClient(t, handler)
	defer server.Close()
	defer client.Close()

	page, err := client.Fetch(context.Background(), server.URL+"/novel/chapter-1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotUserAgent != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUserAgent, userAgent)
	}
	if !strings.Contains(page.ContentType, "text/html") {
		t.Errorf("ContentType = %q, want text/html", page.ContentType)
	}
	if !strings.Contains(string(page.Body), "Chapter text") {
		t.Errorf("Body missing expected content: %q", page.Body)
	}
	if page.URL == "" {
		t.Error("Page.URL is empty")
	}
}

func TestFetch_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
			wantErr:    ErrNotFound,
		},
		{
			name:       "gone counts as not found",
			statusCode: http.StatusGone,
			wantErr:    ErrNotFound,
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			wantErr:    ErrRateLimited,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			wantErr:    ErrUpstream,
		},
		{
			name:       "bad gateway",
			statusCode: http.StatusBadGateway,
			wantErr:    ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}

			client, server := newTestClient(t, handler)
			defer server.Close()
			defer client.Close()

			_, err := client.Fetch(context.Background(), server.URL)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetch_ForbiddenIsGenericError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	client, server := newTestClient(t, handler)
	defer server.Close()
	defer client.Close()

	_, err := client.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Fetch() expected error for 403")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error should name the status: %v", err)
	}
}

func TestFetch_SchemeNotAllowed(t *testing.T) {
	client := New(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	defer client.Close()

	tests := []string{
		"ftp://example.com/novel",
		"file:///etc/passwd",
		"gopher://example.com",
	}

	for _, rawURL := range tests {
		_, err := client.Fetch(context.Background(), rawURL)
		if !errors.Is(err, ErrSchemeNotAllowed) {
			t.Errorf("Fetch(%q) error = %v, want ErrSchemeNotAllowed", rawURL, err)
		}
	}
}

func TestFetch_NoHost(t *testing.T) {
	client := New(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	defer client.Close()

	_, err := client.Fetch(context.Background(), "https:///path-only")
	if err == nil {
		t.Fatal("Fetch() expected error for URL without host")
	}
}

func TestFetch_BodyTooLarge(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 256))
	}

	client, server := newTestClient(t, handler)
	defer server.Close()
	defer client.Close()

	// Shrink the cap so the test doesn't push megabytes
	client.maxBody = 64

	_, err := client.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("Fetch() error = %v, want ErrBodyTooLarge", err)
	}
}

func TestFetch_BodyAtLimitSucceeds(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}

	client, server := newTestClient(t, handler)
	defer server.Close()
	defer client.Close()

	client.maxBody = 64

	page, err := client.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.Body) != 64 {
		t.Errorf("Body length = %d, want 64", len(page.Body))
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}

	client, server := newTestClient(t, handler)
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, server.URL)
	if err == nil {
		t.Fatal("Fetch() expected error for canceled context")
	}
}
