package apihttp

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRouteOf(t *testing.T) {
	tests := []struct {
		path  string
		route string
		tab   string
	}{
		{"/health", "/health", ""},
		{"/sessions", "/sessions", ""},
		{"/sessions/42", "/sessions/{tab}", "42"},
		{"/sessions/42/playback", "/sessions/{tab}/playback", "42"},
		{"/sessions/42/capture", "/sessions/{tab}/capture", "42"},
		{"/sessions/42/../../etc", "/other", "42"},
		{"/sessions/", "/other", ""},
		{"/settings", "/settings", ""},
		{"/nope", "/other", ""},
	}
	for _, tt := range tests {
		route, tab := routeOf(tt.path)
		if route != tt.route || tab != tt.tab {
			t.Fatalf("routeOf(%q) = (%q, %q), want (%q, %q)", tt.path, route, tab, tt.route, tt.tab)
		}
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{"/sessions/{tab}/load", 500, slog.LevelError},
		{"/sessions/{tab}/load", 404, slog.LevelWarn},
		{"/sessions/{tab}/playback", 204, slog.LevelDebug},
		{"/sessions/{tab}/frame", 204, slog.LevelDebug},
		{"/sessions/{tab}/frame", 503, slog.LevelError},
		{"/sessions/{tab}/load", 200, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.route, tt.status); got != tt.want {
			t.Fatalf("requestLevel(%q, %d) = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}
}

func TestObserveLogsRouteAndTab(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := observe(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sessions/7/load", nil))

	line := buf.String()
	for _, want := range []string{"route=/sessions/{tab}/load", "tabId=7", "status=202", "bytes=2", "level=INFO"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(slog.Default(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestTabLimiterIsolatesTabs(t *testing.T) {
	limiter := newTabLimiter(1, 1)
	h := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	serve := func(method, path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	if code := serve(http.MethodPost, "/sessions/1/playback"); code != http.StatusNoContent {
		t.Fatalf("first tab 1 status = %d", code)
	}
	if code := serve(http.MethodPost, "/sessions/1/playback"); code != http.StatusTooManyRequests {
		t.Fatalf("second tab 1 status = %d, want 429", code)
	}
	if code := serve(http.MethodPost, "/sessions/2/playback"); code != http.StatusNoContent {
		t.Fatalf("tab 2 must have its own bucket, got %d", code)
	}
	if code := serve(http.MethodGet, "/settings"); code != http.StatusNoContent {
		t.Fatalf("shared bucket status = %d", code)
	}
	if code := serve(http.MethodGet, "/settings"); code != http.StatusTooManyRequests {
		t.Fatalf("second shared status = %d, want 429", code)
	}
	if code := serve(http.MethodGet, "/health"); code != http.StatusNoContent {
		t.Fatalf("health must bypass the limiter, got %d", code)
	}

	limiter.forget("1")
	if code := serve(http.MethodPost, "/sessions/1/playback"); code != http.StatusNoContent {
		t.Fatalf("forgotten tab should start with a fresh bucket, got %d", code)
	}
}

func TestTabLimiterForgetsDetachedTab(t *testing.T) {
	limiter := newTabLimiter(1, 1)
	h := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/sessions/9", nil))

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.tabs["9"]; ok {
		t.Fatal("bucket kept after detach")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := allowCrossOrigin(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight reached the handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PUT") {
		t.Fatalf("allow methods = %q", got)
	}
}
