package apihttp

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"overlaysync/internal/metrics"
)

// statusRecorder remembers what the handler wrote so the access log and the
// request metrics can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Hijack keeps the observer WebSocket upgrade working behind the recorder.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	return hj.Hijack()
}

// routeOf maps a request path onto a bounded route label and, for session
// routes, the tab the request targets.
func routeOf(path string) (route, tab string) {
	rest, ok := strings.CutPrefix(path, "/sessions/")
	if !ok {
		switch path {
		case "/health", "/metrics", "/resolve", "/settings", "/ws", "/vods", "/upstreams/health", "/sessions":
			return path, ""
		}
		return "/other", ""
	}
	tab, action, nested := strings.Cut(rest, "/")
	if tab == "" {
		return "/other", ""
	}
	if !nested {
		return "/sessions/{tab}", tab
	}
	switch action {
	case "navigate", "load", "init", "add", "remove", "playback", "frame", "capture":
		return "/sessions/{tab}/" + action, tab
	}
	return "/other", tab
}

// requestLevel demotes the adapter's per-tick and per-frame traffic to debug
// unless it failed.
func requestLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	switch route {
	case "/health", "/metrics", "/sessions/{tab}/playback", "/sessions/{tab}/frame":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// observe writes one access log line and the request metrics per call.
func observe(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		elapsed := time.Since(started)

		route, tab := routeOf(r.URL.Path)
		if route != "/metrics" {
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sr.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", sr.status),
			slog.Int("bytes", sr.bytes),
			slog.Duration("elapsed", elapsed),
		}
		if tab != "" {
			attrs = append(attrs, slog.String("tabId", tab))
		}
		logger.LogAttrs(r.Context(), requestLevel(route, sr.status), "http request", attrs...)
	})
}

func recoverPanics(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			route, tab := routeOf(r.URL.Path)
			logger.Error("handler panicked",
				slog.Any("panic", rec),
				slog.String("route", route),
				slog.String("tabId", tab),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// allowCrossOrigin answers preflights for the page adapters, which run as
// content scripts on the streaming sites.
func allowCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
	})
}

// tabLimiter gives every attached tab its own token bucket, so one busy
// adapter cannot starve the others. Requests outside a session share one
// bucket. A tab's bucket is dropped when the tab detaches.
type tabLimiter struct {
	rps   rate.Limit
	burst int

	mu     sync.Mutex
	shared *rate.Limiter
	tabs   map[string]*rate.Limiter
}

func newTabLimiter(rps float64, burst int) *tabLimiter {
	return &tabLimiter{
		rps:    rate.Limit(rps),
		burst:  burst,
		shared: rate.NewLimiter(rate.Limit(rps), burst),
		tabs:   make(map[string]*rate.Limiter),
	}
}

func (l *tabLimiter) bucket(tab string) *rate.Limiter {
	if tab == "" {
		return l.shared
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.tabs[tab]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.tabs[tab] = lim
	}
	return lim
}

func (l *tabLimiter) forget(tab string) {
	l.mu.Lock()
	delete(l.tabs, tab)
	l.mu.Unlock()
}

func (l *tabLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, tab := routeOf(r.URL.Path)
		if route == "/health" || route == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !l.bucket(tab).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
		if route == "/sessions/{tab}" && r.Method == http.MethodDelete {
			l.forget(tab)
		}
	})
}
