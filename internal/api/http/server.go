package apihttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"overlaysync/internal/domain"
	"overlaysync/internal/niconico"
	"overlaysync/internal/registry"
)

type Resolver interface {
	Resolve(ctx context.Context, req domain.ResolveRequest, opts domain.ResolveOptions) []domain.InitData
}

type SessionRegistry interface {
	Attach(ctx context.Context, tabID, rawURL string) (*registry.Session, error)
	Navigate(ctx context.Context, tabID, rawURL string) (bool, error)
	Detach(ctx context.Context, tabID string) error
	Get(tabID string) (*registry.Session, error)
}

type SettingsController interface {
	Get() domain.Settings
	Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)
	ResolveOptions() domain.ResolveOptions
}

type UpstreamDiagnostics interface {
	Diagnostics() []niconico.EndpointDiagnostics
}

type Server struct {
	resolver  Resolver
	sessions  SessionRegistry
	settings  SettingsController
	upstreams UpstreamDiagnostics
	observers http.Handler
	logger    *slog.Logger
	handler   http.Handler
}

type ServerOption func(*Server)

func WithSessions(reg SessionRegistry) ServerOption {
	return func(s *Server) {
		s.sessions = reg
	}
}

func WithSettings(ctrl SettingsController) ServerOption {
	return func(s *Server) {
		s.settings = ctrl
	}
}

func WithUpstreams(diag UpstreamDiagnostics) ServerOption {
	return func(s *Server) {
		s.upstreams = diag
	}
}

// WithObservers mounts the WebSocket observer endpoint.
func WithObservers(h http.Handler) ServerOption {
	return func(s *Server) {
		s.observers = h
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(resolver Resolver, opts ...ServerOption) *Server {
	s := &Server{resolver: resolver}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /vods", s.handleVODs)
	mux.HandleFunc("POST /resolve", s.handleResolve)
	mux.HandleFunc("POST /sessions", s.handleAttach)
	mux.HandleFunc("GET /sessions/{tab}", s.handleSnapshot)
	mux.HandleFunc("DELETE /sessions/{tab}", s.handleDetach)
	mux.HandleFunc("POST /sessions/{tab}/navigate", s.handleNavigate)
	mux.HandleFunc("POST /sessions/{tab}/load", s.handleLoad)
	mux.HandleFunc("POST /sessions/{tab}/init", s.handleInit)
	mux.HandleFunc("POST /sessions/{tab}/add", s.handleAdd)
	mux.HandleFunc("POST /sessions/{tab}/remove", s.handleRemove)
	mux.HandleFunc("POST /sessions/{tab}/playback", s.handlePlayback)
	mux.HandleFunc("PUT /sessions/{tab}/frame", s.handleFrame)
	mux.HandleFunc("GET /sessions/{tab}/capture", s.handleCapture)
	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("PUT /settings", s.handleUpdateSettings)
	mux.HandleFunc("PATCH /settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /upstreams/health", s.handleUpstreamHealth)
	if s.observers != nil {
		mux.Handle("GET /ws", s.observers)
	}

	traced := otelhttp.NewHandler(observe(s.logger, mux), "overlaysync",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/ws"
		}),
	)
	limiter := newTabLimiter(50, 100)
	s.handler = recoverPanics(s.logger, allowCrossOrigin(limiter.middleware(traced)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVODs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, registry.VODs())
}

func (s *Server) handleUpstreamHealth(w http.ResponseWriter, _ *http.Request) {
	if s.upstreams == nil {
		writeJSON(w, http.StatusOK, []niconico.EndpointDiagnostics{})
		return
	}
	writeJSON(w, http.StatusOK, s.upstreams.Diagnostics())
}
