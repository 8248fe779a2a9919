package apihttp

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"overlaysync/internal/domain"
	"overlaysync/internal/overlay"
	"overlaysync/internal/registry"
	"overlaysync/internal/resolve"
)

const maxFrameBody = 32 << 20

type attachRequest struct {
	TabID string `json:"tabId"`
	URL   string `json:"url"`
}

type sessionResponse struct {
	TabID string       `json:"tabId"`
	Host  string       `json:"host"`
	VOD   registry.VOD `json:"vod"`
}

type navigateRequest struct {
	URL string `json:"url"`
}

type navigateResponse struct {
	Kept bool `json:"kept"`
}

type loadResponse struct {
	Loaded int `json:"loaded"`
}

type removeRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "resolver is not configured")
		return
	}
	var req domain.ResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	opts, err := s.resolveOptions(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	items := s.resolver.Resolve(r.Context(), req, opts)
	if items == nil {
		items = []domain.InitData{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var req attachRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.sessions.Attach(r.Context(), strings.TrimSpace(req.TabID), req.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{TabID: session.TabID, Host: session.Host, VOD: session.VOD})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := session.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	if err := s.sessions.Detach(r.Context(), r.PathValue("tab")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	kept, err := s.sessions.Navigate(r.Context(), r.PathValue("tab"), req.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, navigateResponse{Kept: kept})
}

// handleLoad runs a resolution pass for the page the adapter scraped and
// hands the result to the session.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "resolver is not configured")
		return
	}
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req domain.ResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	opts, err := s.resolveOptions(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	loaded := 0
	err = session.RunPass(r.Context(), func(ctx context.Context) error {
		n, err := resolve.Load(ctx, s.resolver, session.Engine, req, opts)
		loaded = n
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Info("session loaded",
		slog.String("tabId", session.TabID),
		slog.String("title", req.Title),
		slog.Int("videos", loaded),
	)
	writeJSON(w, http.StatusOK, loadResponse{Loaded: loaded})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	s.handleItems(w, r, func(ctx context.Context, e *overlay.Engine, items []domain.InitData) error {
		return e.Init(ctx, items)
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	s.handleItems(w, r, func(ctx context.Context, e *overlay.Engine, items []domain.InitData) error {
		return e.Add(ctx, items)
	})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request, apply func(context.Context, *overlay.Engine, []domain.InitData) error) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var items []domain.InitData
	if err := decodeJSON(r, &items); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := apply(r.Context(), session.Engine, items); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req removeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := session.Engine.Remove(r.Context(), req.IDs...); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var ev overlay.PlaybackEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := session.Playback(r.Context(), ev); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFrame stores the latest video frame used by captures. PNG, JPEG and
// WebP bodies are accepted.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	frame, _, err := image.Decode(io.LimitReader(r.Body, maxFrameBody))
	if err != nil {
		writeDomainError(w, fmt.Errorf("%w: decode frame: %v", domain.ErrInvalidRequest, err))
		return
	}
	session.Player.SetFrame(frame)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	opts, err := parseCaptureOptions(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	data, err := session.Capture(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseCaptureOptions(r *http.Request) (overlay.CaptureOptions, error) {
	q := r.URL.Query()
	var opts overlay.CaptureOptions
	if raw := strings.TrimSpace(q.Get("commentsOnly")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("%w: invalid commentsOnly", domain.ErrInvalidRequest)
		}
		opts.CommentsOnly = v
	}
	if raw := strings.TrimSpace(q.Get("quality")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			return opts, fmt.Errorf("%w: quality must be between 1 and 100", domain.ErrInvalidRequest)
		}
		opts.Quality = v
	}
	return opts, nil
}

func (s *Server) requireSessions(w http.ResponseWriter) bool {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "sessions are not configured")
		return false
	}
	return true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*registry.Session, bool) {
	if !s.requireSessions(w) {
		return nil, false
	}
	session, err := s.sessions.Get(r.PathValue("tab"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return session, true
}

// resolveOptions reads the current settings and an optional "when" query
// parameter (unix seconds) that pins thread fetches to a past moment.
func (s *Server) resolveOptions(r *http.Request) (domain.ResolveOptions, error) {
	opts := domain.DefaultSettings().ResolveOptions()
	if s.settings != nil {
		opts = s.settings.ResolveOptions()
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("when")); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sec <= 0 {
			return opts, fmt.Errorf("%w: when must be a positive unix timestamp", domain.ErrInvalidRequest)
		}
		opts.When = time.Unix(sec, 0)
	}
	return opts, nil
}
