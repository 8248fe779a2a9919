// Package registry tracks one overlay session per browser tab and applies
// the navigation rules that end them.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"overlaysync/internal/domain"
	"overlaysync/internal/metrics"
	"overlaysync/internal/overlay"
)

// EngineFactory builds the overlay engine for a new session.
type EngineFactory func(tabID string, vod VOD, player *overlay.RemotePlayer) *overlay.Engine

type Session struct {
	TabID  string
	Host   string
	VOD    VOD
	Engine *overlay.Engine
	Player *overlay.RemotePlayer

	pass *semaphore.Weighted
}

// Playback records a media event and drives the render loop from it.
func (s *Session) Playback(ctx context.Context, ev overlay.PlaybackEvent) error {
	if err := s.Player.Report(ev); err != nil {
		return err
	}
	switch ev.Event {
	case overlay.EventPlaying:
		return s.Engine.Start(ctx)
	case overlay.EventPause:
		return s.Engine.Stop(ctx)
	case overlay.EventSeeked:
		return s.Engine.Seek(ctx)
	}
	return nil
}

// Capture returns a JPEG still when the site allows it.
func (s *Session) Capture(ctx context.Context, opts overlay.CaptureOptions) ([]byte, error) {
	if !s.VOD.AllowCapture {
		return nil, fmt.Errorf("%w: %s", domain.ErrCaptureNotAllowed, s.VOD.Name)
	}
	return s.Engine.Capture(ctx, opts)
}

func (s *Session) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	snap, err := s.Engine.Snapshot(ctx)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	snap.TabID = s.TabID
	snap.VOD = s.VOD.Key
	return snap, nil
}

// RunPass runs fn while holding the session's resolution lock, so passes
// against one session never overlap.
func (s *Session) RunPass(ctx context.Context, fn func(context.Context) error) error {
	if err := s.pass.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.pass.Release(1)
	select {
	case <-s.Engine.Done():
		return domain.ErrSessionDisposed
	default:
	}
	return fn(ctx)
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  EngineFactory
	logger   *slog.Logger
}

func New(factory EngineFactory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		logger:   logger,
	}
}

// Attach starts a session for tabID on a supported page, replacing any
// session the tab already had.
func (r *Registry) Attach(ctx context.Context, tabID, rawURL string) (*Session, error) {
	if tabID == "" {
		return nil, fmt.Errorf("%w: tab id is required", domain.ErrInvalidRequest)
	}
	vod, host, ok := DetectVOD(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPage, host)
	}

	player := overlay.NewRemotePlayer()
	session := &Session{
		TabID:  tabID,
		Host:   host,
		VOD:    vod,
		Player: player,
		Engine: r.factory(tabID, vod, player),
		pass:   semaphore.NewWeighted(1),
	}

	r.mu.Lock()
	previous := r.sessions[tabID]
	r.sessions[tabID] = session
	r.updateGauge()
	r.mu.Unlock()

	if previous != nil {
		r.dispose(ctx, previous, "replaced")
	}
	go r.watch(session)

	r.logger.Info("session attached",
		slog.String("tabId", tabID),
		slog.String("vod", vod.Key),
		slog.String("host", host),
	)
	return session, nil
}

// Navigate applies a tab navigation. The session survives only when the new
// URL is on the same host. It reports whether the session was kept.
func (r *Registry) Navigate(ctx context.Context, tabID, rawURL string) (bool, error) {
	r.mu.Lock()
	session, ok := r.sessions[tabID]
	r.mu.Unlock()
	if !ok {
		return false, domain.ErrSessionNotFound
	}

	host, valid := hostname(rawURL)
	if valid && host == session.Host {
		return true, nil
	}
	r.evict(ctx, session, "navigated")
	return false, nil
}

// Detach disposes and forgets the tab's session.
func (r *Registry) Detach(ctx context.Context, tabID string) error {
	r.mu.Lock()
	session, ok := r.sessions[tabID]
	r.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.evict(ctx, session, "detached")
	return nil
}

func (r *Registry) Get(tabID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[tabID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Sessions returns the live sessions in no particular order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SetLowPerformance switches the render cadence of every live session.
func (r *Registry) SetLowPerformance(ctx context.Context, enabled bool) {
	for _, s := range r.Sessions() {
		if err := s.Engine.SetLowPerformance(ctx, enabled); err != nil {
			r.logger.Debug("low performance toggle skipped", slog.String("tabId", s.TabID), slog.String("error", err.Error()))
		}
	}
}

// Close disposes every session.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.updateGauge()
	r.mu.Unlock()

	for _, s := range sessions {
		r.dispose(ctx, s, "shutdown")
	}
}

func (r *Registry) evict(ctx context.Context, session *Session, reason string) {
	r.mu.Lock()
	if r.sessions[session.TabID] == session {
		delete(r.sessions, session.TabID)
		r.updateGauge()
	}
	r.mu.Unlock()
	r.dispose(ctx, session, reason)
}

func (r *Registry) dispose(ctx context.Context, session *Session, reason string) {
	if err := session.Engine.Dispose(ctx); err != nil {
		r.logger.Debug("session already gone", slog.String("tabId", session.TabID), slog.String("error", err.Error()))
		return
	}
	r.logger.Info("session disposed", slog.String("tabId", session.TabID), slog.String("reason", reason))
}

// watch forgets a session whose engine was disposed from elsewhere.
func (r *Registry) watch(session *Session) {
	<-session.Engine.Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[session.TabID] == session {
		delete(r.sessions, session.TabID)
		r.updateGauge()
	}
}

// updateGauge must be called with mu held.
func (r *Registry) updateGauge() {
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}
