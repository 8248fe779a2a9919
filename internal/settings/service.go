// Package settings persists the user's overlay preferences and notifies
// listeners when they change.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"overlaysync/internal/domain"
)

type Store interface {
	// Load reports false when nothing has been saved yet.
	Load(ctx context.Context) (domain.Settings, bool, error)
	Save(ctx context.Context, s domain.Settings) error
}

// Listener is called after a successful update with the previous and new values.
type Listener func(ctx context.Context, prev, next domain.Settings)

type Service struct {
	mu        sync.RWMutex
	store     Store
	current   domain.Settings
	listeners []Listener
	logger    *slog.Logger
}

// NewService loads the stored settings, falling back to the defaults when
// the store is empty.
func NewService(ctx context.Context, store Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	current, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		current = domain.DefaultSettings()
	}
	return &Service{store: store, current: current, logger: logger}, nil
}

func (s *Service) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.current)
}

// ResolveOptions returns the pipeline knobs for the current settings.
func (s *Service) ResolveOptions() domain.ResolveOptions {
	return s.Get().ResolveOptions()
}

// OnChange registers l for every later update.
func (s *Service) OnChange(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Update applies patch, persists the result and notifies listeners.
func (s *Service) Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	if patch.Opacity != nil && (*patch.Opacity < 0 || *patch.Opacity > 100) {
		return domain.Settings{}, fmt.Errorf("%w: opacity must be between 0 and 100", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	prev := s.current
	next := prev.Apply(patch)
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.current = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info("settings updated",
		slog.Bool("enable", next.Enable),
		slog.Int("opacity", next.Opacity),
		slog.Bool("lowPerformance", next.LowPerformance),
	)
	for _, l := range listeners {
		l(ctx, clone(prev), clone(next))
	}
	return clone(next), nil
}

func clone(s domain.Settings) domain.Settings {
	s.NGList = domain.NGList{
		Words:   append([]string(nil), s.NGList.Words...),
		UserIDs: append([]string(nil), s.NGList.UserIDs...),
	}
	return s
}
