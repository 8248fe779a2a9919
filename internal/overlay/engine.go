package overlay

import (
	"context"
	"fmt"
	"log/slog"

	"overlaysync/internal/domain"
	"overlaysync/internal/metrics"
)

const defaultQueueSize = 64

// Engine is one overlay session. Public methods enqueue a command and wait
// for the control goroutine to process it.
type Engine struct {
	surface   Surface
	player    Player
	observer  Observer
	scheduler Scheduler
	logger    *slog.Logger

	queue chan request
	done  chan struct{}

	// Owned by the control goroutine.
	model model
	timer Timer
}

type request struct {
	cmd   command
	query func(*Engine) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

type Option func(*Engine)

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.scheduler = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLowPerformance selects the fixed 33ms cadence from the start.
func WithLowPerformance(enabled bool) Option {
	return func(e *Engine) {
		e.model.lowPerformance = enabled
	}
}

// New starts a session over surface and player. The engine takes ownership
// of surface and closes it on Dispose.
func New(surface Surface, player Player, opts ...Option) *Engine {
	e := &Engine{
		surface:   surface,
		player:    player,
		observer:  nopObserver{},
		scheduler: realScheduler{},
		logger:    slog.Default(),
		queue:     make(chan request, defaultQueueSize),
		done:      make(chan struct{}),
		model:     newModel(false),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Init replaces the session's comment set.
func (e *Engine) Init(ctx context.Context, items []domain.InitData) error {
	return e.send(ctx, cmdInit{items: append([]domain.InitData(nil), items...)})
}

// Add unions items into the set, keeping the first entry per video id.
func (e *Engine) Add(ctx context.Context, items []domain.InitData) error {
	return e.send(ctx, cmdAdd{items: append([]domain.InitData(nil), items...)})
}

// Remove drops the given video ids from the set.
func (e *Engine) Remove(ctx context.Context, ids ...string) error {
	return e.send(ctx, cmdRemove{ids: append([]string(nil), ids...)})
}

func (e *Engine) Start(ctx context.Context) error {
	return e.send(ctx, cmdStart{})
}

func (e *Engine) Stop(ctx context.Context) error {
	return e.send(ctx, cmdStop{})
}

// Seek repaints once at the player's current position.
func (e *Engine) Seek(ctx context.Context) error {
	return e.send(ctx, cmdSeek{})
}

func (e *Engine) SetLowPerformance(ctx context.Context, enabled bool) error {
	return e.send(ctx, cmdSetLowPerformance{enabled: enabled})
}

// Dispose stops the loop, releases the surface and clears the observers.
// Every later call fails with domain.ErrSessionDisposed.
func (e *Engine) Dispose(ctx context.Context) error {
	return e.send(ctx, cmdDispose{})
}

// Done is closed once the session is disposed.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Snapshot reports the session state as seen by the control goroutine.
func (e *Engine) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	value, err := e.ask(ctx, func(e *Engine) (any, error) {
		return domain.SessionSnapshot{
			State:         e.model.state().String(),
			InitData:      nonNilItems(e.model.items),
			CommentsCount: e.model.stats.CommentsCount,
			KawaiiPct:     e.model.stats.KawaiiPct,
			CurrentTime:   e.player.CurrentTime(),
			Playing:       e.model.playing,
		}, nil
	})
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return value.(domain.SessionSnapshot), nil
}

// Capture composites a still frame and returns it JPEG encoded.
func (e *Engine) Capture(ctx context.Context, opts CaptureOptions) ([]byte, error) {
	value, err := e.ask(ctx, func(e *Engine) (any, error) {
		return capture(e.surface.Image(), e.surface.Size(), e.player.Frame(), opts)
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	_, err := e.submit(ctx, request{cmd: cmd, reply: make(chan result, 1)})
	return err
}

func (e *Engine) ask(ctx context.Context, query func(*Engine) (any, error)) (any, error) {
	return e.submit(ctx, request{query: query, reply: make(chan result, 1)})
}

func (e *Engine) submit(ctx context.Context, req request) (any, error) {
	select {
	case <-e.done:
		return nil, domain.ErrSessionDisposed
	default:
	}
	select {
	case e.queue <- req:
	case <-e.done:
		return nil, domain.ErrSessionDisposed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-e.done:
		select {
		case res := <-req.reply:
			return res.value, res.err
		default:
			return nil, domain.ErrSessionDisposed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// post enqueues a command from a timer callback without waiting for it.
func (e *Engine) post(cmd command) {
	select {
	case e.queue <- request{cmd: cmd}:
	case <-e.done:
	}
}

func (e *Engine) run() {
	for req := range e.queue {
		res := e.handle(req)
		if req.reply != nil {
			req.reply <- res
		}
		if e.model.disposed {
			close(e.done)
			e.drain()
			return
		}
	}
}

// drain fails every request that was queued behind the dispose.
func (e *Engine) drain() {
	for {
		select {
		case req := <-e.queue:
			if req.reply != nil {
				req.reply <- result{err: domain.ErrSessionDisposed}
			}
		default:
			return
		}
	}
}

func (e *Engine) handle(req request) (res result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("overlay command panicked", slog.Any("panic", r))
			res = result{err: fmt.Errorf("overlay: %v", r)}
		}
	}()

	if req.query != nil {
		value, err := req.query(e)
		return result{value: value, err: err}
	}

	obs := observation{
		currentTime: e.player.CurrentTime(),
		paused:      e.player.Paused(),
	}
	before := e.model.state()
	next, effects := reduce(e.model, req.cmd, obs)
	e.model = next
	e.apply(effects)

	if after := next.state(); after != before {
		metrics.SessionStateTransitionsTotal.WithLabelValues(before.String(), after.String()).Inc()
		e.logger.Debug("overlay state changed",
			slog.String("from", before.String()),
			slog.String("to", after.String()),
			slog.Int("comments", next.stats.CommentsCount),
		)
	}
	return result{}
}

func (e *Engine) apply(effects []effect) {
	for _, eff := range effects {
		switch eff.kind {
		case effClearSurface:
			e.surface.Clear()
		case effLoadSurface:
			if err := e.surface.Load(eff.threads); err != nil {
				e.logger.Warn("overlay surface load failed", slog.String("error", err.Error()))
			}
		case effPaint:
			if err := e.surface.Paint(eff.vpos); err != nil {
				metrics.PaintFailuresTotal.Inc()
				e.logger.Debug("overlay paint failed", slog.Int64("vpos", eff.vpos), slog.String("error", err.Error()))
			}
		case effScheduleTick:
			e.stopTimer()
			generation := eff.generation
			e.timer = e.scheduler.AfterFunc(eff.delay, func() {
				e.post(cmdTick{generation: generation})
			})
		case effCancelTick:
			e.stopTimer()
		case effNotifyPopup:
			e.observer.Popup(eff.popup)
		case effNotifySidePanel:
			e.observer.SidePanel(eff.sidePanel)
		case effRemoveSurface:
			e.surface.Close()
		case effClearObservers:
			e.observer.Popup(nil)
			e.observer.SidePanel(nil)
		}
	}
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
