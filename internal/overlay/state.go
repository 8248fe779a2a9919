package overlay

import (
	"math"
	"time"

	"overlaysync/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateReady
	StatePlaying
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateDisposed:
		return "disposed"
	default:
		return "idle"
	}
}

const (
	frameInterval          = 16 * time.Millisecond
	lowPerformanceInterval = 33 * time.Millisecond
)

// model is the whole mutable state of a session. It is only touched by
// reduce on the control goroutine.
type model struct {
	disposed bool
	items    []domain.InitData
	threads  []domain.CommentThread
	stats    Stats
	// playing is the play flag set by start and cleared by stop.
	playing bool
	// looping is true while a tick is scheduled.
	looping        bool
	lowPerformance bool
	generation     uint64
	lastSecond     int64
}

func newModel(lowPerformance bool) model {
	return model{lowPerformance: lowPerformance, lastSecond: -1}
}

func (m model) state() State {
	switch {
	case m.disposed:
		return StateDisposed
	case m.looping:
		return StatePlaying
	case len(m.items) > 0:
		return StateReady
	default:
		return StateIdle
	}
}

func (m model) tickInterval() time.Duration {
	if m.lowPerformance {
		return lowPerformanceInterval
	}
	return frameInterval
}

// observation is what the control goroutine read from the player right
// before reducing a command.
type observation struct {
	currentTime float64
	paused      bool
}

// vpos converts seconds to the comment track's hundredths.
func (o observation) vpos() int64 {
	return int64(math.Floor(o.currentTime * 100))
}

type command interface{ isCommand() }

type (
	cmdInit              struct{ items []domain.InitData }
	cmdAdd               struct{ items []domain.InitData }
	cmdRemove            struct{ ids []string }
	cmdStart             struct{}
	cmdStop              struct{}
	cmdSeek              struct{}
	cmdTick              struct{ generation uint64 }
	cmdSetLowPerformance struct{ enabled bool }
	cmdDispose           struct{}
)

func (cmdInit) isCommand()              {}
func (cmdAdd) isCommand()               {}
func (cmdRemove) isCommand()            {}
func (cmdStart) isCommand()             {}
func (cmdStop) isCommand()              {}
func (cmdSeek) isCommand()              {}
func (cmdTick) isCommand()              {}
func (cmdSetLowPerformance) isCommand() {}
func (cmdDispose) isCommand()           {}

type effectKind int

const (
	effClearSurface effectKind = iota
	effLoadSurface
	effPaint
	effScheduleTick
	effCancelTick
	effNotifyPopup
	effNotifySidePanel
	effRemoveSurface
	effClearObservers
)

type effect struct {
	kind       effectKind
	threads    []domain.CommentThread
	vpos       int64
	generation uint64
	delay      time.Duration
	popup      *domain.PopupPayload
	sidePanel  *domain.SidePanelPayload
}

// reduce applies cmd to m and returns the next model plus the side effects
// the control goroutine must perform, in order. It has no side effects.
func reduce(m model, cmd command, obs observation) (model, []effect) {
	if m.disposed {
		return m, nil
	}

	switch c := cmd.(type) {
	case cmdInit:
		return reduceInit(m, c.items, obs)

	case cmdAdd:
		if len(c.items) == 0 {
			return m, nil
		}
		return reduceInit(m, domain.MergeInitData(m.items, c.items), obs)

	case cmdRemove:
		if len(c.ids) == 0 {
			return m, nil
		}
		drop := make(map[string]struct{}, len(c.ids))
		for _, id := range c.ids {
			drop[id] = struct{}{}
		}
		kept := make([]domain.InitData, 0, len(m.items))
		for _, item := range m.items {
			if _, ok := drop[item.VideoID()]; !ok {
				kept = append(kept, item)
			}
		}
		return reduceInit(m, kept, obs)

	case cmdStart:
		return reduceStart(m, obs, nil)

	case cmdStop:
		if !m.playing && !m.looping {
			return m, nil
		}
		m.playing = false
		m.looping = false
		m.generation++
		return m, []effect{{kind: effCancelTick}}

	case cmdSeek:
		return m, []effect{{kind: effPaint, vpos: obs.vpos()}}

	case cmdTick:
		if c.generation != m.generation || !m.looping {
			return m, nil
		}
		return loopStep(m, obs, nil)

	case cmdSetLowPerformance:
		m.lowPerformance = c.enabled
		return m, nil

	case cmdDispose:
		m.disposed = true
		m.playing = false
		m.looping = false
		m.generation++
		m.items = nil
		m.threads = nil
		m.stats = Stats{}
		return m, []effect{
			{kind: effCancelTick},
			{kind: effClearSurface},
			{kind: effRemoveSurface},
			{kind: effClearObservers},
		}
	}
	return m, nil
}

// reduceInit replaces the comment set: stop, clear, reload, paint once,
// resume if the element was playing, then tell the observers.
func reduceInit(m model, items []domain.InitData, obs observation) (model, []effect) {
	wasPlaying := m.playing

	effects := []effect{
		{kind: effClearObservers},
		{kind: effCancelTick},
		{kind: effClearSurface},
	}
	m.playing = false
	m.looping = false
	m.generation++

	if len(items) == 0 {
		items = nil
	}
	m.items = items
	m.threads = uniqueThreads(items)
	m.stats = computeStats(m.threads)

	effects = append(effects,
		effect{kind: effLoadSurface, threads: m.threads},
		effect{kind: effPaint, vpos: obs.vpos()},
	)

	if wasPlaying || !obs.paused {
		m, effects = reduceStart(m, obs, effects)
	}

	effects = append(effects,
		effect{kind: effNotifyPopup, popup: &domain.PopupPayload{
			InitData:      nonNilItems(m.items),
			CommentsCount: m.stats.CommentsCount,
			KawaiiPct:     m.stats.KawaiiPct,
			Badge:         BadgeText(m.stats.CommentsCount),
			Title:         TitleText(m.stats),
		}},
		effect{kind: effNotifySidePanel, sidePanel: &domain.SidePanelPayload{
			InitData:    nonNilItems(m.items),
			CurrentTime: obs.currentTime,
		}},
	)
	return m, effects
}

func reduceStart(m model, obs observation, effects []effect) (model, []effect) {
	if m.playing {
		return m, effects
	}
	m.playing = true
	m.looping = true
	m.generation++
	return loopStep(m, obs, effects)
}

// loopStep is one iteration of the render loop. The loop only continues
// while the play flag is set and there is something to draw.
func loopStep(m model, obs observation, effects []effect) (model, []effect) {
	if !m.playing || m.stats.CommentsCount <= 0 {
		m.looping = false
		return m, effects
	}
	m.looping = true
	effects = append(effects, effect{kind: effPaint, vpos: obs.vpos()})

	second := int64(math.Floor(obs.currentTime))
	if second != m.lastSecond {
		m.lastSecond = second
		effects = append(effects, effect{kind: effNotifySidePanel, sidePanel: &domain.SidePanelPayload{
			CurrentTime: float64(second),
		}})
	}

	effects = append(effects, effect{kind: effScheduleTick, generation: m.generation, delay: m.tickInterval()})
	return m, effects
}

func nonNilItems(items []domain.InitData) []domain.InitData {
	if items == nil {
		return []domain.InitData{}
	}
	return items
}
