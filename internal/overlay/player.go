package overlay

import (
	"fmt"
	"image"
	"sync"
	"time"

	"overlaysync/internal/domain"
)

const (
	EventPlaying        = "playing"
	EventPause          = "pause"
	EventSeeked         = "seeked"
	EventTimeUpdate     = "timeupdate"
	EventLoadedMetadata = "loadedmetadata"
)

// PlaybackEvent is a media element event reported by the page adapter.
type PlaybackEvent struct {
	Event       string  `json:"event"`
	CurrentTime float64 `json:"currentTime"`
}

// RemotePlayer mirrors a video element that lives in the browser. Between
// reports the position is extrapolated from the wall clock while playing.
type RemotePlayer struct {
	mu       sync.RWMutex
	position float64
	at       time.Time
	paused   bool
	frame    image.Image
	now      func() time.Time
}

func NewRemotePlayer() *RemotePlayer {
	return &RemotePlayer{paused: true, now: time.Now}
}

// Report records ev. Unknown events are rejected.
func (p *RemotePlayer) Report(ev PlaybackEvent) error {
	if ev.CurrentTime < 0 {
		return fmt.Errorf("%w: negative currentTime", domain.ErrInvalidRequest)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Event {
	case EventPlaying:
		p.paused = false
	case EventPause:
		p.paused = true
	case EventSeeked, EventTimeUpdate, EventLoadedMetadata:
	default:
		return fmt.Errorf("%w: unknown playback event %q", domain.ErrInvalidRequest, ev.Event)
	}
	p.position = ev.CurrentTime
	p.at = p.now()
	return nil
}

func (p *RemotePlayer) CurrentTime() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.paused || p.at.IsZero() {
		return p.position
	}
	return p.position + p.now().Sub(p.at).Seconds()
}

func (p *RemotePlayer) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// SetFrame stores the latest decoded video frame for captures.
func (p *RemotePlayer) SetFrame(frame image.Image) {
	p.mu.Lock()
	p.frame = frame
	p.mu.Unlock()
}

func (p *RemotePlayer) Frame() image.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame
}
