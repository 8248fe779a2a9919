// Package overlay owns one comment overlay session: the merged comment set,
// the render loop driven by reported playback time, observer pushes and
// still captures. Every mutation runs on the session's control goroutine.
package overlay

import (
	"image"

	"overlaysync/internal/domain"
)

// Surface is the comment layer a session paints into.
type Surface interface {
	// Load replaces the comment set. Threads are already deduplicated.
	Load(threads []domain.CommentThread) error
	// Clear wipes the painted pixels but keeps the loaded comments.
	Clear()
	// Paint draws the comments visible at vpos, in hundredths of a second.
	Paint(vpos int64) error
	// Image is the current layer, transparent where nothing is drawn.
	Image() image.Image
	Size() image.Point
	// Close releases the surface. It is never used afterwards.
	Close()
}

// Player reports the host video element.
type Player interface {
	CurrentTime() float64
	Paused() bool
	// Frame is the latest video frame, or nil when none was reported.
	Frame() image.Image
}

// Observer receives panel pushes. A nil payload clears the panel.
type Observer interface {
	Popup(payload *domain.PopupPayload)
	SidePanel(payload *domain.SidePanelPayload)
}

type nopObserver struct{}

func (nopObserver) Popup(*domain.PopupPayload)         {}
func (nopObserver) SidePanel(*domain.SidePanelPayload) {}
