package observer

import (
	"overlaysync/internal/domain"
	"overlaysync/internal/overlay"
)

type tabObserver struct {
	hub *Hub
	tab string
}

// ForTab returns the overlay observer that publishes to the panels of tab.
// A nil payload is delivered as JSON null.
func (h *Hub) ForTab(tab string) overlay.Observer {
	return tabObserver{hub: h, tab: tab}
}

func (o tabObserver) Popup(payload *domain.PopupPayload) {
	o.hub.Publish(o.tab, TypePopup, payload)
}

func (o tabObserver) SidePanel(payload *domain.SidePanelPayload) {
	o.hub.Publish(o.tab, TypeSidePanel, payload)
}
