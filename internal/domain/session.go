package domain

// PopupPayload is pushed to the popup observer. A nil payload clears it.
type PopupPayload struct {
	InitData      []InitData `json:"initData"`
	CommentsCount int        `json:"commentsCount"`
	KawaiiPct     float64    `json:"kawaiiPct"`
	Badge         string     `json:"badge"`
	Title         string     `json:"title"`
}

// SidePanelPayload is pushed to the side-panel observer. InitData is nil on
// the once-per-second time-sync pushes.
type SidePanelPayload struct {
	InitData    []InitData `json:"initData,omitempty"`
	CurrentTime float64    `json:"currentTime"`
}

// SessionSnapshot answers a panel asking the page for its current state.
type SessionSnapshot struct {
	TabID         string     `json:"tabId"`
	VOD           string     `json:"vod,omitempty"`
	State         string     `json:"state"`
	InitData      []InitData `json:"initData"`
	CommentsCount int        `json:"commentsCount"`
	KawaiiPct     float64    `json:"kawaiiPct"`
	CurrentTime   float64    `json:"currentTime"`
	Playing       bool       `json:"playing"`
}
