package domain

import "time"

// ResolveRequest is what a streaming-page adapter sends after scraping the page.
type ResolveRequest struct {
	Title         string   `json:"title"`
	Duration      float64  `json:"duration"`
	StrictMatch   *bool    `json:"strictMatch,omitempty"`
	DurationDiff  *float64 `json:"durationDiff,omitempty"`
	Filters       Filters  `json:"filters,omitempty"`
	EpisodeNumber *int     `json:"episodeNumber,omitempty"`
}

// ResolveOptions carries the user settings that steer one pipeline run.
type ResolveOptions struct {
	StrictMatch bool
	Fallback    bool
	UseNGList   bool
	NGList      NGList
	// When asks for the comment state at a past moment. Zero means now.
	When time.Time
}

// NGList is the local suppression list applied to fetched threads.
type NGList struct {
	Words   []string `json:"words,omitempty" bson:"words,omitempty"`
	UserIDs []string `json:"userIds,omitempty" bson:"userIds,omitempty"`
}

func (n NGList) Empty() bool {
	return len(n.Words) == 0 && len(n.UserIDs) == 0
}
