package domain

import "encoding/json"

// SearchCandidate is one hit returned by the comment platform's search API.
// A non-nil ChannelID marks an upload from an official channel.
type SearchCandidate struct {
	ContentID     string   `json:"contentId"`
	Title         string   `json:"title"`
	ChannelID     *int64   `json:"channelId,omitempty"`
	LengthSeconds *int     `json:"lengthSeconds,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

func (c SearchCandidate) HasChannel() bool {
	return c.ChannelID != nil
}

// Length returns the candidate length in seconds and whether the search
// response carried it.
func (c SearchCandidate) Length() (int, bool) {
	if c.LengthSeconds == nil {
		return 0, false
	}
	return *c.LengthSeconds, true
}

type Video struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

type Channel struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	IsOfficialAnime bool   `json:"isOfficialAnime"`
}

type Owner struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname,omitempty"`
}

// NvComment is the thread locator the video API hands out. Params is kept
// verbatim and echoed back to the threads endpoint.
type NvComment struct {
	Server    string          `json:"server,omitempty"`
	ThreadKey string          `json:"threadKey"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type CommentInfo struct {
	NvComment NvComment `json:"nvComment"`
}

// VideoMetadata is fetched once per pipeline run and never modified.
type VideoMetadata struct {
	Video   Video       `json:"video"`
	Channel *Channel    `json:"channel,omitempty"`
	Owner   *Owner      `json:"owner,omitempty"`
	Comment CommentInfo `json:"comment"`
}

func (v VideoMetadata) ID() string {
	return v.Video.ID
}

func (v VideoMetadata) IsOfficialAnime() bool {
	return v.Channel != nil && v.Channel.IsOfficialAnime
}
