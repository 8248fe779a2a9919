package niconico

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"overlaysync/internal/domain"
)

var videoIDPattern = regexp.MustCompile(`^[a-z]+\d+$`)

const trackIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type videoResponse struct {
	Meta responseMeta          `json:"meta"`
	Data *domain.VideoMetadata `json:"data"`
}

func (r *videoResponse) metaStatus() int { return r.Meta.Status }

// ValidVideoID reports whether id looks like a content id the video API accepts.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

// Video fetches metadata for one id. guest selects the anonymous variant.
// Invalid ids and failures return nil.
func (c *Client) Video(ctx context.Context, id string, guest bool) *domain.VideoMetadata {
	if !ValidVideoID(id) {
		c.logger.Debug("skipping invalid video id", slog.String("videoId", id))
		return nil
	}

	variant := "auth"
	base := c.videoEndpoint
	if guest {
		variant = "guest"
		base = c.videoGuestEndpoint
	}
	cacheKey := variant + ":" + id

	var resp videoResponse
	if cached, ok := c.cacheGet(ctx, endpointVideo, cacheKey); ok {
		if err := json.Unmarshal(cached, &resp); err == nil && resp.Data != nil {
			return resp.Data
		}
		resp = videoResponse{}
	}

	raw, err := c.doJSON(ctx, endpointVideo, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.videoURL(base, id), nil)
	}, &resp)
	if err != nil {
		c.logger.Warn("video info fetch failed",
			slog.String("videoId", id),
			slog.String("variant", variant),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if resp.Data == nil || resp.Data.Video.ID == "" {
		c.logger.Warn("video info response without data", slog.String("videoId", id))
		return nil
	}
	c.cacheSet(ctx, endpointVideo, cacheKey, raw)
	return resp.Data
}

// Videos fetches metadata for each id in order. Failed ids are absent from
// the result; the batch always runs to the end.
func (c *Client) Videos(ctx context.Context, ids []string, guest bool) []domain.VideoMetadata {
	out := make([]domain.VideoMetadata, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if meta := c.Video(ctx, id, guest); meta != nil {
			out = append(out, *meta)
		}
	}
	return out
}

func (c *Client) videoURL(base, id string) string {
	nowMs := strconv.FormatInt(c.now().UnixMilli(), 10)
	params := url.Values{}
	params.Set("_frontendId", "6")
	params.Set("_frontendVersion", "0")
	params.Set("actionTrackId", randomTrackID()+"_"+nowMs)
	params.Set("t", nowMs)
	return base + "/" + url.PathEscape(id) + "?" + params.Encode()
}

func randomTrackID() string {
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = trackIDAlphabet[rand.IntN(len(trackIDAlphabet))]
	}
	return string(buf)
}
