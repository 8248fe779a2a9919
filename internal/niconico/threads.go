package niconico

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"overlaysync/internal/domain"
)

// ThreadOptions controls one thread fetch.
type ThreadOptions struct {
	// When asks the platform for the comment state at a past moment.
	When time.Time
	// UseNGList enables local suppression with NGList.
	UseNGList bool
	NGList    domain.NGList
}

type threadsRequest struct {
	Params      json.RawMessage   `json:"params"`
	ThreadKey   string            `json:"threadKey"`
	Additionals threadAdditionals `json:"additionals"`
}

type threadAdditionals struct {
	When int64 `json:"when,omitempty"`
}

type threadsResponse struct {
	Meta responseMeta `json:"meta"`
	Data struct {
		Threads []domain.CommentThread `json:"threads"`
	} `json:"data"`
}

func (r *threadsResponse) metaStatus() int { return r.Meta.Status }

// Threads retrieves every thread referenced by nv. Failures are logged and
// yield nil.
func (c *Client) Threads(ctx context.Context, nv domain.NvComment, opts ThreadOptions) []domain.CommentThread {
	payload := threadsRequest{
		Params:    nv.Params,
		ThreadKey: nv.ThreadKey,
	}
	if len(payload.Params) == 0 {
		payload.Params = json.RawMessage("{}")
	}
	if !opts.When.IsZero() {
		payload.Additionals.When = opts.When.Unix()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("encode threads request", slog.String("error", err.Error()))
		return nil
	}

	endpoint := c.threadsEndpoint
	if server := strings.TrimRight(strings.TrimSpace(nv.Server), "/"); server != "" {
		endpoint = server + "/v1/threads"
	}

	var resp threadsResponse
	_, err = c.doJSON(ctx, endpointThreads, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Frontend-Id", "6")
		req.Header.Set("X-Frontend-Version", "0")
		req.Header.Set("X-Client-Os-Type", "others")
		return req, nil
	}, &resp)
	if err != nil {
		c.logger.Warn("threads fetch failed",
			slog.String("threadKey", abbreviate(nv.ThreadKey)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	threads := resp.Data.Threads
	if opts.UseNGList && !opts.NGList.Empty() {
		threads = ApplyNGList(threads, opts.NGList)
	}
	return threads
}

// ApplyNGList drops comments whose body contains an NG word or whose author
// is an NG user. Each thread's CommentCount becomes the surviving count.
func ApplyNGList(threads []domain.CommentThread, list domain.NGList) []domain.CommentThread {
	words := make([]string, 0, len(list.Words))
	for _, w := range list.Words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	users := make(map[string]struct{}, len(list.UserIDs))
	for _, id := range list.UserIDs {
		if id = strings.TrimSpace(id); id != "" {
			users[id] = struct{}{}
		}
	}

	out := make([]domain.CommentThread, len(threads))
	for i, thread := range threads {
		kept := make([]domain.Comment, 0, len(thread.Comments))
		for _, comment := range thread.Comments {
			if _, blocked := users[comment.UserID]; blocked {
				continue
			}
			if containsAny(strings.ToLower(comment.Body), words) {
				continue
			}
			kept = append(kept, comment)
		}
		thread.Comments = kept
		thread.CommentCount = len(kept)
		out[i] = thread
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func abbreviate(s string) string {
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}
