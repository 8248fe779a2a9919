package niconico

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"overlaysync/internal/domain"
)

type searchResponse struct {
	Meta responseMeta `json:"meta"`
	Data []searchItem `json:"data"`
}

func (r *searchResponse) metaStatus() int { return r.Meta.Status }

type searchItem struct {
	ContentID     string          `json:"contentId"`
	Title         string          `json:"title"`
	ChannelID     *int64          `json:"channelId"`
	LengthSeconds *int            `json:"lengthSeconds"`
	Tags          json.RawMessage `json:"tags"`
}

// Search runs one structured query. Any failure is logged and yields nil.
func (c *Client) Search(ctx context.Context, query domain.SearchQuery) []domain.SearchCandidate {
	params := c.searchParams(query)
	if params.Get("q") == "" {
		return nil
	}
	key := params.Encode()

	var resp searchResponse
	if cached, ok := c.cacheGet(ctx, endpointSearch, key); ok {
		if err := json.Unmarshal(cached, &resp); err == nil {
			return resp.candidates()
		}
		resp = searchResponse{}
	}

	reqURL := c.searchEndpoint + "?" + key
	raw, err := c.doJSON(ctx, endpointSearch, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	}, &resp)
	if err != nil {
		c.logger.Warn("search failed",
			slog.String("q", params.Get("q")),
			slog.String("error", err.Error()),
		)
		return nil
	}
	c.cacheSet(ctx, endpointSearch, key, raw)
	return resp.candidates()
}

func (r searchResponse) candidates() []domain.SearchCandidate {
	if len(r.Data) == 0 {
		return nil
	}
	out := make([]domain.SearchCandidate, 0, len(r.Data))
	for _, item := range r.Data {
		if strings.TrimSpace(item.ContentID) == "" {
			continue
		}
		out = append(out, domain.SearchCandidate{
			ContentID:     item.ContentID,
			Title:         item.Title,
			ChannelID:     item.ChannelID,
			LengthSeconds: item.LengthSeconds,
			Tags:          decodeTags(item.Tags),
		})
	}
	return out
}

// decodeTags accepts the index's space separated string as well as a list.
func decodeTags(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.Fields(joined)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

func (c *Client) searchParams(query domain.SearchQuery) url.Values {
	params := url.Values{}
	params.Set("q", NormalizeTitle(query.Q))

	targets := query.Targets
	if len(targets) == 0 {
		targets = domain.TargetsFor(false)
	}
	params.Set("targets", strings.Join(targets, ","))

	fields := query.Fields
	if len(fields) == 0 {
		fields = domain.DefaultSearchFields
	}
	params.Set("fields", strings.Join(fields, ","))

	sort := query.Sort
	if sort == "" {
		sort = domain.SortStartTimeAsc
	}
	params.Set("_sort", sort)

	if query.Offset > 0 {
		params.Set("_offset", strconv.Itoa(query.Offset))
	}
	if query.Limit > 0 {
		params.Set("_limit", strconv.Itoa(query.Limit))
	}
	appContext := query.Context
	if appContext == "" {
		appContext = c.appContext
	}
	params.Set("_context", appContext)

	for field, values := range query.Filters {
		for key, value := range values {
			formatted, ok := formatFilterValue(value)
			if !ok {
				continue
			}
			params.Set("filters["+field+"]["+key+"]", formatted)
		}
	}
	return params
}

// formatFilterValue renders one filter value. Numbers are floor-truncated.
func formatFilterValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatInt(int64(math.Floor(v)), 10), true
	case float32:
		return strconv.FormatInt(int64(math.Floor(float64(v))), 10), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return strconv.FormatInt(int64(math.Floor(f)), 10), true
		}
		return v.String(), true
	default:
		return "", false
	}
}
