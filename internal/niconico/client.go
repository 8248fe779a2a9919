// Package niconico talks to the comment platform: structured search, video
// metadata lookup and comment thread retrieval. Every call degrades to an
// empty result on failure; callers never see upstream errors.
package niconico

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultSearchEndpoint     = "https://snapshot.search.nicovideo.jp/api/v2/snapshot/video/contents/search"
	defaultVideoEndpoint      = "https://www.nicovideo.jp/api/watch/v3"
	defaultVideoGuestEndpoint = "https://www.nicovideo.jp/api/watch/v3_guest"
	defaultThreadsEndpoint    = "https://nvcomment.nicovideo.jp/v1/threads"
	defaultUserAgent          = "overlaysync/1.0"
	defaultContext            = "overlaysync"

	redisKeyPrefix   = "overlaysync:upstream:"
	maxResponseBytes = 32 << 20
	maxErrorBody     = 256
)

const (
	endpointSearch  = "search"
	endpointVideo   = "video"
	endpointThreads = "threads"
)

var errMalformed = errors.New("malformed upstream response")

type Config struct {
	SearchEndpoint     string
	VideoEndpoint      string
	VideoGuestEndpoint string
	ThreadsEndpoint    string
	UserAgent          string
	// Context is sent as _context on search requests.
	Context string

	HTTPClient *http.Client
	Timeout    time.Duration

	// RatePerSecond limits outbound requests across all endpoints. Zero
	// disables limiting.
	RatePerSecond float64

	Redis    *redis.Client
	CacheTTL time.Duration

	Retry  *RetryConfig
	Logger *slog.Logger
}

type Client struct {
	searchEndpoint     string
	videoEndpoint      string
	videoGuestEndpoint string
	threadsEndpoint    string
	userAgent          string
	appContext         string

	http     *http.Client
	limiter  *rate.Limiter
	redis    *redis.Client
	cacheTTL time.Duration
	retry    RetryConfig
	health   *healthTracker
	logger   *slog.Logger
	now      func() time.Time
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}

	c := &Client{
		searchEndpoint:     orDefault(cfg.SearchEndpoint, defaultSearchEndpoint),
		videoEndpoint:      strings.TrimRight(orDefault(cfg.VideoEndpoint, defaultVideoEndpoint), "/"),
		videoGuestEndpoint: strings.TrimRight(orDefault(cfg.VideoGuestEndpoint, defaultVideoGuestEndpoint), "/"),
		threadsEndpoint:    orDefault(cfg.ThreadsEndpoint, defaultThreadsEndpoint),
		userAgent:          orDefault(cfg.UserAgent, defaultUserAgent),
		appContext:         orDefault(cfg.Context, defaultContext),
		http:               httpClient,
		redis:              cfg.Redis,
		cacheTTL:           cacheTTL,
		retry:              retry,
		health:             newHealthTracker(),
		logger:             logger.With(slog.String("component", "niconico")),
		now:                time.Now,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

// Diagnostics returns per-endpoint health for the upstream status route.
func (c *Client) Diagnostics() []EndpointDiagnostics {
	return c.health.diagnostics()
}

// enveloped is implemented by response bodies that carry meta.status.
type enveloped interface {
	metaStatus() int
}

type responseMeta struct {
	Status       int    `json:"status"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// doJSON sends the request built by build, decodes the body into dest (a
// non-nil pointer) and
// returns the raw body. Transient failures are retried; the final outcome is
// recorded in endpoint health.
func (c *Client) doJSON(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error), dest any) ([]byte, error) {
	if c.health.blocked(endpoint, c.now()) {
		return nil, fmt.Errorf("%s: %w", endpoint, errBlocked)
	}

	var body []byte
	started := time.Now()
	err := retryWithBackoff(ctx, c.retry, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{Code: resp.StatusCode, Body: truncateBody(raw)}
		}
		// Each attempt decodes into its own value; dest only sees the accepted one.
		fresh := reflect.New(reflect.TypeOf(dest).Elem())
		if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		if env, ok := fresh.Interface().(enveloped); ok {
			if status := env.metaStatus(); status != 0 && (status < 200 || status >= 300) {
				return &statusError{Code: status}
			}
		}
		reflect.ValueOf(dest).Elem().Set(fresh.Elem())
		body = raw
		return nil
	})
	c.health.record(endpoint, err, time.Since(started), c.now())
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) cacheGet(ctx context.Context, kind, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, redisKeyPrefix+kind+":"+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("cache read failed", slog.String("kind", kind), slog.String("error", err.Error()))
		}
		cacheMiss(kind)
		return nil, false
	}
	cacheHit(kind)
	return data, true
}

func (c *Client) cacheSet(ctx context.Context, kind, key string, data []byte) {
	if c.redis == nil || len(data) == 0 {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+kind+":"+key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug("cache write failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func truncateBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
