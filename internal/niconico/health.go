package niconico

import (
	"errors"
	"sort"
	"sync"
	"time"

	"overlaysync/internal/metrics"
)

const (
	endpointFailureThreshold = 3
	endpointBlockBase        = 30 * time.Second
	endpointBlockMax         = 5 * time.Minute
)

var errBlocked = errors.New("upstream temporarily blocked after repeated failures")

// EndpointDiagnostics is the exported view of one upstream's health.
type EndpointDiagnostics struct {
	Endpoint            string     `json:"endpoint"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
}

type endpointHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	totalRequests       int64
	totalFailures       int64
}

type healthTracker struct {
	mu    sync.Mutex
	state map[string]*endpointHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{state: make(map[string]*endpointHealth)}
}

func (h *healthTracker) blocked(endpoint string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.state[endpoint]
	if state == nil || state.blockedUntil.IsZero() {
		return false
	}
	return now.Before(state.blockedUntil)
}

func (h *healthTracker) record(endpoint string, err error, latency time.Duration, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.state[endpoint]
	if state == nil {
		state = &endpointHealth{}
		h.state[endpoint] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(latency.Seconds())
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
		metrics.UpstreamAvailable.WithLabelValues(endpoint).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, failureStatus(err)).Inc()

	if state.consecutiveFailures >= endpointFailureThreshold {
		state.blockedUntil = now.Add(blockDuration(state.consecutiveFailures))
		metrics.UpstreamAvailable.WithLabelValues(endpoint).Set(0)
	}
}

func (h *healthTracker) diagnostics() []EndpointDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]EndpointDiagnostics, 0, len(h.state))
	for name, state := range h.state {
		item := EndpointDiagnostics{
			Endpoint:            name,
			ConsecutiveFailures: state.consecutiveFailures,
			LastError:           state.lastError,
			LastLatencyMS:       state.lastLatency.Milliseconds(),
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
		}
		if !state.blockedUntil.IsZero() {
			value := state.blockedUntil
			item.BlockedUntil = &value
		}
		if !state.lastSuccessAt.IsZero() {
			value := state.lastSuccessAt
			item.LastSuccessAt = &value
		}
		if !state.lastFailureAt.IsZero() {
			value := state.lastFailureAt
			item.LastFailureAt = &value
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Endpoint < items[j].Endpoint })
	return items
}

// blockDuration is base × 2^(failures - threshold), capped.
func blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - endpointFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := endpointBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d >= endpointBlockMax {
			return endpointBlockMax
		}
	}
	return d
}

func failureStatus(err error) string {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return "http_error"
	case errors.Is(err, errMalformed):
		return "malformed"
	case isTransientError(err):
		return "transport"
	default:
		return "error"
	}
}

func cacheHit(kind string) {
	metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
}

func cacheMiss(kind string) {
	metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
}
