package niconico

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"overlaysync/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		SearchEndpoint:     srv.URL + "/search",
		VideoEndpoint:      srv.URL + "/watch/v3",
		VideoGuestEndpoint: srv.URL + "/watch/v3_guest",
		ThreadsEndpoint:    srv.URL + "/v1/threads",
		UserAgent:          "overlaysync-test",
		HTTPClient:         srv.Client(),
		Retry:              &RetryConfig{MaxAttempts: 1},
	})
	return client, srv
}

func TestSearchBuildsStructuredQuery(t *testing.T) {
	var (
		mu  sync.Mutex
		got *http.Request
	)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = r.Clone(context.Background())
		mu.Unlock()
		_, _ = io.WriteString(w, `{"meta":{"status":200},"data":[
			{"contentId":"so1","title":"ep1","channelId":2632720,"lengthSeconds":1435,"tags":"アニメ 公式"},
			{"contentId":"sm2","title":"user upload","channelId":null,"lengthSeconds":1500,"tags":""}
		]}`)
	}))

	candidates := client.Search(context.Background(), domain.SearchQuery{
		Q:       "ＴＥＳＴ　タイトル",
		Targets: domain.TargetsFor(true),
		Limit:   100,
		Filters: domain.Filters{
			"lengthSeconds": {"gte": 1432.9, "lte": 1442.2},
			"genre.keyword": {"0": "アニメ"},
		},
	})

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("expected a request")
	}
	q := got.URL.Query()
	checks := map[string]string{
		"q":                           "TEST タイトル",
		"targets":                     "title",
		"fields":                      "contentId,title,channelId,lengthSeconds,tags",
		"_sort":                       "+startTime",
		"_limit":                      "100",
		"_context":                    "overlaysync",
		"filters[lengthSeconds][gte]": "1432",
		"filters[lengthSeconds][lte]": "1442",
		"filters[genre.keyword][0]":   "アニメ",
	}
	for key, want := range checks {
		if v := q.Get(key); v != want {
			t.Errorf("param %s = %q, want %q", key, v, want)
		}
	}
	if ua := got.Header.Get("User-Agent"); ua != "overlaysync-test" {
		t.Errorf("User-Agent = %q", ua)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if !candidates[0].HasChannel() || candidates[1].HasChannel() {
		t.Fatalf("channel flags wrong: %+v", candidates)
	}
	if length, ok := candidates[0].Length(); !ok || length != 1435 {
		t.Fatalf("length = %d, %v", length, ok)
	}
	if len(candidates[0].Tags) != 2 || candidates[0].Tags[1] != "公式" {
		t.Fatalf("tags = %#v", candidates[0].Tags)
	}
}

func TestSearchFailuresYieldNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadRequest)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"meta":`)
			},
		},
		{
			name: "meta error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"meta":{"status":400,"errorCode":"QUERY_PARSE_ERROR"}}`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler)
			if got := client.Search(context.Background(), domain.SearchQuery{Q: "x"}); got != nil {
				t.Fatalf("expected nil, got %#v", got)
			}
		})
	}
}

func TestVideoSkipsInvalidIDsWithoutRequest(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for _, id := range []string{"", "SO1", "so", "so1a", "../so1"} {
		if meta := client.Video(context.Background(), id, true); meta != nil {
			t.Fatalf("expected nil for %q", id)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}
}

func TestVideosSelectsVariantAndKeepsOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		q := r.URL.Query()
		if q.Get("_frontendId") != "6" || q.Get("_frontendVersion") != "0" {
			t.Errorf("missing frontend params: %s", r.URL.RawQuery)
		}
		track := q.Get("actionTrackId")
		if parts := strings.SplitN(track, "_", 2); len(parts) != 2 || len(parts[0]) != 10 || parts[1] != q.Get("t") {
			t.Errorf("bad actionTrackId %q (t=%q)", track, q.Get("t"))
		}
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if id == "so2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"meta":{"status":200},"data":{"video":{"id":%q,"title":"t","duration":1420},
			"channel":{"id":"ch2632720","isOfficialAnime":true},
			"comment":{"nvComment":{"server":"https://nv.example","threadKey":"k","params":{"language":"ja-jp"}}}}}`, id)
	}))

	got := client.Videos(context.Background(), []string{"so3", "so2", "so1"}, true)
	if len(got) != 2 || got[0].ID() != "so3" || got[1].ID() != "so1" {
		t.Fatalf("unexpected batch result: %+v", got)
	}
	if !got[0].IsOfficialAnime() {
		t.Fatal("expected official anime channel")
	}
	if string(got[0].Comment.NvComment.Params) != `{"language":"ja-jp"}` {
		t.Fatalf("params not kept verbatim: %s", got[0].Comment.NvComment.Params)
	}
	mu.Lock()
	for _, p := range paths {
		if !strings.HasPrefix(p, "/watch/v3_guest/") {
			t.Fatalf("guest fetch used %s", p)
		}
	}
	paths = nil
	mu.Unlock()

	client.Video(context.Background(), "so1", false)
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.HasPrefix(paths[0], "/watch/v3/") {
		t.Fatalf("authenticated fetch used %v", paths)
	}
}

func TestThreadsPostsLocatorAndAppliesNGList(t *testing.T) {
	var (
		mu     sync.Mutex
		body   threadsRequest
		header http.Header
	)
	client, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/threads" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"meta":{"status":200},"data":{"threads":[
			{"id":"1","fork":"main","commentCount":3,"comments":[
				{"id":"a","no":1,"vposMs":1000,"body":"かわいい","userId":"u1"},
				{"id":"b","no":2,"vposMs":2000,"body":"SPOILER here","userId":"u2"},
				{"id":"c","no":3,"vposMs":3000,"body":"ok","userId":"bad"}
			]}
		]}}`)
	}))

	when := time.Unix(1700000000, 0)
	threads := client.Threads(context.Background(), domain.NvComment{
		Server:    srv.URL,
		ThreadKey: "key",
		Params:    json.RawMessage(`{"targets":[]}`),
	}, ThreadOptions{
		When:      when,
		UseNGList: true,
		NGList:    domain.NGList{Words: []string{"spoiler"}, UserIDs: []string{"bad"}},
	})

	mu.Lock()
	defer mu.Unlock()
	for key, want := range map[string]string{
		"X-Frontend-Id":      "6",
		"X-Frontend-Version": "0",
		"X-Client-Os-Type":   "others",
	} {
		if header.Get(key) != want {
			t.Errorf("header %s = %q", key, header.Get(key))
		}
	}
	if body.ThreadKey != "key" || body.Additionals.When != when.Unix() || string(body.Params) != `{"targets":[]}` {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(threads) != 1 || threads[0].CommentCount != 1 || threads[0].Comments[0].ID != "a" {
		t.Fatalf("NG list not applied: %+v", threads)
	}
}

func TestThreadsFailureYieldsNil(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	if got := client.Threads(context.Background(), domain.NvComment{ThreadKey: "k"}, ThreadOptions{}); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestThreadsRetryDoesNotKeepRejectedPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"meta":{"status":503},"data":{"threads":[
				{"id":"1","fork":"main","commentCount":1,"comments":[{"id":"stale","no":1}]}
			]}}`)
			return
		}
		_, _ = io.WriteString(w, `{"meta":{"status":200}}`)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		ThreadsEndpoint: srv.URL + "/v1/threads",
		HTTPClient:      srv.Client(),
		Retry:           &RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
	})

	threads := client.Threads(context.Background(), domain.NvComment{ThreadKey: "k"}, ThreadOptions{})
	if calls.Load() != 2 {
		t.Fatalf("expected a retry, got %d calls", calls.Load())
	}
	if len(threads) != 0 {
		t.Fatalf("rejected attempt leaked into result: %+v", threads)
	}
}

func TestEndpointBlockedAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))

	for i := 0; i < endpointFailureThreshold+2; i++ {
		client.Search(context.Background(), domain.SearchQuery{Q: "x"})
	}
	if got := calls.Load(); got != endpointFailureThreshold {
		t.Fatalf("expected %d requests before blocking, got %d", endpointFailureThreshold, got)
	}

	diag := client.Diagnostics()
	if len(diag) != 1 || diag[0].Endpoint != endpointSearch || diag[0].BlockedUntil == nil {
		t.Fatalf("unexpected diagnostics %+v", diag)
	}
}

func TestRetryWithBackoffRetriesTransientOnly(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return &statusError{Code: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = retryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("%w: bad json", errMalformed)
	})
	if !errors.Is(err, errMalformed) || calls != 1 {
		t.Fatalf("malformed payload must not be retried, calls=%d err=%v", calls, err)
	}
}

func TestBlockDurationGrowsAndCaps(t *testing.T) {
	if got := blockDuration(endpointFailureThreshold); got != endpointBlockBase {
		t.Fatalf("first block = %v", got)
	}
	if got := blockDuration(endpointFailureThreshold + 1); got != 2*endpointBlockBase {
		t.Fatalf("second block = %v", got)
	}
	if got := blockDuration(50); got != endpointBlockMax {
		t.Fatalf("cap = %v", got)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{in: "  ＡＢＣ　　１２３ ", want: "ABC 123"},
		{in: "ｶﾀｶﾅ", want: "カタカナ"},
		{in: "第1話\t「始まり」", want: "第1話 「始まり」"},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
