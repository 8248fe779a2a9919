package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"overlaysync/internal/domain"
	"overlaysync/internal/niconico"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []domain.SearchQuery
	answer  func(domain.SearchQuery) []domain.SearchCandidate
}

func (f *fakeSearcher) Search(_ context.Context, q domain.SearchQuery) []domain.SearchCandidate {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.answer == nil {
		return nil
	}
	return f.answer(q)
}

type fakeVideos struct {
	mu     sync.Mutex
	guest  []bool
	videos map[string]domain.VideoMetadata
}

func (f *fakeVideos) Videos(_ context.Context, ids []string, guest bool) []domain.VideoMetadata {
	f.mu.Lock()
	f.guest = append(f.guest, guest)
	f.mu.Unlock()
	var out []domain.VideoMetadata
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

type fakeThreads struct {
	mu      sync.Mutex
	calls   int
	opts    []niconico.ThreadOptions
	threads map[string][]domain.CommentThread
	block   chan struct{}
}

func (f *fakeThreads) Threads(_ context.Context, nv domain.NvComment, opts niconico.ThreadOptions) []domain.CommentThread {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls++
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	threads, ok := f.threads[nv.ThreadKey]
	if !ok {
		return nil
	}
	// Decoded responses are fresh every time.
	return domain.InitData{Threads: threads}.Clone().Threads
}

func video(id string, duration float64, official bool) domain.VideoMetadata {
	return domain.VideoMetadata{
		Video:   domain.Video{ID: id, Duration: duration},
		Channel: &domain.Channel{ID: "ch1", IsOfficialAnime: official},
		Comment: domain.CommentInfo{NvComment: domain.NvComment{ThreadKey: id}},
	}
}

func mainThread(vpos ...int64) []domain.CommentThread {
	comments := make([]domain.Comment, len(vpos))
	for i, v := range vpos {
		comments[i] = domain.Comment{No: i + 1, VposMs: v}
	}
	return []domain.CommentThread{
		{ID: "1", Fork: "main", CommentCount: len(vpos), Comments: comments},
		{ID: "1", Fork: domain.ForkEasy, CommentCount: 5},
		{ID: "2", Fork: "owner", CommentCount: 0},
	}
}

func newFixture() (*fakeSearcher, *fakeVideos, *fakeThreads) {
	search := &fakeSearcher{answer: func(q domain.SearchQuery) []domain.SearchCandidate {
		if _, dedicated := q.Filters["tagsExact"]; dedicated {
			return []domain.SearchCandidate{
				candidate("sm30", "コメント専用 第3話", 1497, false),
				candidate("so1", "dup", 1497, false),
			}
		}
		if _, standalone := q.Filters["lengthSeconds"]["gte"]; standalone {
			return []domain.SearchCandidate{candidate("so1", "テストアニメ 第3話", 1435, true)}
		}
		return []domain.SearchCandidate{
			candidate("so10", "テストアニメ 第3話 前編", 700, true),
			candidate("so11", "テストアニメ 第3話 後編", 720, true),
			candidate("so12", "テストアニメ 第3話 中編", 10, true),
		}
	}}
	videos := &fakeVideos{videos: map[string]domain.VideoMetadata{
		"so1":  video("so1", 1435, false),
		"so10": video("so10", 700, true),
		"so11": video("so11", 720, true),
		"so12": video("so12", 10, false),
		"sm30": video("sm30", 1497, false),
	}}
	threads := &fakeThreads{threads: map[string][]domain.CommentThread{
		"so1":  mainThread(0, 5000),
		"so10": mainThread(100),
		"so11": mainThread(200),
		"sm30": mainThread(70000),
	}}
	return search, videos, threads
}

func TestPipelineResolvesBothStrategies(t *testing.T) {
	search, videos, threads := newFixture()
	p := NewPipeline(search, videos, threads)

	got := p.Resolve(context.Background(),
		domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437},
		domain.ResolveOptions{Fallback: true},
	)

	wantIDs := []string{"so1", "so10", "so11", "sm30"}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d videos, got %d", len(wantIDs), len(got))
	}
	for i, id := range wantIDs {
		if got[i].VideoID() != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].VideoID(), id)
		}
		if len(got[i].Threads) != 1 || got[i].Threads[0].Fork != "main" {
			t.Fatalf("%s threads not filtered: %+v", id, got[i].Threads)
		}
	}

	// Standalone: (1437-1435)/2 = 1s.
	if c := got[0].Threads[0].Comments; c[0].VposMs != 1000 || c[1].VposMs != 6000 {
		t.Fatalf("standalone offset wrong: %+v", c)
	}
	// Split parts 700+720 (so12 is not official) = 1420, (1437-1420)/2 = 8.5s.
	if v := got[1].Threads[0].Comments[0].VposMs; v != 8600 {
		t.Fatalf("split part 1 vpos = %d", v)
	}
	if v := got[2].Threads[0].Comments[0].VposMs; v != 8700 {
		t.Fatalf("split part 2 vpos = %d", v)
	}
	// Dedicated: floor(1437-1497)*1000.
	if v := got[3].Threads[0].Comments[0].VposMs; v != 10000 {
		t.Fatalf("dedicated vpos = %d", v)
	}

	for _, guest := range videos.guest {
		if !guest {
			t.Fatal("guest lookups expected without NG list")
		}
	}
}

func TestPipelineSkipsDedicatedWhenDisabled(t *testing.T) {
	search, videos, threads := newFixture()
	p := NewPipeline(search, videos, threads)

	got := p.Resolve(context.Background(),
		domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437},
		domain.ResolveOptions{},
	)
	if len(got) != 3 {
		t.Fatalf("expected direct results only, got %d", len(got))
	}
	for _, q := range search.queries {
		if _, ok := q.Filters["tagsExact"]; ok {
			t.Fatal("dedicated query issued while disabled")
		}
	}
}

func TestPipelineRunsDedicatedWhenDirectFindsNothing(t *testing.T) {
	search, videos, threads := newFixture()
	inner := search.answer
	search.answer = func(q domain.SearchQuery) []domain.SearchCandidate {
		if _, dedicated := q.Filters["tagsExact"]; dedicated {
			return inner(q)
		}
		return nil
	}
	p := NewPipeline(search, videos, threads)

	got := p.Resolve(context.Background(),
		domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437},
		domain.ResolveOptions{Fallback: true},
	)
	if len(got) != 2 || got[0].VideoID() != "sm30" || got[1].VideoID() != "so1" {
		t.Fatalf("unexpected fallback result %+v", got)
	}
	// so1 found via the dedicated search ends aligned: floor(1437-1435)*1000.
	if v := got[1].Threads[0].Comments[0].VposMs; v != 2000 {
		t.Fatalf("dedicated alignment for so1 = %d", v)
	}
}

func TestPipelinePassesNGListThrough(t *testing.T) {
	search, videos, threads := newFixture()
	p := NewPipeline(search, videos, threads)
	ng := domain.NGList{Words: []string{"spoiler"}}

	p.Resolve(context.Background(),
		domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437},
		domain.ResolveOptions{UseNGList: true, NGList: ng},
	)
	for _, guest := range videos.guest {
		if guest {
			t.Fatal("authenticated lookups expected with NG list")
		}
	}
	if len(threads.opts) == 0 {
		t.Fatal("expected thread fetches")
	}
	for _, opts := range threads.opts {
		if !opts.UseNGList || len(opts.NGList.Words) != 1 {
			t.Fatalf("NG list not passed: %+v", opts)
		}
	}
}

func TestPipelinePassesWhenThrough(t *testing.T) {
	search, videos, threads := newFixture()
	p := NewPipeline(search, videos, threads)
	when := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	p.Resolve(context.Background(),
		domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437},
		domain.ResolveOptions{Fallback: true, When: when},
	)
	if len(threads.opts) == 0 {
		t.Fatal("expected thread fetches")
	}
	for _, opts := range threads.opts {
		if !opts.When.Equal(when) {
			t.Fatalf("when not passed: %v", opts.When)
		}
	}
}

func TestPipelineEmitsDuplicateThreadOnce(t *testing.T) {
	search, videos, threads := newFixture()
	threads.threads["so1"] = append(mainThread(0),
		domain.CommentThread{ID: "1", Fork: "main", CommentCount: 1, Comments: []domain.Comment{{No: 9}}},
	)
	p := NewPipeline(search, videos, threads)

	got := p.Resolve(context.Background(),
		domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437},
		domain.ResolveOptions{},
	)
	if len(got) == 0 || got[0].VideoID() != "so1" {
		t.Fatalf("expected so1 first, got %+v", got)
	}
	count := 0
	for _, thread := range got[0].Threads {
		if thread.Key() == (domain.ThreadKey{ID: "1", Fork: "main"}) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("main thread emitted %d times", count)
	}
	if c := got[0].Threads[0].Comments; len(c) != 1 || c[0].No != 1 {
		t.Fatalf("first occurrence not kept: %+v", c)
	}
}

func TestPipelineRejectsInvalidRequest(t *testing.T) {
	search, videos, threads := newFixture()
	p := NewPipeline(search, videos, threads)

	for _, req := range []domain.ResolveRequest{{Title: "  ", Duration: 100}, {Title: "x", Duration: 0}} {
		if got := p.Resolve(context.Background(), req, domain.ResolveOptions{Fallback: true}); got != nil {
			t.Fatalf("expected nil for %+v", req)
		}
	}
	if len(search.queries) != 0 {
		t.Fatal("no search expected for invalid requests")
	}
}

func TestPipelineSharesConcurrentRunsWithoutSharingData(t *testing.T) {
	search, videos, threads := newFixture()
	threads.block = make(chan struct{})
	p := NewPipeline(search, videos, threads)
	req := domain.ResolveRequest{Title: "テストアニメ 第3話", Duration: 1437}

	results := make([][]domain.InitData, 2)
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			results[i] = p.Resolve(context.Background(), req, domain.ResolveOptions{})
		}(i)
	}
	<-started
	<-started
	close(threads.block)
	wg.Wait()

	for i, r := range results {
		if len(r) != 3 {
			t.Fatalf("caller %d got %d videos", i, len(r))
		}
	}
	results[0][0].Threads[0].Comments[0].VposMs = -1
	if results[1][0].Threads[0].Comments[0].VposMs == -1 {
		t.Fatal("callers share comment slices")
	}
}

type fakeInitializer struct {
	calls int
	items []domain.InitData
	err   error
}

func (f *fakeInitializer) Init(_ context.Context, items []domain.InitData) error {
	f.calls++
	f.items = items
	return f.err
}

type staticResolver []domain.InitData

func (s staticResolver) Resolve(context.Context, domain.ResolveRequest, domain.ResolveOptions) []domain.InitData {
	return s
}

func TestLoadInitializesOnlyNonEmptyResults(t *testing.T) {
	target := &fakeInitializer{}
	n, err := Load(context.Background(), staticResolver(nil), target, domain.ResolveRequest{}, domain.ResolveOptions{})
	if err != nil || n != 0 || target.calls != 0 {
		t.Fatalf("empty result must not init: n=%d err=%v calls=%d", n, err, target.calls)
	}

	items := staticResolver{{VideoData: domain.VideoMetadata{Video: domain.Video{ID: "so1"}}}}
	n, err = Load(context.Background(), items, target, domain.ResolveRequest{}, domain.ResolveOptions{})
	if err != nil || n != 1 || target.calls != 1 {
		t.Fatalf("expected init: n=%d err=%v calls=%d", n, err, target.calls)
	}

	target.err = domain.ErrSessionDisposed
	if _, err := Load(context.Background(), items, target, domain.ResolveRequest{}, domain.ResolveOptions{}); !errors.Is(err, domain.ErrSessionDisposed) {
		t.Fatalf("expected disposed error, got %v", err)
	}
}
