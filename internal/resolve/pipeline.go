package resolve

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"overlaysync/internal/domain"
	"overlaysync/internal/metrics"
	"overlaysync/internal/niconico"
)

// Searcher runs structured search queries. Failures yield nil.
type Searcher interface {
	Search(ctx context.Context, query domain.SearchQuery) []domain.SearchCandidate
}

// VideoFetcher looks up metadata in candidate order. Failed ids are absent.
type VideoFetcher interface {
	Videos(ctx context.Context, ids []string, guest bool) []domain.VideoMetadata
}

// ThreadFetcher retrieves comment threads. Failures yield nil.
type ThreadFetcher interface {
	Threads(ctx context.Context, nv domain.NvComment, opts niconico.ThreadOptions) []domain.CommentThread
}

type Pipeline struct {
	search  Searcher
	videos  VideoFetcher
	threads ThreadFetcher

	direct    ResolutionStrategy
	dedicated ResolutionStrategy

	logger *slog.Logger
	tracer trace.Tracer
	flight singleflight.Group
}

type PipelineOption func(*Pipeline)

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStrategies replaces the direct and dedicated strategies. A nil value
// keeps the default.
func WithStrategies(direct, dedicated ResolutionStrategy) PipelineOption {
	return func(p *Pipeline) {
		if direct != nil {
			p.direct = direct
		}
		if dedicated != nil {
			p.dedicated = dedicated
		}
	}
}

func NewPipeline(search Searcher, videos VideoFetcher, threads ThreadFetcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		search:    search,
		videos:    videos,
		threads:   threads,
		direct:    DirectStrategy{},
		dedicated: DedicatedStrategy{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("overlaysync/resolve"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve finds comment sources for a scraped title and duration. It never
// fails: upstream errors shrink the result instead. Concurrent identical
// requests share one run; every caller gets its own copy.
func (p *Pipeline) Resolve(ctx context.Context, req domain.ResolveRequest, opts domain.ResolveOptions) []domain.InitData {
	request := newRequest(req, opts)
	if !request.valid() {
		p.logger.Debug("resolve skipped", slog.String("title", req.Title), slog.Float64("duration", req.Duration))
		return nil
	}

	key, err := flightKey(request, opts)
	if err != nil {
		return domain.CloneInitData(p.run(ctx, request, opts))
	}
	value, _, _ := p.flight.Do(key, func() (any, error) {
		return p.run(context.WithoutCancel(ctx), request, opts), nil
	})
	items, _ := value.([]domain.InitData)
	return domain.CloneInitData(items)
}

func (p *Pipeline) run(ctx context.Context, req Request, opts domain.ResolveOptions) []domain.InitData {
	ctx, span := p.tracer.Start(ctx, "resolve",
		trace.WithAttributes(
			attribute.String("resolve.title", req.Title),
			attribute.Float64("resolve.duration", req.Duration),
			attribute.Bool("resolve.fallback", opts.Fallback),
		),
	)
	defer span.End()
	started := time.Now()

	strategies := []ResolutionStrategy{p.direct}
	if opts.Fallback {
		strategies = append(strategies, p.dedicated)
	}

	outputs := make([][]domain.InitData, 0, len(strategies))
	for _, strategy := range strategies {
		if ctx.Err() != nil {
			break
		}
		outputs = append(outputs, p.runStrategy(ctx, strategy, req, opts))
	}
	merged := domain.MergeInitData(outputs...)

	metrics.ResolveDuration.Observe(time.Since(started).Seconds())
	span.SetAttributes(attribute.Int("resolve.videos", len(merged)))
	p.logger.Info("resolve finished",
		slog.String("title", req.Title),
		slog.Float64("duration", req.Duration),
		slog.Int("videos", len(merged)),
		slog.Int64("elapsedMs", time.Since(started).Milliseconds()),
	)
	return merged
}

// runStrategy performs search, metadata, threads, alignment and filtering
// for one strategy.
func (p *Pipeline) runStrategy(ctx context.Context, strategy ResolutionStrategy, req Request, opts domain.ResolveOptions) []domain.InitData {
	name := strategy.Name()
	ctx, span := p.tracer.Start(ctx, "resolve."+name)
	defer span.End()
	logger := p.logger.With(slog.String("strategy", name))

	queries := strategy.Queries(req)
	results := make([][]domain.SearchCandidate, len(queries))
	for i, query := range queries {
		results[i] = p.search.Search(ctx, query)
	}
	partition := strategy.Partition(req, results)
	span.AddEvent("search", trace.WithAttributes(
		attribute.Int("candidates.standalone", len(partition.Standalone)),
		attribute.Int("candidates.split", len(partition.Split)),
	))
	if partition.Empty() {
		logger.Debug("no candidates")
		return nil
	}

	guest := !opts.UseNGList
	standalone := p.acceptedVideos(ctx, strategy, BucketStandalone, partition.Standalone, guest)
	split := p.acceptedVideos(ctx, strategy, BucketSplit, partition.Split, guest)

	var splitTotal float64
	for _, video := range split {
		splitTotal += video.Video.Duration
	}

	threadOpts := niconico.ThreadOptions{When: opts.When, UseNGList: opts.UseNGList, NGList: opts.NGList}
	out := make([]domain.InitData, 0, len(standalone)+len(split))
	emit := func(bucket Bucket, videos []domain.VideoMetadata) {
		for _, video := range videos {
			threads := p.threads.Threads(ctx, video.Comment.NvComment, threadOpts)
			if threads == nil {
				continue
			}
			offset := strategy.Offset(req, bucket, video, splitTotal)
			if ApplyOffset(threads, offset) {
				logger.Debug("comments shifted",
					slog.String("videoId", video.ID()),
					slog.String("bucket", bucket.String()),
					slog.Int64("offsetMs", offset),
				)
			}
			out = append(out, domain.InitData{
				VideoData: video,
				Threads:   FilterThreads(threads),
			})
		}
	}
	emit(BucketStandalone, standalone)
	emit(BucketSplit, split)

	metrics.ResolvedVideosTotal.WithLabelValues(name).Add(float64(len(out)))
	span.SetAttributes(attribute.Int("resolve.videos", len(out)))
	return out
}

func (p *Pipeline) acceptedVideos(ctx context.Context, strategy ResolutionStrategy, bucket Bucket, candidates []domain.SearchCandidate, guest bool) []domain.VideoMetadata {
	if len(candidates) == 0 {
		return nil
	}
	fetched := p.videos.Videos(ctx, contentIDs(candidates), guest)
	accepted := make([]domain.VideoMetadata, 0, len(fetched))
	for _, video := range fetched {
		if strategy.Accept(bucket, video) {
			accepted = append(accepted, video)
		}
	}
	return accepted
}

func flightKey(req Request, opts domain.ResolveOptions) (string, error) {
	data, err := json.Marshal(struct {
		Request Request
		Options domain.ResolveOptions
	}{req, opts})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
