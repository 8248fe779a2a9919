package resolve

import (
	"math"

	"overlaysync/internal/domain"
)

const (
	// DedicatedTrackTag marks uploads that exist only to carry comments.
	DedicatedTrackTag = "コメント専用動画"

	dedicatedTrackPadding   = 60.0
	dedicatedTrackTolerance = 5.0
)

// DedicatedStrategy matches comment-only uploads, which run about a minute
// longer than the episode they accompany.
type DedicatedStrategy struct{}

func (DedicatedStrategy) Name() string { return "dedicated" }

func (DedicatedStrategy) Queries(req Request) []domain.SearchQuery {
	expected := req.Duration + dedicatedTrackPadding
	query := req.baseQuery()
	query.Targets = domain.TargetsFor(false)
	query.Filters = req.Filters.Merge(domain.Filters{
		"genre.keyword": {"0": nil},
		"tagsExact":     {"0": DedicatedTrackTag},
		"lengthSeconds": {
			"gte": expected - dedicatedTrackTolerance,
			"lte": expected + dedicatedTrackTolerance,
		},
	})
	return []domain.SearchQuery{query}
}

func (DedicatedStrategy) Partition(req Request, results [][]domain.SearchCandidate) Partition {
	if len(results) == 0 {
		return Partition{}
	}
	expected := req.Duration + dedicatedTrackPadding
	kept := make([]domain.SearchCandidate, 0, len(results[0]))
	for _, c := range results[0] {
		length, ok := c.Length()
		if !ok || math.Abs(float64(length)-expected) > dedicatedTrackTolerance {
			continue
		}
		kept = append(kept, c)
	}
	return Partition{Standalone: dedupeCandidates(kept, map[string]struct{}{})}
}

func (DedicatedStrategy) Accept(Bucket, domain.VideoMetadata) bool { return true }

func (DedicatedStrategy) Offset(req Request, _ Bucket, video domain.VideoMetadata, _ float64) int64 {
	return OffsetPolicyB(req.Duration, video.Video.Duration)
}
