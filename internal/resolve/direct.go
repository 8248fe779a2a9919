package resolve

import "overlaysync/internal/domain"

// DirectStrategy matches official-channel uploads of the episode itself,
// either in one piece or split into parts.
type DirectStrategy struct{}

func (DirectStrategy) Name() string { return "direct" }

func (DirectStrategy) Queries(req Request) []domain.SearchQuery {
	standalone := req.baseQuery()
	standalone.Filters = req.Filters.Merge(domain.Filters{
		"lengthSeconds": {
			"gte": req.Duration - req.DurationDiff,
			"lte": req.Duration + req.DurationDiff,
		},
	})

	split := req.baseQuery()
	split.Filters = req.Filters.Merge(domain.Filters{
		"lengthSeconds": {
			"gte": nil,
			"lte": req.Duration - req.DurationDiff,
		},
	})

	return []domain.SearchQuery{standalone, split}
}

// Partition keeps channel uploads only. Standalone hits must fall inside the
// duration window; split hits must be shorter and carry a part marker.
func (DirectStrategy) Partition(req Request, results [][]domain.SearchCandidate) Partition {
	var standalone, split []domain.SearchCandidate
	low, high := req.Duration-req.DurationDiff, req.Duration+req.DurationDiff

	if len(results) > 0 {
		for _, c := range results[0] {
			length, ok := c.Length()
			if !c.HasChannel() || !ok || float64(length) < low || float64(length) > high {
				continue
			}
			if !req.episodeMatches(c.Title) {
				continue
			}
			standalone = append(standalone, c)
		}
	}
	if len(results) > 1 {
		for _, c := range results[1] {
			length, ok := c.Length()
			if !c.HasChannel() || !ok || float64(length) >= low {
				continue
			}
			if !HasPartMarker(c.Title) || !req.episodeMatches(c.Title) {
				continue
			}
			split = append(split, c)
		}
	}

	seen := make(map[string]struct{}, len(standalone)+len(split))
	return Partition{
		Standalone: dedupeCandidates(standalone, seen),
		Split:      dedupeCandidates(split, seen),
	}
}

func (DirectStrategy) Accept(bucket Bucket, video domain.VideoMetadata) bool {
	if bucket == BucketSplit {
		return video.IsOfficialAnime()
	}
	return true
}

func (DirectStrategy) Offset(req Request, bucket Bucket, video domain.VideoMetadata, splitTotal float64) int64 {
	reference := video.Video.Duration
	if bucket == BucketSplit {
		reference = splitTotal
	}
	return OffsetPolicyA(req.Duration, reference)
}
