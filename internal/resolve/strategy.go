package resolve

import "overlaysync/internal/domain"

// Bucket tells a strategy which group an accepted video came from.
type Bucket int

const (
	// BucketStandalone holds single uploads covering the whole episode.
	BucketStandalone Bucket = iota
	// BucketSplit holds the parts of an episode uploaded in pieces.
	BucketSplit
)

func (b Bucket) String() string {
	if b == BucketSplit {
		return "split"
	}
	return "standalone"
}

// Partition is the candidate set a strategy keeps after searching.
type Partition struct {
	Standalone []domain.SearchCandidate
	Split      []domain.SearchCandidate
}

func (p Partition) Empty() bool {
	return len(p.Standalone) == 0 && len(p.Split) == 0
}

// ResolutionStrategy is one way of finding comment sources for a scraped
// title. The pipeline runs strategies in order and merges their output.
type ResolutionStrategy interface {
	Name() string
	// Queries returns the search queries to run. Results are handed to
	// Partition in the same order.
	Queries(req Request) []domain.SearchQuery
	Partition(req Request, results [][]domain.SearchCandidate) Partition
	// Accept filters fetched metadata per bucket.
	Accept(bucket Bucket, video domain.VideoMetadata) bool
	// Offset is the shift in milliseconds for one accepted video.
	// splitTotal is the summed duration of every accepted split part.
	Offset(req Request, bucket Bucket, video domain.VideoMetadata, splitTotal float64) int64
}

// dedupeCandidates keeps the first candidate per content id, skipping ids
// already present in seen. seen is updated.
func dedupeCandidates(items []domain.SearchCandidate, seen map[string]struct{}) []domain.SearchCandidate {
	out := make([]domain.SearchCandidate, 0, len(items))
	for _, item := range items {
		if item.ContentID == "" {
			continue
		}
		if _, ok := seen[item.ContentID]; ok {
			continue
		}
		seen[item.ContentID] = struct{}{}
		out = append(out, item)
	}
	return out
}

func contentIDs(items []domain.SearchCandidate) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ContentID)
	}
	return ids
}
