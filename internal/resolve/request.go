package resolve

import (
	"strings"

	"overlaysync/internal/domain"
	"overlaysync/internal/niconico"
)

const (
	defaultDurationDiff = 5.0
	searchLimit         = 100
	animeGenre          = "アニメ"
)

// Request is a ResolveRequest with settings folded in and defaults applied.
type Request struct {
	Title         string
	Duration      float64
	Strict        bool
	DurationDiff  float64
	Filters       domain.Filters
	EpisodeNumber int
}

func newRequest(req domain.ResolveRequest, opts domain.ResolveOptions) Request {
	r := Request{
		Title:        niconico.NormalizeTitle(req.Title),
		Duration:     req.Duration,
		Strict:       opts.StrictMatch,
		DurationDiff: defaultDurationDiff,
		Filters: domain.Filters{
			"genre.keyword": {"0": animeGenre},
		}.Merge(req.Filters),
	}
	if req.StrictMatch != nil {
		r.Strict = *req.StrictMatch
	}
	if req.DurationDiff != nil && *req.DurationDiff >= 0 {
		r.DurationDiff = *req.DurationDiff
	}
	if req.EpisodeNumber != nil && *req.EpisodeNumber > 0 {
		r.EpisodeNumber = *req.EpisodeNumber
	} else if n, ok := ExtractEpisodeNumber(r.Title); ok {
		r.EpisodeNumber = n
	}
	return r
}

func (r Request) valid() bool {
	return strings.TrimSpace(r.Title) != "" && r.Duration > 0
}

// baseQuery is the query every strategy starts from.
func (r Request) baseQuery() domain.SearchQuery {
	return domain.SearchQuery{
		Q:       r.Title,
		Targets: domain.TargetsFor(r.Strict),
		Fields:  domain.DefaultSearchFields,
		Sort:    domain.SortStartTimeAsc,
		Limit:   searchLimit,
		Filters: r.Filters,
	}
}

// episodeMatches reports whether a candidate title is compatible with the
// requested episode. Titles without an episode number always match.
func (r Request) episodeMatches(title string) bool {
	if r.EpisodeNumber == 0 {
		return true
	}
	n, ok := ExtractEpisodeNumber(niconico.NormalizeTitle(title))
	return !ok || n == r.EpisodeNumber
}
