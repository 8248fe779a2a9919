package domain

// Filters are nested search filters serialized as filters[field][key]=value.
// A nil value clears the key when filters are merged.
type Filters map[string]map[string]any

// Merge returns a copy of f overlaid with other. Keys whose value in other is
// nil are removed.
func (f Filters) Merge(other Filters) Filters {
	out := make(Filters, len(f)+len(other))
	for field, values := range f {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out[field] = copied
	}
	for field, values := range other {
		dst, ok := out[field]
		if !ok {
			dst = make(map[string]any, len(values))
			out[field] = dst
		}
		for k, v := range values {
			if v == nil {
				delete(dst, k)
				continue
			}
			dst[k] = v
		}
		if len(dst) == 0 {
			delete(out, field)
		}
	}
	return out
}

const (
	SortStartTimeAsc = "+startTime"

	TargetTitle       = "title"
	TargetDescription = "description"
	TargetTags        = "tags"
)

var DefaultSearchFields = []string{"contentId", "title", "channelId", "lengthSeconds", "tags"}

// SearchQuery is a structured query against the search endpoint.
type SearchQuery struct {
	Q       string
	Targets []string
	Fields  []string
	Sort    string
	Offset  int
	Limit   int
	Context string
	Filters Filters
}

// TargetsFor returns the searched text fields for the given strictness.
func TargetsFor(strict bool) []string {
	if strict {
		return []string{TargetTitle}
	}
	return []string{TargetTitle, TargetDescription, TargetTags}
}
