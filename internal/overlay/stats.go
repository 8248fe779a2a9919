package overlay

import (
	"math"
	"regexp"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"overlaysync/internal/domain"
)

var kawaiiPattern = regexp.MustCompile(`(?i)かわい|カワイ|可愛|kawaii`)

var titlePrinter = message.NewPrinter(language.Japanese)

// Stats are the counters derived from a session's merged comment set.
type Stats struct {
	CommentsCount int
	KawaiiPct     float64
}

// uniqueThreads flattens items into one thread list, keeping the first
// thread per (id, fork).
func uniqueThreads(items []domain.InitData) []domain.CommentThread {
	seen := make(map[domain.ThreadKey]struct{})
	var out []domain.CommentThread
	for _, item := range items {
		for _, thread := range item.Threads {
			key := thread.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, thread)
		}
	}
	return out
}

func computeStats(threads []domain.CommentThread) Stats {
	var count, kawaii int
	for _, thread := range threads {
		count += len(thread.Comments)
		for _, c := range thread.Comments {
			if kawaiiPattern.MatchString(c.Body) {
				kawaii++
			}
		}
	}
	if count == 0 {
		return Stats{}
	}
	return Stats{
		CommentsCount: count,
		KawaiiPct:     math.Round(float64(kawaii)/float64(count)*100*10) / 10,
	}
}

// BadgeText renders a comment count the way the toolbar badge shows it:
// empty for zero, the plain number below 1000, one decimal in thousands
// otherwise.
func BadgeText(count int) string {
	switch {
	case count <= 0:
		return ""
	case count < 1000:
		return strconv.Itoa(count)
	default:
		k := math.Round(float64(count)/1000*10) / 10
		return strconv.FormatFloat(k, 'f', -1, 64) + "k"
	}
}

// TitleText is the toolbar tooltip for a session.
func TitleText(stats Stats) string {
	if stats.CommentsCount <= 0 {
		return ""
	}
	return titlePrinter.Sprintf("%d件のコメント (かわいい率: %v%%)", stats.CommentsCount, stats.KawaiiPct)
}
