package resolve

import (
	"math"

	"overlaysync/internal/domain"
)

// MinOffsetMs is the smallest shift worth applying. Anything shorter is
// left alone.
const MinOffsetMs = 1000

// OffsetPolicyA centres the reference on the target: half the duration
// difference, floored to whole milliseconds.
func OffsetPolicyA(target, reference float64) int64 {
	return int64(math.Floor((target - reference) / 2 * 1000))
}

// OffsetPolicyB aligns the end of a dedicated comment track with the end of
// the target, in whole seconds.
func OffsetPolicyB(target, candidate float64) int64 {
	return int64(math.Floor(target-candidate)) * 1000
}

// ApplyOffset shifts every comment of every thread by offsetMs when the
// shift reaches MinOffsetMs. It reports whether anything moved.
func ApplyOffset(threads []domain.CommentThread, offsetMs int64) bool {
	if offsetMs > -MinOffsetMs && offsetMs < MinOffsetMs {
		return false
	}
	for i := range threads {
		comments := threads[i].Comments
		for j := range comments {
			comments[j].VposMs += offsetMs
		}
	}
	return true
}

// FilterThreads drops empty threads and the simplified "easy" layer, and
// keeps only the first thread per (id, fork).
func FilterThreads(threads []domain.CommentThread) []domain.CommentThread {
	out := make([]domain.CommentThread, 0, len(threads))
	seen := make(map[domain.ThreadKey]struct{}, len(threads))
	for _, thread := range threads {
		if thread.CommentCount <= 0 || thread.Fork == domain.ForkEasy {
			continue
		}
		key := thread.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, thread)
	}
	return out
}
