package domain

import "time"

// ForkEasy tags the simplified comment layer. Threads with this fork are
// never shown.
const ForkEasy = "easy"

type Comment struct {
	ID          string    `json:"id"`
	No          int       `json:"no"`
	VposMs      int64     `json:"vposMs"`
	Body        string    `json:"body"`
	Commands    []string  `json:"commands"`
	UserID      string    `json:"userId"`
	IsPremium   bool      `json:"isPremium"`
	Score       int       `json:"score"`
	PostedAt    time.Time `json:"postedAt"`
	NicoruCount int       `json:"nicoruCount"`
}

type CommentThread struct {
	ID           string    `json:"id"`
	Fork         string    `json:"fork"`
	CommentCount int       `json:"commentCount"`
	Comments     []Comment `json:"comments"`
}

// ThreadKey identifies a thread inside one InitData.
type ThreadKey struct {
	ID   string
	Fork string
}

func (t CommentThread) Key() ThreadKey {
	return ThreadKey{ID: t.ID, Fork: t.Fork}
}

// InitData is the unit handed from a pipeline run to an overlay session.
// Within a session it is keyed by VideoData.Video.ID.
type InitData struct {
	VideoData VideoMetadata   `json:"videoData"`
	Threads   []CommentThread `json:"threads"`
}

func (d InitData) VideoID() string {
	return d.VideoData.Video.ID
}

// Clone returns a deep copy so offsets applied to one copy never leak into
// another holder of the same data.
func (d InitData) Clone() InitData {
	out := InitData{VideoData: d.VideoData}
	if d.VideoData.Channel != nil {
		ch := *d.VideoData.Channel
		out.VideoData.Channel = &ch
	}
	if d.VideoData.Owner != nil {
		owner := *d.VideoData.Owner
		out.VideoData.Owner = &owner
	}
	if d.VideoData.Comment.NvComment.Params != nil {
		out.VideoData.Comment.NvComment.Params = append([]byte(nil), d.VideoData.Comment.NvComment.Params...)
	}
	if d.Threads != nil {
		out.Threads = make([]CommentThread, len(d.Threads))
		for i, thread := range d.Threads {
			out.Threads[i] = thread
			if thread.Comments != nil {
				comments := make([]Comment, len(thread.Comments))
				for j, c := range thread.Comments {
					comments[j] = c
					if c.Commands != nil {
						comments[j].Commands = append([]string(nil), c.Commands...)
					}
				}
				out.Threads[i].Comments = comments
			}
		}
	}
	return out
}

func CloneInitData(items []InitData) []InitData {
	if items == nil {
		return nil
	}
	out := make([]InitData, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// MergeInitData unions sets in order, keeping the first entry for each video id.
func MergeInitData(sets ...[]InitData) []InitData {
	total := 0
	for _, set := range sets {
		total += len(set)
	}
	out := make([]InitData, 0, total)
	seen := make(map[string]struct{}, total)
	for _, set := range sets {
		for _, item := range set {
			id := item.VideoID()
			if _, exists := seen[id]; exists {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
