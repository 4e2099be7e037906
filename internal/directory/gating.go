package directory

import (
	"time"

	"github.com/ycheng-dev/channelhub/internal/types"
)

// HiddenPlaceholder replaces the content of a gated post.
const HiddenPlaceholder = "[内容已隐藏]"

// VisiblePosts renders the channel's feed for a viewer. A post is
// gated iff the viewer is neither the creator nor an active subscriber,
// the channel hides today's content, and the post was published on the
// current calendar day in the reference location. The decision is a
// pure per-read computation; stored posts are never mutated.
func (d *Directory) VisiblePosts(ch *types.Channel, viewerId string) []types.Post {
	gate := ch.HideTodayContent && viewerId != ch.CreatorId && !ch.IsSubscriber(viewerId)

	out := make([]types.Post, len(ch.Posts))
	copy(out, ch.Posts)
	if !gate {
		return out
	}

	now := d.now()
	for i := range out {
		if !sameDay(time.UnixMilli(out[i].Timestamp), now, d.loc) {
			continue
		}
		out[i].Content = HiddenPlaceholder
		out[i].Media = ""
		out[i].Hidden = true
	}
	return out
}

// sameDay reports whether a and b fall on the same calendar day in
// loc. Instants are stored as UTC millis; the day boundary comes from
// the reference location, never from offset arithmetic.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
