package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ycheng-dev/channelhub/internal/types"
)

func gatedChannel(now time.Time) *types.Channel {
	return &types.Channel{
		Id:               "ch1",
		CreatorId:        "creator",
		Subscribers:      []string{"member"},
		HideTodayContent: true,
		Posts: []types.Post{
			{Id: "p-today", Content: "today's news", Media: "m.jpg", Timestamp: now.UnixMilli()},
			{Id: "p-old", Content: "old news", Timestamp: now.Add(-48 * time.Hour).UnixMilli()},
		},
	}
}

func TestVisiblePostsGatesStranger(t *testing.T) {
	d, _ := newTestDirectory(t)
	now := time.Date(2023, 11, 15, 12, 0, 0, 0, d.loc)
	d.now = func() time.Time { return now }

	posts := d.VisiblePosts(gatedChannel(now), "stranger")
	require.Len(t, posts, 2)
	assert.True(t, posts[0].Hidden, "expected today's post gated for a stranger")
	assert.Equal(t, HiddenPlaceholder, posts[0].Content, "expected placeholder content")
	assert.Empty(t, posts[0].Media, "expected media stripped from a gated post")
	assert.False(t, posts[1].Hidden, "expected an older post visible")
	assert.Equal(t, "old news", posts[1].Content)
}

func TestVisiblePostsCreatorAndMemberSeeEverything(t *testing.T) {
	d, _ := newTestDirectory(t)
	now := time.Date(2023, 11, 15, 12, 0, 0, 0, d.loc)
	d.now = func() time.Time { return now }

	for _, viewer := range []string{"creator", "member"} {
		posts := d.VisiblePosts(gatedChannel(now), viewer)
		require.Len(t, posts, 2)
		assert.False(t, posts[0].Hidden, "expected viewer %s to see today's post", viewer)
		assert.Equal(t, "today's news", posts[0].Content)
	}
}

func TestVisiblePostsGatingDisabled(t *testing.T) {
	d, _ := newTestDirectory(t)
	now := time.Date(2023, 11, 15, 12, 0, 0, 0, d.loc)
	d.now = func() time.Time { return now }

	ch := gatedChannel(now)
	ch.HideTodayContent = false

	posts := d.VisiblePosts(ch, "stranger")
	assert.False(t, posts[0].Hidden, "expected no gating when the flag is off")
}

func TestVisiblePostsDoesNotMutateChannel(t *testing.T) {
	d, _ := newTestDirectory(t)
	now := time.Date(2023, 11, 15, 12, 0, 0, 0, d.loc)
	d.now = func() time.Time { return now }

	ch := gatedChannel(now)
	_ = d.VisiblePosts(ch, "stranger")
	assert.Equal(t, "today's news", ch.Posts[0].Content, "expected stored posts untouched")
	assert.Equal(t, "m.jpg", ch.Posts[0].Media, "expected stored media untouched")
}

func TestVisiblePostsUsesReferenceCalendarDay(t *testing.T) {
	d, _ := newTestDirectory(t)

	// 01:00 in Shanghai; a post from 23:00 the previous Shanghai day
	// shares the same UTC day but must not be gated.
	now := time.Date(2023, 11, 15, 1, 0, 0, 0, d.loc)
	d.now = func() time.Time { return now }

	ch := &types.Channel{
		Id:               "ch1",
		CreatorId:        "creator",
		HideTodayContent: true,
		Posts: []types.Post{
			{Id: "p1", Content: "late night", Timestamp: time.Date(2023, 11, 14, 23, 0, 0, 0, d.loc).UnixMilli()},
		},
	}

	posts := d.VisiblePosts(ch, "stranger")
	assert.False(t, posts[0].Hidden, "expected the previous reference-day post to stay visible")
}
