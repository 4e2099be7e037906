// Package directory owns channel entities, their post feeds, the
// category set and content-visibility gating.
package directory

import (
	"context"
	"log"
	"time"

	"github.com/teris-io/shortid"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/moderation"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/types"
)

type Directory struct {
	log    *log.Logger
	gw     gateway.Gateway
	stats  stats.Provider
	filter *moderation.Filter
	loc    *time.Location

	now   func() time.Time
	newId func() (string, error)
}

// NewDirectory creates a channel directory. loc is the reference
// location used for calendar-day gating decisions.
func NewDirectory(logger *log.Logger, gw gateway.Gateway, provider stats.Provider, filter *moderation.Filter, loc *time.Location) *Directory {
	d := &Directory{
		log:    logger,
		gw:     gw,
		stats:  provider,
		filter: filter,
		loc:    loc,
		now:    time.Now,
		newId:  shortid.Generate,
	}

	d.stats.RegisterMetric(stats.MetricChannelsCreated)
	d.stats.RegisterMetric(stats.MetricChannelsDeleted)
	d.stats.RegisterMetric(stats.MetricPostsPublished)

	return d
}

func (d *Directory) nowMillis() int64 {
	return d.now().UTC().UnixMilli()
}

func (d *Directory) channel(ctx context.Context, channelId string) (types.Channel, error) {
	doc, err := d.gw.GetOne(ctx, gateway.CollectionChannels, channelId)
	if err != nil {
		return types.Channel{}, err
	}
	return gateway.Decode[types.Channel](doc)
}

// CreateChannel registers a new channel for creator. Only privileged
// users may create channels.
func (d *Directory) CreateChannel(ctx context.Context, ch types.Channel, creator types.User) (*types.Channel, error) {
	if !creator.IsPrivileged() {
		return nil, types.Forbidden("user %s may not create channels", creator.Id)
	}

	id, err := d.newId()
	if err != nil {
		return nil, types.WriteError(err, "generate channel id")
	}

	ch.Id = id
	ch.CreatorId = creator.Id
	ch.CreatorName = creator.Nickname
	ch.SubscriberCount = 0
	ch.Subscribers = []string{}
	ch.MemberExpiry = map[string]int64{}
	ch.HideTodayContent = false
	ch.Posts = []types.Post{}
	ch.CreatedAt = d.nowMillis()

	if _, err := d.gw.Create(ctx, gateway.CollectionChannels, ch, ch.Id); err != nil {
		return nil, err
	}

	d.stats.Incr(stats.MetricChannelsCreated)
	return &ch, nil
}

// DeleteChannel removes a channel and its outstanding membership
// requests. Irreversible; creator only.
func (d *Directory) DeleteChannel(ctx context.Context, channelId, userId string) error {
	ch, err := d.channel(ctx, channelId)
	if err != nil {
		return err
	}
	if ch.CreatorId != userId {
		return types.Forbidden("user %s is not the creator of channel %s", userId, channelId)
	}

	if err := d.gw.Delete(ctx, gateway.CollectionChannels, channelId); err != nil {
		return err
	}

	// Orphaned requests would otherwise linger in the creator's inbox.
	reqs, err := d.gw.List(ctx, gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("channelId", gateway.OpEq, channelId),
	}, nil)
	if err != nil {
		return err
	}
	for _, doc := range reqs {
		req, err := gateway.Decode[types.MembershipRequest](doc)
		if err != nil {
			return err
		}
		if err := d.gw.Delete(ctx, gateway.CollectionRequests, req.Id); err != nil {
			return err
		}
	}

	d.stats.Incr(stats.MetricChannelsDeleted)
	return nil
}

// GetChannel fetches a channel by id.
func (d *Directory) GetChannel(ctx context.Context, channelId string) (*types.Channel, error) {
	ch, err := d.channel(ctx, channelId)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Channels lists channels, optionally restricted to one category. The
// reserved "all" category and the empty string both list everything.
func (d *Directory) Channels(ctx context.Context, category string) ([]types.Channel, error) {
	var filters []gateway.Filter
	if category != "" && category != CategoryAll {
		filters = append(filters, gateway.Where("category", gateway.OpEq, category))
	}

	docs, err := d.gw.List(ctx, gateway.CollectionChannels, filters,
		&gateway.OrderBy{Field: "createdAt", Descending: true})
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[types.Channel](docs)
}

// UserChannels lists channels the user created or actively subscribes
// to.
func (d *Directory) UserChannels(ctx context.Context, userId string) ([]types.Channel, error) {
	created, err := d.gw.List(ctx, gateway.CollectionChannels, []gateway.Filter{
		gateway.Where("creatorId", gateway.OpEq, userId),
	}, nil)
	if err != nil {
		return nil, err
	}
	subscribed, err := d.gw.List(ctx, gateway.CollectionChannels, []gateway.Filter{
		gateway.Where("subscribers", gateway.OpContains, userId),
	}, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []types.Channel
	for _, doc := range append(created, subscribed...) {
		ch, err := gateway.Decode[types.Channel](doc)
		if err != nil {
			return nil, err
		}
		if seen[ch.Id] {
			continue
		}
		seen[ch.Id] = true
		out = append(out, ch)
	}
	return out, nil
}

// UpdateSubscriberCount sets the displayed subscriber count. The count
// is a creator-editable vanity figure but may never drop below the
// actual number of members.
func (d *Directory) UpdateSubscriberCount(ctx context.Context, channelId string, newCount int, userId string) error {
	ch, err := d.channel(ctx, channelId)
	if err != nil {
		return err
	}
	if ch.CreatorId != userId {
		return types.Forbidden("user %s is not the creator of channel %s", userId, channelId)
	}
	if newCount < len(ch.Subscribers) {
		return types.InvalidCount("count %d is below the actual member count %d", newCount, len(ch.Subscribers))
	}

	return d.gw.Update(ctx, gateway.CollectionChannels, channelId, map[string]any{
		"subscriberCount": newCount,
	})
}

// ToggleHideTodayContent flips the same-day gating flag and returns
// the new value.
func (d *Directory) ToggleHideTodayContent(ctx context.Context, channelId, userId string) (bool, error) {
	ch, err := d.channel(ctx, channelId)
	if err != nil {
		return false, err
	}
	if ch.CreatorId != userId {
		return false, types.Forbidden("user %s is not the creator of channel %s", userId, channelId)
	}

	next := !ch.HideTodayContent
	err = d.gw.Update(ctx, gateway.CollectionChannels, channelId, map[string]any{
		"hideTodayContent": next,
	})
	if err != nil {
		return false, err
	}
	return next, nil
}

// PostToChannel publishes a post to the channel's feed, newest first.
// Posting is creator-only. Text content runs through the moderation
// filter: blocked content is rejected, flagged content requires the
// caller to retry with confirmed set, replaceable content is masked
// before persisting.
func (d *Directory) PostToChannel(ctx context.Context, channelId string, post types.Post, creatorId string, confirmed bool) (*types.Post, error) {
	ch, err := d.channel(ctx, channelId)
	if err != nil {
		return nil, err
	}
	if ch.CreatorId != creatorId {
		return nil, types.Forbidden("user %s is not the creator of channel %s", creatorId, channelId)
	}

	res := d.filter.FilterContent(post.Content)
	switch res.Action {
	case moderation.ActionBlock:
		return nil, types.ContentBlocked("post content is not allowed")
	case moderation.ActionWarn:
		if !confirmed {
			return nil, types.ConfirmRequired("post content is flagged, confirmation required")
		}
	case moderation.ActionReplace:
		post.Content = res.FilteredText
	}

	id, err := d.newId()
	if err != nil {
		return nil, types.WriteError(err, "generate post id")
	}

	post.Id = id
	post.ChannelId = channelId
	post.CreatorId = creatorId
	post.Timestamp = d.nowMillis()

	posts := append([]types.Post{post}, ch.Posts...)
	err = d.gw.Update(ctx, gateway.CollectionChannels, channelId, map[string]any{
		"posts": posts,
	})
	if err != nil {
		return nil, err
	}

	d.stats.Incr(stats.MetricPostsPublished)
	return &post, nil
}

// UpdatePostTime rewrites a post's timestamp. Creator only.
func (d *Directory) UpdatePostTime(ctx context.Context, channelId, postId string, newTimestamp int64, userId string) error {
	return d.updatePost(ctx, channelId, postId, userId, func(p *types.Post) {
		p.Timestamp = newTimestamp
	})
}

// UpdatePostContent rewrites a post's content. Creator only.
func (d *Directory) UpdatePostContent(ctx context.Context, channelId, postId, newContent, userId string) error {
	return d.updatePost(ctx, channelId, postId, userId, func(p *types.Post) {
		p.Content = newContent
	})
}

func (d *Directory) updatePost(ctx context.Context, channelId, postId, userId string, mutate func(*types.Post)) error {
	ch, err := d.channel(ctx, channelId)
	if err != nil {
		return err
	}
	if ch.CreatorId != userId {
		return types.Forbidden("user %s is not the creator of channel %s", userId, channelId)
	}

	found := false
	for i := range ch.Posts {
		if ch.Posts[i].Id == postId {
			mutate(&ch.Posts[i])
			found = true
			break
		}
	}
	if !found {
		return types.NotFound("post %s not found on channel %s", postId, channelId)
	}

	return d.gw.Update(ctx, gateway.CollectionChannels, channelId, map[string]any{
		"posts": ch.Posts,
	})
}
