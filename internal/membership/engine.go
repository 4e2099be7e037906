// Package membership owns the subscription lifecycle of a (channel,
// user) pair: request, approval with a time-bound expiry, rejection,
// cancellation and periodic eviction of lapsed members.
package membership

import (
	"context"
	"log"
	"time"

	"github.com/teris-io/shortid"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/syncutil"
	"github.com/ycheng-dev/channelhub/internal/types"
)

const millisPerDay = 24 * 60 * 60 * 1000

// Membership durations map to fixed millisecond spans. "1minute"
// exists for test environments only.
var durationMillis = map[string]int64{
	"1minute": 60 * 1000,
	"1month":  30 * millisPerDay,
	"3months": 90 * millisPerDay,
	"6months": 180 * millisPerDay,
	"1year":   365 * millisPerDay,
}

// durationToMillis maps a duration label to its span. Unrecognized
// labels fall back to one month rather than failing the approval.
func durationToMillis(duration string) int64 {
	if ms, ok := durationMillis[duration]; ok {
		return ms
	}
	return durationMillis["1month"]
}

type Engine struct {
	log   *log.Logger
	gw    gateway.Gateway
	stats stats.Provider
	locks *syncutil.KeyedMutex

	now   func() time.Time
	newId func() (string, error)
}

func NewEngine(logger *log.Logger, gw gateway.Gateway, provider stats.Provider) *Engine {
	e := &Engine{
		log:   logger,
		gw:    gw,
		stats: provider,
		locks: syncutil.NewKeyedMutex(),
		now:   time.Now,
		newId: shortid.Generate,
	}

	e.stats.RegisterMetric(stats.MetricRequestsCreated)
	e.stats.RegisterMetric(stats.MetricRequestsApproved)
	e.stats.RegisterMetric(stats.MetricRequestsRejected)
	e.stats.RegisterMetric(stats.MetricRequestsCancelled)
	e.stats.RegisterMetric(stats.MetricSweepsRun)
	e.stats.RegisterMetric(stats.MetricMembersEvicted)

	return e
}

func (e *Engine) nowMillis() int64 {
	return e.now().UTC().UnixMilli()
}

func (e *Engine) channel(ctx context.Context, channelId string) (types.Channel, error) {
	doc, err := e.gw.GetOne(ctx, gateway.CollectionChannels, channelId)
	if err != nil {
		return types.Channel{}, err
	}
	return gateway.Decode[types.Channel](doc)
}

func (e *Engine) pendingRequest(ctx context.Context, channelId, userId string) (*types.MembershipRequest, error) {
	docs, err := e.gw.List(ctx, gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("channelId", gateway.OpEq, channelId),
		gateway.Where("userId", gateway.OpEq, userId),
		gateway.Where("status", gateway.OpEq, string(types.RequestPending)),
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	req, err := gateway.Decode[types.MembershipRequest](docs[0])
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RequestSubscription opens a pending request for userId on the
// channel. The user profile is snapshotted at request time for the
// creator's inbox.
func (e *Engine) RequestSubscription(ctx context.Context, channelId, userId string, profile types.Profile) (*types.MembershipRequest, error) {
	unlock := e.locks.Lock(channelId)
	defer unlock()

	ch, err := e.channel(ctx, channelId)
	if err != nil {
		return nil, err
	}

	if ch.IsSubscriber(userId) {
		return nil, types.AlreadyMember("user %s is already a member of channel %s", userId, channelId)
	}

	existing, err := e.pendingRequest(ctx, channelId, userId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.DuplicateRequest("user %s already has a pending request for channel %s", userId, channelId)
	}

	id, err := e.newId()
	if err != nil {
		return nil, types.WriteError(err, "generate request id")
	}

	req := types.MembershipRequest{
		Id:          id,
		ChannelId:   channelId,
		ChannelName: ch.Name,
		CreatorId:   ch.CreatorId,
		UserId:      userId,
		User:        profile,
		Status:      types.RequestPending,
		RequestedAt: e.nowMillis(),
	}
	if _, err := e.gw.Create(ctx, gateway.CollectionRequests, req, req.Id); err != nil {
		return nil, err
	}

	e.stats.Incr(stats.MetricRequestsCreated)
	return &req, nil
}

// CancelSubscriptionRequest withdraws the caller's own pending
// request. The request is removed entirely, not marked rejected.
func (e *Engine) CancelSubscriptionRequest(ctx context.Context, channelId, userId string) error {
	unlock := e.locks.Lock(channelId)
	defer unlock()

	req, err := e.pendingRequest(ctx, channelId, userId)
	if err != nil {
		return err
	}
	if req == nil {
		return types.NotFound("no pending request for user %s on channel %s", userId, channelId)
	}

	if err := e.gw.Delete(ctx, gateway.CollectionRequests, req.Id); err != nil {
		return err
	}

	e.stats.Incr(stats.MetricRequestsCancelled)
	return nil
}

// ApproveSubscription grants time-bound membership. The request must
// still be pending; a request cancelled in the meantime surfaces as
// NotFound. Of two racing approvals only one finds the pending
// request.
func (e *Engine) ApproveSubscription(ctx context.Context, channelId, userId, duration string) (*types.MembershipRequest, error) {
	unlock := e.locks.Lock(channelId)
	defer unlock()

	req, err := e.pendingRequest(ctx, channelId, userId)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, types.NotFound("no pending request for user %s on channel %s", userId, channelId)
	}

	ch, err := e.channel(ctx, channelId)
	if err != nil {
		return nil, err
	}

	expiry := e.nowMillis() + durationToMillis(duration)

	subscribers := ch.Subscribers
	count := ch.SubscriberCount
	if !ch.IsSubscriber(userId) {
		subscribers = append(subscribers, userId)
		// count moves with the member list, so a retried approval
		// never double-increments
		count++
	}
	memberExpiry := ch.MemberExpiry
	if memberExpiry == nil {
		memberExpiry = make(map[string]int64)
	}
	memberExpiry[userId] = expiry

	err = e.gw.Update(ctx, gateway.CollectionChannels, channelId, map[string]any{
		"subscribers":     subscribers,
		"memberExpiry":    memberExpiry,
		"subscriberCount": count,
	})
	if err != nil {
		return nil, err
	}

	if err := e.gw.Delete(ctx, gateway.CollectionRequests, req.Id); err != nil {
		return nil, err
	}

	e.stats.Incr(stats.MetricRequestsApproved)

	req.Status = types.RequestApproved
	req.ResolvedAt = e.nowMillis()
	return req, nil
}

// RejectSubscription removes the pending request without touching the
// subscriber set.
func (e *Engine) RejectSubscription(ctx context.Context, channelId, userId string) (*types.MembershipRequest, error) {
	unlock := e.locks.Lock(channelId)
	defer unlock()

	req, err := e.pendingRequest(ctx, channelId, userId)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, types.NotFound("no pending request for user %s on channel %s", userId, channelId)
	}

	if err := e.gw.Delete(ctx, gateway.CollectionRequests, req.Id); err != nil {
		return nil, err
	}

	e.stats.Incr(stats.MetricRequestsRejected)

	req.Status = types.RequestRejected
	req.ResolvedAt = e.nowMillis()
	return req, nil
}

// HasPendingRequest reports whether userId has an open request on the
// channel.
func (e *Engine) HasPendingRequest(ctx context.Context, channelId, userId string) (bool, error) {
	req, err := e.pendingRequest(ctx, channelId, userId)
	if err != nil {
		return false, err
	}
	return req != nil, nil
}

// PendingRequests lists a channel's open requests, newest first.
func (e *Engine) PendingRequests(ctx context.Context, channelId string) ([]types.MembershipRequest, error) {
	docs, err := e.gw.List(ctx, gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("channelId", gateway.OpEq, channelId),
		gateway.Where("status", gateway.OpEq, string(types.RequestPending)),
	}, &gateway.OrderBy{Field: "requestedAt", Descending: true})
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[types.MembershipRequest](docs)
}

// IsSubscribed reports active membership of userId on the channel.
func (e *Engine) IsSubscribed(ctx context.Context, channelId, userId string) (bool, error) {
	ch, err := e.channel(ctx, channelId)
	if err != nil {
		return false, err
	}
	return ch.IsSubscriber(userId), nil
}

// MemberExpiry returns the expiry instant of userId's membership in
// epoch milliseconds.
func (e *Engine) MemberExpiry(ctx context.Context, channelId, userId string) (int64, error) {
	ch, err := e.channel(ctx, channelId)
	if err != nil {
		return 0, err
	}
	expiry, ok := ch.MemberExpiry[userId]
	if !ok {
		return 0, types.NotFound("user %s has no membership expiry on channel %s", userId, channelId)
	}
	return expiry, nil
}

// Inbox lists every pending request across the creator's channels,
// newest first.
func (e *Engine) Inbox(ctx context.Context, creatorId string) ([]types.MembershipRequest, error) {
	docs, err := e.gw.List(ctx, gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("creatorId", gateway.OpEq, creatorId),
		gateway.Where("status", gateway.OpEq, string(types.RequestPending)),
	}, &gateway.OrderBy{Field: "requestedAt", Descending: true})
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[types.MembershipRequest](docs)
}

// UnreadInboxCount counts the creator's unread inbox entries.
func (e *Engine) UnreadInboxCount(ctx context.Context, creatorId string) (int, error) {
	docs, err := e.gw.List(ctx, gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("creatorId", gateway.OpEq, creatorId),
		gateway.Where("status", gateway.OpEq, string(types.RequestPending)),
		gateway.Where("read", gateway.OpEq, false),
	}, nil)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// MarkInboxRead marks every unread inbox entry of the creator as read.
func (e *Engine) MarkInboxRead(ctx context.Context, creatorId string) error {
	docs, err := e.gw.List(ctx, gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("creatorId", gateway.OpEq, creatorId),
		gateway.Where("read", gateway.OpEq, false),
	}, nil)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		req, err := gateway.Decode[types.MembershipRequest](doc)
		if err != nil {
			return err
		}
		if err := e.gw.Update(ctx, gateway.CollectionRequests, req.Id, map[string]any{"read": true}); err != nil {
			return err
		}
	}
	return nil
}
