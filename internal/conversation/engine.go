// Package conversation owns two-party direct-message threads: canonical
// pair ids, message append with moderation, and per-user unread-count
// aggregation.
package conversation

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/moderation"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/syncutil"
	"github.com/ycheng-dev/channelhub/internal/types"
)

// ImagePlaceholder summarizes image messages in conversation previews.
const ImagePlaceholder = "[图片]"

type Engine struct {
	log    *log.Logger
	gw     gateway.Gateway
	stats  stats.Provider
	filter *moderation.Filter
	locks  *syncutil.KeyedMutex

	// Cached per-user unread totals, maintained incrementally by the
	// send/read/delete paths and primed lazily by a full scan. The
	// invariant: totals[u] == sum of unreadCount[u] over the user's
	// conversations, whenever primed[u] holds.
	aggMu  sync.Mutex
	primed map[string]bool
	totals map[string]int

	now   func() time.Time
	newId func() string
}

func NewEngine(logger *log.Logger, gw gateway.Gateway, provider stats.Provider, filter *moderation.Filter) *Engine {
	e := &Engine{
		log:    logger,
		gw:     gw,
		stats:  provider,
		filter: filter,
		locks:  syncutil.NewKeyedMutex(),
		primed: make(map[string]bool),
		totals: make(map[string]int),
		now:    time.Now,
		newId:  uuid.NewString,
	}

	e.stats.RegisterMetric(stats.MetricMessagesSent)
	e.stats.RegisterMetric(stats.MetricMessagesBlocked)

	return e
}

// ConversationId derives the canonical thread id for a user pair,
// lexicographically smaller id first, so both call orders resolve to
// the same conversation.
func ConversationId(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "-" + userB
}

func (e *Engine) nowMillis() int64 {
	return e.now().UTC().UnixMilli()
}

func (e *Engine) conversation(ctx context.Context, conversationId string) (types.Conversation, error) {
	doc, err := e.gw.GetOne(ctx, gateway.CollectionConversations, conversationId)
	if err != nil {
		return types.Conversation{}, err
	}
	return gateway.Decode[types.Conversation](doc)
}

// GetOrCreateConversation resolves the thread between two users,
// creating it empty if absent. Participant profiles are cached on the
// conversation at creation time.
func (e *Engine) GetOrCreateConversation(ctx context.Context, userA, userB string, profileA, profileB types.Profile) (*types.Conversation, error) {
	id := ConversationId(userA, userB)
	unlock := e.locks.Lock(id)
	defer unlock()

	conv, err := e.conversation(ctx, id)
	if err == nil {
		return &conv, nil
	}
	if !types.IsKind(err, types.KindNotFound) {
		return nil, err
	}

	// Store participants in canonical order to match the id.
	if userA > userB {
		userA, userB = userB, userA
		profileA, profileB = profileB, profileA
	}

	conv = types.Conversation{
		Id: id,
		Participants: []types.Participant{
			{Id: userA, Nickname: profileA.Nickname, Avatar: profileA.Avatar},
			{Id: userB, Nickname: profileB.Nickname, Avatar: profileB.Avatar},
		},
		ParticipantIds: []string{userA, userB},
		Messages:       []types.Message{},
		UnreadCount:    map[string]int{userA: 0, userB: 0},
		CreatedAt:      e.nowMillis(),
	}
	if _, err := e.gw.Create(ctx, gateway.CollectionConversations, conv, conv.Id); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SendMessage appends a message to the thread and bumps the unread
// count of every other participant. Text content runs through the
// moderation filter; image messages summarize to a fixed placeholder
// in the conversation preview.
func (e *Engine) SendMessage(ctx context.Context, conversationId, senderId, content string, msgType types.MessageType, confirmed bool) (*types.Message, error) {
	unlock := e.locks.Lock(conversationId)
	defer unlock()

	conv, err := e.conversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderId) {
		return nil, types.Forbidden("user %s is not a participant of conversation %s", senderId, conversationId)
	}

	if msgType == types.MessageText {
		res := e.filter.FilterContent(content)
		switch res.Action {
		case moderation.ActionBlock:
			e.stats.Incr(stats.MetricMessagesBlocked)
			return nil, types.ContentBlocked("message content is not allowed")
		case moderation.ActionWarn:
			if !confirmed {
				return nil, types.ConfirmRequired("message content is flagged, confirmation required")
			}
		case moderation.ActionReplace:
			content = res.FilteredText
		}
	}

	msg := types.Message{
		Id:        e.newId(),
		SenderId:  senderId,
		Content:   content,
		Type:      msgType,
		Timestamp: e.nowMillis(),
	}

	preview := content
	if msgType == types.MessageImage {
		preview = ImagePlaceholder
	}

	unread := conv.UnreadCount
	if unread == nil {
		unread = make(map[string]int)
	}
	recipients := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p.Id != senderId {
			unread[p.Id]++
			recipients = append(recipients, p.Id)
		}
	}

	err = e.gw.Update(ctx, gateway.CollectionConversations, conversationId, map[string]any{
		"messages":        append(conv.Messages, msg),
		"lastMessage":     preview,
		"lastMessageTime": msg.Timestamp,
		"unreadCount":     unread,
	})
	if err != nil {
		return nil, err
	}

	// cached aggregate moves only after the store does
	for _, id := range recipients {
		e.bumpUnread(id, 1)
	}

	e.stats.Incr(stats.MetricMessagesSent)
	return &msg, nil
}

// MarkMessagesAsRead zeroes the user's unread count for the thread and
// marks every message from the other party as read.
func (e *Engine) MarkMessagesAsRead(ctx context.Context, conversationId, userId string) error {
	unlock := e.locks.Lock(conversationId)
	defer unlock()

	conv, err := e.conversation(ctx, conversationId)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userId) {
		return types.Forbidden("user %s is not a participant of conversation %s", userId, conversationId)
	}

	cleared := conv.UnreadCount[userId]
	if cleared == 0 {
		return nil
	}

	for i := range conv.Messages {
		if conv.Messages[i].SenderId != userId {
			conv.Messages[i].Read = true
		}
	}
	conv.UnreadCount[userId] = 0

	err = e.gw.Update(ctx, gateway.CollectionConversations, conversationId, map[string]any{
		"messages":    conv.Messages,
		"unreadCount": conv.UnreadCount,
	})
	if err != nil {
		return err
	}

	e.bumpUnread(userId, -cleared)
	return nil
}

// TotalUnread returns the user's unread message count across all
// conversations. The first call per user scans once; afterwards the
// total is maintained incrementally by the send and read paths.
func (e *Engine) TotalUnread(ctx context.Context, userId string) (int, error) {
	e.aggMu.Lock()
	defer e.aggMu.Unlock()

	if e.primed[userId] {
		return e.totals[userId], nil
	}

	convs, err := e.userConversations(ctx, userId)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range convs {
		total += c.UnreadCount[userId]
	}
	e.totals[userId] = total
	e.primed[userId] = true
	return total, nil
}

func (e *Engine) bumpUnread(userId string, delta int) {
	e.aggMu.Lock()
	defer e.aggMu.Unlock()
	if e.primed[userId] {
		e.totals[userId] += delta
	}
}

func (e *Engine) userConversations(ctx context.Context, userId string) ([]types.Conversation, error) {
	docs, err := e.gw.List(ctx, gateway.CollectionConversations, []gateway.Filter{
		gateway.Where("participantIds", gateway.OpContains, userId),
	}, nil)
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[types.Conversation](docs)
}

// UserConversations lists the user's threads, most recently active
// first. Threads with no messages sort last.
func (e *Engine) UserConversations(ctx context.Context, userId string) ([]types.Conversation, error) {
	convs, err := e.userConversations(ctx, userId)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessageTime > convs[j].LastMessageTime
	})
	return convs, nil
}

// ConversationMessages returns a thread's messages in send order.
func (e *Engine) ConversationMessages(ctx context.Context, conversationId, userId string) ([]types.Message, error) {
	conv, err := e.conversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userId) {
		return nil, types.Forbidden("user %s is not a participant of conversation %s", userId, conversationId)
	}
	return conv.Messages, nil
}

// DeleteConversation removes a thread. Participant only. The caller's
// and the other party's unread totals both drop by whatever the thread
// still carried.
func (e *Engine) DeleteConversation(ctx context.Context, conversationId, userId string) error {
	unlock := e.locks.Lock(conversationId)
	defer unlock()

	conv, err := e.conversation(ctx, conversationId)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userId) {
		return types.Forbidden("user %s is not a participant of conversation %s", userId, conversationId)
	}

	if err := e.gw.Delete(ctx, gateway.CollectionConversations, conversationId); err != nil {
		return err
	}

	for participantId, n := range conv.UnreadCount {
		if n > 0 {
			e.bumpUnread(participantId, -n)
		}
	}
	return nil
}
