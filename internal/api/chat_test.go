package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ycheng-dev/channelhub/internal/conversation"
	"github.com/ycheng-dev/channelhub/internal/types"
)

func TestConversationHandlers(t *testing.T) {
	s, gw := newTestServer(t)
	alice := seedUser(t, gw, "alice", types.RoleMember)
	bob := seedUser(t, gw, "bob", types.RoleMember)

	var convId string

	t.Run("create resolves the canonical thread", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.getOrCreateConversation(rr, authedRequest(t, http.MethodPost, "/api/conversations",
			CreateConversationRequest{UserId: bob.Id}, alice.Id))

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		conv := decodeBody[types.Conversation](t, rr)
		assert.Equal(t, conversation.ConversationId(alice.Id, bob.Id), conv.Id, "expected canonical id")
		convId = conv.Id

		// creating from the other side resolves to the same thread
		rr = httptest.NewRecorder()
		s.getOrCreateConversation(rr, authedRequest(t, http.MethodPost, "/api/conversations",
			CreateConversationRequest{UserId: alice.Id}, bob.Id))

		again := decodeBody[types.Conversation](t, rr)
		assert.Equal(t, convId, again.Id, "expected the same conversation either way")
	})

	t.Run("conversation with self is a bad request", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.getOrCreateConversation(rr, authedRequest(t, http.MethodPost, "/api/conversations",
			CreateConversationRequest{UserId: alice.Id}, alice.Id))

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})

	t.Run("conversation with unknown user is not found", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.getOrCreateConversation(rr, authedRequest(t, http.MethodPost, "/api/conversations",
			CreateConversationRequest{UserId: "ghost"}, alice.Id))

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})

	t.Run("send a message and read it back", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/api/conversations/"+convId+"/messages",
			SendMessageRequest{Content: "hello bob"}, alice.Id)
		req.SetPathValue("id", convId)

		rr := httptest.NewRecorder()
		s.sendMessage(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		msg := decodeBody[types.Message](t, rr)
		assert.Equal(t, alice.Id, msg.SenderId, "expected sender to be stamped")
		assert.Equal(t, types.MessageText, msg.Type, "expected type to default to text")

		req = authedRequest(t, http.MethodGet, "/api/conversations/"+convId+"/messages", nil, bob.Id)
		req.SetPathValue("id", convId)

		rr = httptest.NewRecorder()
		s.listMessages(rr, req)

		messages := decodeBody[[]types.Message](t, rr)
		require.Len(t, messages, 1, "expected one message")
		assert.Equal(t, "hello bob", messages[0].Content, "expected content to round trip")
	})

	t.Run("unread count tracks sends and reads", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.totalUnread(rr, authedRequest(t, http.MethodGet, "/api/messages/unread-count", nil, bob.Id))

		counts := decodeBody[map[string]int](t, rr)
		assert.Equal(t, 1, counts["count"], "expected one unread message for bob")

		req := authedRequest(t, http.MethodPost, "/api/conversations/"+convId+"/read", nil, bob.Id)
		req.SetPathValue("id", convId)

		rr = httptest.NewRecorder()
		s.markConversationRead(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")

		rr = httptest.NewRecorder()
		s.totalUnread(rr, authedRequest(t, http.MethodGet, "/api/messages/unread-count", nil, bob.Id))

		counts = decodeBody[map[string]int](t, rr)
		assert.Zero(t, counts["count"], "expected no unread messages after reading")
	})

	t.Run("outsider cannot read messages", func(t *testing.T) {
		eve := seedUser(t, gw, "eve", types.RoleMember)

		req := authedRequest(t, http.MethodGet, "/api/conversations/"+convId+"/messages", nil, eve.Id)
		req.SetPathValue("id", convId)

		rr := httptest.NewRecorder()
		s.listMessages(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("participant deletes the conversation", func(t *testing.T) {
		req := authedRequest(t, http.MethodDelete, "/api/conversations/"+convId, nil, alice.Id)
		req.SetPathValue("id", convId)

		rr := httptest.NewRecorder()
		s.deleteConversation(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")

		rr = httptest.NewRecorder()
		s.listConversations(rr, authedRequest(t, http.MethodGet, "/api/conversations", nil, alice.Id))

		conversations := decodeBody[[]types.Conversation](t, rr)
		assert.Empty(t, conversations, "expected no conversations after delete")
	})
}

func TestAlertHandlers(t *testing.T) {
	s, gw := newTestServer(t)
	admin := seedUser(t, gw, "creator", types.RoleAdmin)
	fan := seedUser(t, gw, "fan", types.RoleMember)
	ch := seedChannel(t, s, admin, "alerts")

	t.Run("fan opts in", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/api/channels/"+ch.Id+"/alerts/enable", nil, fan.Id)
		req.SetPathValue("id", ch.Id)

		rr := httptest.NewRecorder()
		s.enableAlerts(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")
		assert.True(t, s.alerts.Enabled(fan.Id, ch.Id), "expected opt-in to be recorded")
	})

	t.Run("opting in to an unknown channel is not found", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/api/channels/missing/alerts/enable", nil, fan.Id)
		req.SetPathValue("id", "missing")

		rr := httptest.NewRecorder()
		s.enableAlerts(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})

	t.Run("only the creator sends alerts", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/api/channels/"+ch.Id+"/alerts",
			SendAlertRequest{Title: "live now"}, fan.Id)
		req.SetPathValue("id", ch.Id)

		rr := httptest.NewRecorder()
		s.sendChannelAlert(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("alert cycle starts and is acknowledged", func(t *testing.T) {
		// fan must actually be a subscriber for the alert to reach them
		reqSub := authedRequest(t, http.MethodPost, "/api/channels/"+ch.Id+"/subscriptions", nil, fan.Id)
		reqSub.SetPathValue("id", ch.Id)
		rr := httptest.NewRecorder()
		s.requestSubscription(rr, reqSub)
		require.Equal(t, http.StatusCreated, rr.Code)

		reqApprove := authedRequest(t, http.MethodPost, "/api/channels/"+ch.Id+"/subscriptions/"+fan.Id+"/approve",
			ApproveSubscriptionRequest{Duration: "1month"}, admin.Id)
		reqApprove.SetPathValue("id", ch.Id)
		reqApprove.SetPathValue("userId", fan.Id)
		rr = httptest.NewRecorder()
		s.approveSubscription(rr, reqApprove)
		require.Equal(t, http.StatusOK, rr.Code)

		req := authedRequest(t, http.MethodPost, "/api/channels/"+ch.Id+"/alerts",
			SendAlertRequest{Title: "live now", Body: "join in"}, admin.Id)
		req.SetPathValue("id", ch.Id)

		rr = httptest.NewRecorder()
		s.sendChannelAlert(rr, req)

		assert.Equal(t, http.StatusAccepted, rr.Code, "expected status code to be 202")
		assert.True(t, s.alerts.Active(fan.Id), "expected an active cycle for the fan")

		rr = httptest.NewRecorder()
		s.acknowledgeAlert(rr, authedRequest(t, http.MethodPost, "/api/alerts/ack", nil, fan.Id))

		acked := decodeBody[map[string]bool](t, rr)
		assert.True(t, acked["acknowledged"], "expected acknowledgement to land")

		assert.Eventually(t, func() bool {
			return !s.alerts.Active(fan.Id)
		}, time.Second, 10*time.Millisecond, "expected cycle to stop after acknowledgement")
	})

	t.Run("ack without an active cycle reports false", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.acknowledgeAlert(rr, authedRequest(t, http.MethodPost, "/api/alerts/ack", nil, admin.Id))

		acked := decodeBody[map[string]bool](t, rr)
		assert.False(t, acked["acknowledged"], "expected no cycle to acknowledge")
	})
}
