package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/testutil"
	"github.com/ycheng-dev/channelhub/internal/types"
)

type fakeAcker struct {
	acked []string
	reply bool
}

func (f *fakeAcker) Acknowledge(userId string) bool {
	f.acked = append(f.acked, userId)
	return f.reply
}

func newTestHub(t *testing.T) (*Hub, *gateway.MemoryGateway) {
	gw := gateway.NewMemoryGateway()
	t.Cleanup(func() { gw.Close(context.Background()) })
	return NewHub(testutil.TestLogger(t), gw), gw
}

func newTestSession(t *testing.T, h *Hub, userId string) *Session {
	return &Session{
		hub:    h,
		log:    testutil.TestLogger(t),
		userId: userId,
		send:   make(chan *ServerEvent, 256),
		stop:   make(chan struct{}),
	}
}

// drainUntil reads events off the session until match returns true or
// the deadline passes.
func drainUntil(t *testing.T, s *Session, match func(*ServerEvent) bool) *ServerEvent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case event := <-s.send:
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatal("expected event not received before deadline")
			return nil
		}
	}
}

func TestRegisterPushesInitialSnapshots(t *testing.T) {
	h, _ := newTestHub(t)
	s := newTestSession(t, h, "creator")

	err := h.Register(s)
	require.NoError(t, err, "expected register to succeed")
	defer s.cleanup()

	// One snapshot per subscribed view, in no guaranteed order.
	snapshots := make(map[string]*SnapshotEvent)
	deadline := time.After(time.Second)
	for len(snapshots) < 2 {
		select {
		case event := <-s.send:
			if event.Snapshot != nil {
				snapshots[event.Snapshot.View] = event.Snapshot
			}
		case <-deadline:
			t.Fatalf("expected both initial snapshots, got %d", len(snapshots))
		}
	}

	require.Contains(t, snapshots, ViewInbox, "expected an inbox snapshot")
	require.Contains(t, snapshots, ViewConversations, "expected a conversations snapshot")
	assert.Empty(t, snapshots[ViewInbox].Documents, "expected an empty initial inbox snapshot")
	assert.Empty(t, snapshots[ViewConversations].Documents, "expected an empty initial conversations snapshot")
}

func TestInboxSnapshotOnNewRequest(t *testing.T) {
	h, gw := newTestHub(t)
	s := newTestSession(t, h, "creator")
	require.NoError(t, h.Register(s))
	defer s.cleanup()

	req := types.MembershipRequest{
		Id: "req1", ChannelId: "ch1", CreatorId: "creator",
		UserId: "u1", Status: types.RequestPending,
	}
	_, err := gw.Create(context.Background(), gateway.CollectionRequests, req, req.Id)
	require.NoError(t, err)

	event := drainUntil(t, s, func(e *ServerEvent) bool {
		return e.Snapshot != nil && e.Snapshot.View == ViewInbox && len(e.Snapshot.Documents) == 1
	})
	assert.Equal(t, "req1", event.Snapshot.Documents[0]["_id"], "expected the new request in the snapshot")
}

func TestNotifyFansOutToAllUserSessions(t *testing.T) {
	h, _ := newTestHub(t)

	s1 := newTestSession(t, h, "u1")
	s2 := newTestSession(t, h, "u1")
	other := newTestSession(t, h, "u2")
	require.NoError(t, h.Register(s1))
	require.NoError(t, h.Register(s2))
	require.NoError(t, h.Register(other))
	defer s1.cleanup()
	defer s2.cleanup()
	defer other.cleanup()

	h.Notify("u1", alert.Notification{ChannelId: "ch1", Title: "ping"})

	for _, s := range []*Session{s1, s2} {
		event := drainUntil(t, s, func(e *ServerEvent) bool { return e.Alert != nil })
		assert.Equal(t, "ping", event.Alert.Title, "expected the alert delivered to every session of the user")
	}

	select {
	case event := <-other.send:
		assert.Nil(t, event.Alert, "expected no alert for another user")
	default:
	}
}

func TestAcknowledge(t *testing.T) {
	h, _ := newTestHub(t)

	assert.False(t, h.acknowledge("u1"), "expected ack to fail with no dispatcher wired")

	acker := &fakeAcker{reply: true}
	h.SetAcker(acker)
	assert.True(t, h.acknowledge("u1"), "expected ack to reach the dispatcher")
	assert.Equal(t, []string{"u1"}, acker.acked, "expected the user id forwarded")
}

func TestDeregisterRemovesSession(t *testing.T) {
	h, _ := newTestHub(t)
	s := newTestSession(t, h, "u1")
	require.NoError(t, h.Register(s))

	s.cleanup()

	h.Notify("u1", alert.Notification{Title: "ping"})
	select {
	case event := <-s.send:
		assert.Nil(t, event.Alert, "expected no alert after deregister")
	default:
	}
}
