package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string][]Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{calls: make(map[string][]Notification)}
}

func (r *recordingNotifier) Notify(userId string, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[userId] = append(r.calls[userId], n)
}

func (r *recordingNotifier) count(userId string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls[userId])
}

func (r *recordingNotifier) last(userId string) Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls[userId]
	if len(calls) == 0 {
		return Notification{}
	}
	return calls[len(calls)-1]
}

func newTestDispatcher(t *testing.T, n Notifier) *Dispatcher {
	d := NewDispatcher(testutil.TestLogger(t), n, stats.Noop{}, 10*time.Millisecond, 100*time.Millisecond)
	t.Cleanup(d.Stop)
	return d
}

func TestOptInRegistry(t *testing.T) {
	d := newTestDispatcher(t, newRecordingNotifier())

	assert.False(t, d.Enabled("u1", "ch1"), "expected no opt-in initially")

	d.Enable("u1", "ch1")
	assert.True(t, d.Enabled("u1", "ch1"), "expected opt-in after Enable")
	assert.False(t, d.Enabled("u1", "ch2"), "expected opt-in scoped per channel")

	d.Disable("u1", "ch1")
	assert.False(t, d.Enabled("u1", "ch1"), "expected opt-out after Disable")
}

func TestSendChannelAlertSkipsUnsubscribed(t *testing.T) {
	n := newRecordingNotifier()
	d := newTestDispatcher(t, n)

	d.Enable("u1", "ch1")
	d.SendChannelAlert("ch1", []string{"u1", "u2"}, Notification{ChannelName: "tech"})

	assert.Eventually(t, func() bool { return n.count("u1") >= 1 }, time.Second, 5*time.Millisecond,
		"expected the opted-in recipient notified")
	assert.Zero(t, n.count("u2"), "expected the non-opted-in recipient skipped")
	assert.True(t, d.Active("u1"), "expected an active cycle for the notified recipient")
}

func TestCycleRepeatsUntilAcknowledged(t *testing.T) {
	n := newRecordingNotifier()
	d := newTestDispatcher(t, n)

	d.Enable("u1", "ch1")
	d.SendChannelAlert("ch1", []string{"u1"}, Notification{})

	assert.Eventually(t, func() bool { return n.count("u1") >= 3 }, time.Second, 5*time.Millisecond,
		"expected the cycle to re-trigger on the repeat interval")

	assert.True(t, d.Acknowledge("u1"), "expected acknowledge to find a running cycle")
	assert.False(t, d.Active("u1"), "expected no active cycle after acknowledge")

	settled := n.count("u1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, n.count("u1"), "expected no further notifications after acknowledge")

	assert.False(t, d.Acknowledge("u1"), "expected a second acknowledge to find nothing")
}

func TestCycleStopsAtHardCap(t *testing.T) {
	n := newRecordingNotifier()
	d := newTestDispatcher(t, n)

	d.Enable("u1", "ch1")
	d.SendChannelAlert("ch1", []string{"u1"}, Notification{})

	assert.Eventually(t, func() bool { return !d.Active("u1") }, time.Second, 5*time.Millisecond,
		"expected the cycle force-stopped at the cap")

	settled := n.count("u1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, n.count("u1"), "expected no notifications after the cap")
}

func TestNewAlertReplacesRunningCycle(t *testing.T) {
	n := newRecordingNotifier()
	d := newTestDispatcher(t, n)

	d.Enable("u1", "ch1")
	d.Enable("u1", "ch2")

	d.SendChannelAlert("ch1", []string{"u1"}, Notification{ChannelName: "first"})
	assert.Eventually(t, func() bool { return n.count("u1") >= 1 }, time.Second, 5*time.Millisecond)

	d.SendChannelAlert("ch2", []string{"u1"}, Notification{ChannelName: "second"})

	assert.Eventually(t, func() bool {
		return n.last("u1").ChannelName == "second"
	}, time.Second, 5*time.Millisecond, "expected the new cycle to take over")

	// Only the replacement cycle keeps firing.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, "second", n.last("u1").ChannelName, "expected the first cycle stopped before the second started")
	assert.Equal(t, "ch2", n.last("u1").ChannelId, "expected the channel id stamped on the payload")
}
