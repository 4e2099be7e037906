// Package alert implements force-alert dispatch: opted-in channel
// members receive a repeating alert cycle until they acknowledge or a
// hard cap elapses. The device effect itself sits behind the Notifier
// interface; this layer only orchestrates the cycles.
package alert

import (
	"log"
	"sync"
	"time"

	"github.com/ycheng-dev/channelhub/internal/stats"
)

const (
	DefaultRepeatInterval = 2 * time.Second
	DefaultMaxDuration    = 60 * time.Second
)

// Notification is the payload delivered on every re-trigger of a
// cycle.
type Notification struct {
	ChannelId   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// Notifier delivers a notification to a user's device or session.
type Notifier interface {
	Notify(userId string, n Notification)
}

type cycle struct {
	stop chan struct{}
	done chan struct{}
}

type Dispatcher struct {
	log      *log.Logger
	notifier Notifier
	stats    stats.Provider
	interval time.Duration
	maxDur   time.Duration

	mu     sync.Mutex
	optIns map[string]map[string]bool
	cycles map[string]*cycle
	wg     sync.WaitGroup
}

func NewDispatcher(logger *log.Logger, notifier Notifier, provider stats.Provider, interval, maxDuration time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultRepeatInterval
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	d := &Dispatcher{
		log:      logger,
		notifier: notifier,
		stats:    provider,
		interval: interval,
		maxDur:   maxDuration,
		optIns:   make(map[string]map[string]bool),
		cycles:   make(map[string]*cycle),
	}

	d.stats.RegisterMetric(stats.MetricAlertsStarted)
	d.stats.RegisterMetric(stats.MetricAlertsAcknowledged)
	d.stats.RegisterMetric(stats.MetricAlertsExpired)

	return d
}

// Enable opts userId into force alerts for the channel.
func (d *Dispatcher) Enable(userId, channelId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.optIns[userId] == nil {
		d.optIns[userId] = make(map[string]bool)
	}
	d.optIns[userId][channelId] = true
}

// Disable opts userId out of force alerts for the channel.
func (d *Dispatcher) Disable(userId, channelId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.optIns[userId], channelId)
}

// Enabled reports whether userId opted into alerts for the channel.
func (d *Dispatcher) Enabled(userId, channelId string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.optIns[userId][channelId]
}

// SendChannelAlert starts a repeating alert cycle for every recipient
// that opted into the channel. A recipient's already running cycle is
// stopped before the new one starts; at most one cycle is ever active
// per recipient.
func (d *Dispatcher) SendChannelAlert(channelId string, recipients []string, n Notification) {
	n.ChannelId = channelId

	for _, userId := range recipients {
		if !d.Enabled(userId, channelId) {
			continue
		}
		d.startCycle(userId, n)
	}
}

func (d *Dispatcher) startCycle(userId string, n Notification) {
	d.mu.Lock()
	if prev, ok := d.cycles[userId]; ok {
		close(prev.stop)
		delete(d.cycles, userId)
	}
	c := &cycle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	d.cycles[userId] = c
	d.wg.Add(1)
	d.mu.Unlock()

	d.stats.Incr(stats.MetricAlertsStarted)
	go d.runCycle(userId, n, c)
}

func (d *Dispatcher) runCycle(userId string, n Notification, c *cycle) {
	defer d.wg.Done()
	defer close(c.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(d.maxDur)
	defer deadline.Stop()

	d.notifier.Notify(userId, n)

	for {
		select {
		case <-ticker.C:
			d.notifier.Notify(userId, n)
		case <-deadline.C:
			// Hard cap: force-stop regardless of acknowledgment.
			d.stats.Incr(stats.MetricAlertsExpired)
			d.clearCycle(userId, c)
			return
		case <-c.stop:
			return
		}
	}
}

func (d *Dispatcher) clearCycle(userId string, c *cycle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cycles[userId] == c {
		delete(d.cycles, userId)
	}
}

// Acknowledge stops the user's active cycle, if any. Reports whether a
// cycle was running.
func (d *Dispatcher) Acknowledge(userId string) bool {
	d.mu.Lock()
	c, ok := d.cycles[userId]
	if ok {
		close(c.stop)
		delete(d.cycles, userId)
	}
	d.mu.Unlock()

	if ok {
		<-c.done
		d.stats.Incr(stats.MetricAlertsAcknowledged)
	}
	return ok
}

// Active reports whether the user has a running alert cycle.
func (d *Dispatcher) Active(userId string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.cycles[userId]
	return ok
}

// Stop cancels every running cycle and waits for them to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	for userId, c := range d.cycles {
		close(c.stop)
		delete(d.cycles, userId)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Println("alert dispatcher stopped")
}
