package membership

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/types"
)

const DefaultSweepInterval = 10 * time.Second

// SweepExpiredMembers evicts every subscriber whose membership expiry
// has passed, across all channels. Per-channel failures are logged and
// skipped so one bad record cannot block eviction elsewhere. Running
// the sweep twice with no time passing is a no-op the second time.
// Returns the number of members evicted.
func (e *Engine) SweepExpiredMembers(ctx context.Context) (int, error) {
	docs, err := e.gw.List(ctx, gateway.CollectionChannels, nil, nil)
	if err != nil {
		return 0, err
	}

	now := e.nowMillis()
	evicted := 0
	for _, doc := range docs {
		ch, err := gateway.Decode[types.Channel](doc)
		if err != nil {
			e.log.Printf("sweep: decode channel: %v", err)
			continue
		}

		n, err := e.sweepChannel(ctx, ch.Id, now)
		if err != nil {
			e.log.Printf("sweep: channel %s: %v", ch.Id, err)
			continue
		}
		evicted += n
	}

	e.stats.Incr(stats.MetricSweepsRun)
	if evicted > 0 {
		e.stats.Add(stats.MetricMembersEvicted, evicted)
	}
	return evicted, nil
}

func (e *Engine) sweepChannel(ctx context.Context, channelId string, now int64) (int, error) {
	unlock := e.locks.Lock(channelId)
	defer unlock()

	// Re-read under the lock; the channel may have been mutated or
	// deleted since the listing.
	ch, err := e.channel(ctx, channelId)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}

	expired := make(map[string]bool)
	for userId, expiry := range ch.MemberExpiry {
		if expiry < now {
			expired[userId] = true
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	subscribers := make([]string, 0, len(ch.Subscribers))
	for _, userId := range ch.Subscribers {
		if !expired[userId] {
			subscribers = append(subscribers, userId)
		}
	}
	memberExpiry := make(map[string]int64, len(ch.MemberExpiry))
	for userId, expiry := range ch.MemberExpiry {
		if !expired[userId] {
			memberExpiry[userId] = expiry
		}
	}

	count := ch.SubscriberCount - len(expired)
	if count < 0 {
		count = 0
	}

	err = e.gw.Update(ctx, gateway.CollectionChannels, channelId, map[string]any{
		"subscribers":     subscribers,
		"memberExpiry":    memberExpiry,
		"subscriberCount": count,
	})
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}

	e.log.Printf("sweep: evicted %d expired member(s) from channel %s", len(expired), channelId)
	return len(expired), nil
}

// Sweeper runs the expiry sweep on a fixed interval. It is owned by
// the application root with explicit Start/Stop, independent of any
// request lifecycle.
type Sweeper struct {
	log      *log.Logger
	engine   *Engine
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewSweeper(logger *log.Logger, engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		log:      logger,
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Printf("membership sweeper started, interval %s", s.interval)
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	// Skip the tick if the previous sweep is still running.
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if _, err := s.engine.SweepExpiredMembers(ctx); err != nil {
		s.log.Printf("membership sweep: %v", err)
	}
}

func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Println("membership sweeper stopped")
}
