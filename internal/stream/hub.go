// Package stream is the real-time layer: websocket sessions receive
// authoritative view snapshots from the persistence gateway and force
// alerts from the dispatcher, and send back acknowledgments.
package stream

import (
	"log"
	"sync"

	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/types"
)

// Acker stops a user's running alert cycle. Implemented by the alert
// dispatcher.
type Acker interface {
	Acknowledge(userId string) bool
}

type Hub struct {
	log *log.Logger
	gw  gateway.Gateway

	mu       sync.Mutex
	acker    Acker
	sessions map[string]map[*Session]struct{}
}

func NewHub(logger *log.Logger, gw gateway.Gateway) *Hub {
	return &Hub{
		log:      logger,
		gw:       gw,
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// SetAcker wires the alert dispatcher in. The hub and the dispatcher
// reference each other, so one side is attached after construction.
func (h *Hub) SetAcker(a Acker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acker = a
}

// Register adds a session and opens its per-user view subscriptions:
// the creator inbox and the conversation list. Every gateway push is
// forwarded as a full snapshot replace.
func (h *Hub) Register(s *Session) error {
	h.mu.Lock()
	if h.sessions[s.userId] == nil {
		h.sessions[s.userId] = make(map[*Session]struct{})
	}
	h.sessions[s.userId][s] = struct{}{}
	h.mu.Unlock()

	h.log.Printf("session registered for user %s", s.userId)

	unsubInbox, err := h.gw.Subscribe(gateway.CollectionRequests, []gateway.Filter{
		gateway.Where("creatorId", gateway.OpEq, s.userId),
		gateway.Where("status", gateway.OpEq, string(types.RequestPending)),
	}, func(docs []gateway.Document) {
		s.queueEvent(newSnapshotEvent(ViewInbox, docs))
	})
	if err != nil {
		h.deregister(s)
		return err
	}
	s.addUnsubscribe(unsubInbox)

	unsubConvs, err := h.gw.Subscribe(gateway.CollectionConversations, []gateway.Filter{
		gateway.Where("participantIds", gateway.OpContains, s.userId),
	}, func(docs []gateway.Document) {
		s.queueEvent(newSnapshotEvent(ViewConversations, docs))
	})
	if err != nil {
		s.cleanup()
		return err
	}
	s.addUnsubscribe(unsubConvs)

	return nil
}

func (h *Hub) deregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.sessions[s.userId]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.userId)
		}
	}
}

// Notify fans an alert out to every session of the user. Implements
// alert.Notifier.
func (h *Hub) Notify(userId string, n alert.Notification) {
	h.mu.Lock()
	set := make([]*Session, 0, len(h.sessions[userId]))
	for s := range h.sessions[userId] {
		set = append(set, s)
	}
	h.mu.Unlock()

	for _, s := range set {
		s.queueEvent(newAlertEvent(n))
	}
}

func (h *Hub) acknowledge(userId string) bool {
	h.mu.Lock()
	acker := h.acker
	h.mu.Unlock()

	if acker == nil {
		return false
	}
	return acker.Acknowledge(userId)
}

// Shutdown stops every session.
func (h *Hub) Shutdown() {
	h.log.Println("shutting down sessions")

	h.mu.Lock()
	var all []*Session
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.stopSession()
	}
}
