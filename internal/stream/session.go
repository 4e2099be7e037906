package stream

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Session is one websocket connection of an authenticated user. A user
// may hold several sessions; each receives the same event fan-out.
type Session struct {
	conn   *websocket.Conn
	hub    *Hub
	log    *log.Logger
	userId string
	send   chan *ServerEvent
	stop   chan struct{}

	unsubMu sync.Mutex
	unsubs  []func()
}

func NewSession(userId string, conn *websocket.Conn, hub *Hub, l *log.Logger) *Session {
	return &Session{
		conn:   conn,
		hub:    hub,
		log:    l,
		userId: userId,
		send:   make(chan *ServerEvent, 256),
		stop:   make(chan struct{}),
	}
}

func (s *Session) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.log.Println("write exiting")
	}()

	for {
		select {
		case event, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(event)
			if err != nil {
				s.log.Println("failed to serialize event:", err)
				continue
			}

			if !s.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) Read() {
	defer func() {
		s.conn.Close()
		s.cleanup()
		s.log.Println("read exiting")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(appData string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			s.log.Println("error parsing event:", err)
			s.queueEvent(ErrInvalidEvent(-1))
			continue
		}

		switch {
		case event.Ack != nil:
			if s.hub.acknowledge(s.userId) {
				s.queueEvent(NoErrOK(event.Id))
			} else {
				s.queueEvent(ErrNoActiveAlert(event.Id))
			}
		default:
			s.queueEvent(ErrInvalidEvent(event.Id))
		}
	}
}

func (s *Session) queueEvent(event *ServerEvent) bool {
	select {
	case s.send <- event:
	default:
		s.log.Println("failed to queue event, session channel is full")
		return false
	}

	return true
}

func (s *Session) writeMessage(msgType int, msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (s *Session) addUnsubscribe(fn func()) {
	s.unsubMu.Lock()
	defer s.unsubMu.Unlock()
	s.unsubs = append(s.unsubs, fn)
}

func (s *Session) stopSession() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Session) cleanup() {
	s.unsubMu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.unsubMu.Unlock()
	for _, fn := range unsubs {
		fn()
	}

	s.hub.deregister(s)
	s.stopSession()
}
