package stream

import (
	"net/http"
	"time"

	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/gateway"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the union of messages a session may send. Exactly one
// member is non-nil.
type ClientEvent struct {
	BaseEvent
	Ack *AckEvent `json:"ack,omitempty"`
}

// AckEvent acknowledges the user's running force-alert cycle.
type AckEvent struct{}

// ServerEvent is the union of messages pushed to a session.
type ServerEvent struct {
	BaseEvent
	Response *Response           `json:"response,omitempty"`
	Alert    *alert.Notification `json:"alert,omitempty"`
	Snapshot *SnapshotEvent      `json:"snapshot,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

// SnapshotEvent carries the full current result set of a watched view.
// Each push replaces the client's local copy of that view entirely.
type SnapshotEvent struct {
	View      string             `json:"view"`
	Documents []gateway.Document `json:"documents"`
}

const (
	ViewInbox         = "inbox"
	ViewConversations = "conversations"
)

func NoErrOK(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func ErrNoActiveAlert(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "no active alert",
		},
	}
}

func ErrInvalidEvent(id int) *ServerEvent {
	msg := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid event format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func newSnapshotEvent(view string, docs []gateway.Document) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Snapshot: &SnapshotEvent{
			View:      view,
			Documents: docs,
		},
	}
}

func newAlertEvent(n alert.Notification) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Alert:     &n,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
