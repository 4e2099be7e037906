package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/stream"
)

func (s *Server) enableAlerts(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("id")

	if _, err := s.directory.GetChannel(r.Context(), channelId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.alerts.Enable(userId, channelId)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disableAlerts(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	s.alerts.Disable(userId, r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type SendAlertRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// sendChannelAlert starts a force-alert cycle for every opted-in
// subscriber of the channel. Creator only.
func (s *Server) sendChannelAlert(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("id")

	ch, err := s.directory.GetChannel(r.Context(), channelId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	if ch.CreatorId != userId {
		s.writeError(w, NewForbiddenError())
		return
	}

	var req SendAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	s.alerts.SendChannelAlert(channelId, ch.Subscribers, alert.Notification{
		ChannelName: ch.Name,
		Title:       req.Title,
		Body:        req.Body,
	})

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	acked := s.alerts.Acknowledge(userId)

	s.writeJson(w, http.StatusOK, map[string]bool{"acknowledged": acked})
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	session := stream.NewSession(userId, conn, s.hub, s.log)
	if err := s.hub.Register(session); err != nil {
		s.log.Println("error registering session:", err)
		conn.Close()
		return
	}

	go session.Write()
	go session.Read()
}
