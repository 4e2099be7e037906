package api

import (
	"encoding/json"
	"net/http"

	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/types"
)

type CreateConversationRequest struct {
	UserId string `json:"user_id"`
}

// getOrCreateConversation resolves the direct-message thread between
// the caller and the requested user, creating it on first contact.
func (s *Server) getOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.UserId == "" || req.UserId == user.Id {
		s.writeError(w, NewBadRequestError())
		return
	}

	doc, err := s.gw.GetOne(r.Context(), gateway.CollectionUsers, req.UserId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	other, err := gateway.Decode[types.User](doc)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	conv, err := s.conversations.GetOrCreateConversation(r.Context(), user.Id, other.Id,
		types.Profile{Nickname: user.Nickname, Avatar: user.Avatar, Phone: user.Phone},
		types.Profile{Nickname: other.Nickname, Avatar: other.Avatar, Phone: other.Phone})
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, conv)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	conversations, err := s.conversations.UserConversations(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, conversations)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.conversations.DeleteConversation(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	messages, err := s.conversations.ConversationMessages(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content   string            `json:"content"`
	Type      types.MessageType `json:"type"`
	Confirmed bool              `json:"confirmed"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Type == "" {
		req.Type = types.MessageText
	}

	msg, err := s.conversations.SendMessage(r.Context(), r.PathValue("id"), userId, req.Content, req.Type, req.Confirmed)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *Server) markConversationRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.conversations.MarkMessagesAsRead(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) totalUnread(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	count, err := s.conversations.TotalUnread(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}
