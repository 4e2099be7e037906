package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ycheng-dev/channelhub/internal/types"
)

type CreateChannelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Avatar      string `json:"avatar"`
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Name == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	ch, err := s.directory.CreateChannel(r.Context(), types.Channel{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Avatar:      req.Avatar,
	}, *user)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, ch)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.directory.Channels(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, channels)
}

// getChannel returns a single channel with its posts filtered for the
// requesting viewer.
func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	ch, err := s.directory.GetChannel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	ch.Posts = s.directory.VisiblePosts(ch, userId)

	s.writeJson(w, http.StatusOK, ch)
}

func (s *Server) deleteChannel(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.directory.DeleteChannel(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) userChannels(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	channels, err := s.directory.UserChannels(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, channels)
}

type UpdateSubscriberCountRequest struct {
	Count int `json:"count"`
}

func (s *Server) updateSubscriberCount(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req UpdateSubscriberCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.directory.UpdateSubscriberCount(r.Context(), r.PathValue("id"), req.Count, userId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleHideToday(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	hidden, err := s.directory.ToggleHideTodayContent(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]bool{"hide_today_content": hidden})
}

type CreatePostRequest struct {
	Type      types.PostType `json:"type"`
	Content   string         `json:"content"`
	Media     string         `json:"media"`
	Confirmed bool           `json:"confirmed"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	post, err := s.directory.PostToChannel(r.Context(), r.PathValue("id"), types.Post{
		Type:    req.Type,
		Content: req.Content,
		Media:   req.Media,
	}, userId, req.Confirmed)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, post)
}

type UpdatePostRequest struct {
	Content   *string `json:"content,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty"`
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	channelId, postId := r.PathValue("id"), r.PathValue("postId")

	if req.Content != nil {
		if err := s.directory.UpdatePostContent(r.Context(), channelId, postId, *req.Content, userId); err != nil {
			s.writeError(w, NewDomainError(err))
			return
		}
	}

	if req.Timestamp != nil {
		if err := s.directory.UpdatePostTime(r.Context(), channelId, postId, *req.Timestamp, userId); err != nil {
			s.writeError(w, NewDomainError(err))
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// listCategories returns all categories, or with ?selectable=true only
// the ones a channel can be tagged with.
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	var categories []types.Category
	var err error

	if r.URL.Query().Get("selectable") == "true" {
		categories, err = s.directory.CreateCategories(r.Context())
	} else {
		categories, err = s.directory.Categories(r.Context())
	}
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, categories)
}

type RenameCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) renameCategory(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	var req RenameCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.directory.UpdateCategoryName(r.Context(), index, req.Name, user.IsPrivileged()); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type ApproveSubscriptionRequest struct {
	Duration string `json:"duration"`
}

func (s *Server) requestSubscription(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	req, err := s.membership.RequestSubscription(r.Context(), r.PathValue("id"), user.Id, types.Profile{
		Nickname: user.Nickname,
		Avatar:   user.Avatar,
		Phone:    user.Phone,
	})
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, req)
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.membership.CancelSubscriptionRequest(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pendingSubscriptions lists a channel's pending requests. Only the
// channel creator may view them.
func (s *Server) pendingSubscriptions(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("id")

	if errResp := s.requireChannelCreator(r, channelId, userId); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	requests, err := s.membership.PendingRequests(r.Context(), channelId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, requests)
}

func (s *Server) approveSubscription(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("id")

	if errResp := s.requireChannelCreator(r, channelId, userId); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	var req ApproveSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	approved, err := s.membership.ApproveSubscription(r.Context(), channelId, r.PathValue("userId"), req.Duration)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, approved)
}

func (s *Server) rejectSubscription(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("id")

	if errResp := s.requireChannelCreator(r, channelId, userId); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	rejected, err := s.membership.RejectSubscription(r.Context(), channelId, r.PathValue("userId"))
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, rejected)
}

func (s *Server) requireChannelCreator(r *http.Request, channelId, userId string) *ApiError {
	ch, err := s.directory.GetChannel(r.Context(), channelId)
	if err != nil {
		return NewDomainError(err)
	}

	if ch.CreatorId != userId {
		return NewForbiddenError()
	}

	return nil
}

type MembershipStatus struct {
	Subscribed bool  `json:"subscribed"`
	Pending    bool  `json:"pending"`
	Expiry     int64 `json:"expiry,omitempty"`
}

// membershipStatus reports the caller's standing with a channel:
// active subscription (with expiry) or a pending request.
func (s *Server) membershipStatus(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	channelId := r.PathValue("id")

	subscribed, err := s.membership.IsSubscribed(r.Context(), channelId, userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	status := MembershipStatus{Subscribed: subscribed}

	if subscribed {
		expiry, err := s.membership.MemberExpiry(r.Context(), channelId, userId)
		if err == nil {
			status.Expiry = expiry
		} else if !types.IsKind(err, types.KindNotFound) {
			s.writeError(w, NewDomainError(err))
			return
		}
	} else {
		pending, err := s.membership.HasPendingRequest(r.Context(), channelId, userId)
		if err != nil {
			s.writeError(w, NewDomainError(err))
			return
		}
		status.Pending = pending
	}

	s.writeJson(w, http.StatusOK, status)
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	requests, err := s.membership.Inbox(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, requests)
}

func (s *Server) inboxUnreadCount(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	count, err := s.membership.UnreadInboxCount(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) markInboxRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	if err := s.membership.MarkInboxRead(r.Context(), userId); err != nil {
		s.writeError(w, NewDomainError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
