package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/config"
	"github.com/ycheng-dev/channelhub/internal/conversation"
	"github.com/ycheng-dev/channelhub/internal/directory"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/membership"
	"github.com/ycheng-dev/channelhub/internal/stream"
)

type Server struct {
	log            *log.Logger
	gw             gateway.Gateway
	membership     *membership.Engine
	directory      *directory.Directory
	conversations  *conversation.Engine
	alerts         *alert.Dispatcher
	hub            *stream.Hub
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewServer(mux *http.ServeMux, logger *log.Logger, cfg *config.Config, gw gateway.Gateway,
	me *membership.Engine, dir *directory.Directory, conv *conversation.Engine,
	alerts *alert.Dispatcher, hub *stream.Hub) *Server {

	s := &Server{
		log:            logger,
		gw:             gw,
		membership:     me,
		directory:      dir,
		conversations:  conv,
		alerts:         alerts,
		hub:            hub,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.Handle("GET /api/channels", s.authMiddleware(s.listChannels))
	mux.Handle("POST /api/channels", s.authMiddleware(s.createChannel))
	mux.Handle("GET /api/channels/{id}", s.authMiddleware(s.getChannel))
	mux.Handle("DELETE /api/channels/{id}", s.authMiddleware(s.deleteChannel))
	mux.Handle("PUT /api/channels/{id}/subscriber-count", s.authMiddleware(s.updateSubscriberCount))
	mux.Handle("POST /api/channels/{id}/hide-today", s.authMiddleware(s.toggleHideToday))
	mux.Handle("POST /api/channels/{id}/posts", s.authMiddleware(s.createPost))
	mux.Handle("PUT /api/channels/{id}/posts/{postId}", s.authMiddleware(s.updatePost))
	mux.Handle("GET /api/user/channels", s.authMiddleware(s.userChannels))

	mux.Handle("GET /api/categories", s.authMiddleware(s.listCategories))
	mux.Handle("PUT /api/categories/{index}", s.authMiddleware(s.renameCategory))

	mux.Handle("POST /api/channels/{id}/subscriptions", s.authMiddleware(s.requestSubscription))
	mux.Handle("DELETE /api/channels/{id}/subscriptions", s.authMiddleware(s.cancelSubscription))
	mux.Handle("GET /api/channels/{id}/subscriptions", s.authMiddleware(s.pendingSubscriptions))
	mux.Handle("GET /api/channels/{id}/membership", s.authMiddleware(s.membershipStatus))
	mux.Handle("POST /api/channels/{id}/subscriptions/{userId}/approve", s.authMiddleware(s.approveSubscription))
	mux.Handle("POST /api/channels/{id}/subscriptions/{userId}/reject", s.authMiddleware(s.rejectSubscription))
	mux.Handle("GET /api/inbox", s.authMiddleware(s.inbox))
	mux.Handle("GET /api/inbox/unread-count", s.authMiddleware(s.inboxUnreadCount))
	mux.Handle("POST /api/inbox/read", s.authMiddleware(s.markInboxRead))

	mux.Handle("POST /api/conversations", s.authMiddleware(s.getOrCreateConversation))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("DELETE /api/conversations/{id}", s.authMiddleware(s.deleteConversation))
	mux.Handle("GET /api/conversations/{id}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/conversations/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("POST /api/conversations/{id}/read", s.authMiddleware(s.markConversationRead))
	mux.Handle("GET /api/messages/unread-count", s.authMiddleware(s.totalUnread))

	mux.Handle("POST /api/channels/{id}/alerts", s.authMiddleware(s.sendChannelAlert))
	mux.Handle("POST /api/channels/{id}/alerts/enable", s.authMiddleware(s.enableAlerts))
	mux.Handle("POST /api/channels/{id}/alerts/disable", s.authMiddleware(s.disableAlerts))
	mux.Handle("POST /api/alerts/ack", s.authMiddleware(s.acknowledgeAlert))

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *Server) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Printf("api error: %v", errResp)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.Ping(r.Context()); err != nil {
		errResp := NewInternalServerError(err)
		s.writeError(w, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
