package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ycheng-dev/channelhub/internal/alert"
	"github.com/ycheng-dev/channelhub/internal/config"
	"github.com/ycheng-dev/channelhub/internal/conversation"
	"github.com/ycheng-dev/channelhub/internal/directory"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/membership"
	"github.com/ycheng-dev/channelhub/internal/moderation"
	"github.com/ycheng-dev/channelhub/internal/stats"
	"github.com/ycheng-dev/channelhub/internal/stream"
	"github.com/ycheng-dev/channelhub/internal/testutil"
	"github.com/ycheng-dev/channelhub/internal/types"
)

func newTestServer(t *testing.T) (*Server, gateway.Gateway) {
	t.Helper()

	gw := gateway.NewMemoryGateway()
	logger := testutil.TestLogger(t)

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:   "localhost:8080",
		MongoURI:     "mongodb://localhost:27017",
		Database:     "channelhub-test",
		Base64Secret: base64.StdEncoding.EncodeToString([]byte("test-signing-secret")),
	})
	require.NoError(t, err, "expected config to build")

	filter := moderation.NewFilter()
	me := membership.NewEngine(logger, gw, stats.Noop{})
	dir := directory.NewDirectory(logger, gw, stats.Noop{}, filter, cfg.ReferenceTZ)
	conv := conversation.NewEngine(logger, gw, stats.Noop{}, filter)
	hub := stream.NewHub(logger, gw)
	alerts := alert.NewDispatcher(logger, hub, stats.Noop{}, 10*time.Millisecond, 200*time.Millisecond)
	hub.SetAcker(alerts)
	t.Cleanup(alerts.Stop)
	t.Cleanup(hub.Shutdown)

	require.NoError(t, dir.EnsureDefaultCategories(context.Background()), "expected default categories to seed")

	s := NewServer(http.NewServeMux(), logger, cfg, gw, me, dir, conv, alerts, hub)
	return s, gw
}

// seedUser stores a user record directly in the gateway, bypassing the
// register handler.
func seedUser(t *testing.T, gw gateway.Gateway, nickname, role string) types.User {
	t.Helper()

	hash, err := hashPassword("password")
	require.NoError(t, err, "expected password to hash")

	user := types.User{
		Id:           uuid.NewString(),
		Nickname:     nickname,
		EmailAddress: nickname + "@example.com",
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UnixMilli(),
	}

	_, err = gw.Create(context.Background(), gateway.CollectionUsers, user, user.Id)
	require.NoError(t, err, "expected user to be created")

	return user
}

// authedRequest builds a request with a json body and the user id
// already resolved into the context, the way authMiddleware leaves it.
func authedRequest(t *testing.T, method, target string, body any, userId string) *http.Request {
	t.Helper()

	buf := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(buf).Encode(body), "expected body to encode")
	}

	req := httptest.NewRequest(method, target, buf)
	return req.WithContext(WithUserId(req.Context(), userId))
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "expected response body to decode")
	return v
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestCreateAccountHandler(t *testing.T) {
	s, _ := newTestServer(t)

	tcases := []struct {
		name         string
		body         any
		expectedCode int
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Email:    "newuser@example.com",
				Nickname: "newuser",
				Password: "password",
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "fails with invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing nickname",
			body: RegisterRequest{
				Email:    "other@example.com",
				Password: "password",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with duplicate email",
			body: RegisterRequest{
				Email:    "newuser@example.com",
				Nickname: "sameagain",
				Password: "password",
			},
			expectedCode: http.StatusConflict,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buf).Encode(tc.body))

			rr := httptest.NewRecorder()
			s.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", buf))

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")

			if tc.expectedCode == http.StatusCreated {
				user := decodeBody[types.User](t, rr)
				assert.Equal(t, "newuser", user.Nickname, "expected nickname to round trip")
				assert.Equal(t, types.RoleMember, user.Role, "expected new accounts to default to member role")
				assert.NotEmpty(t, user.Id, "expected an assigned user id")
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	s, gw := newTestServer(t)
	user := seedUser(t, gw, "alice", types.RoleMember)

	t.Run("successful login sets token cookie", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, json.NewEncoder(buf).Encode(LoginRequest{
			Email:    user.EmailAddress,
			Password: "password",
		}))

		rr := httptest.NewRecorder()
		s.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", buf))

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected token cookie to be set")
		assert.True(t, cookie.HttpOnly, "expected cookie to be http only")

		userId, err := s.extractUserIdFromToken(cookie.Value)
		require.NoError(t, err, "expected token to verify")
		assert.Equal(t, user.Id, userId, "expected token to carry the user id")
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, json.NewEncoder(buf).Encode(LoginRequest{
			Email:    user.EmailAddress,
			Password: "wrong",
		}))

		rr := httptest.NewRecorder()
		s.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", buf))

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
	})

	t.Run("unknown email is not found", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, json.NewEncoder(buf).Encode(LoginRequest{
			Email:    "nobody@example.com",
			Password: "password",
		}))

		rr := httptest.NewRecorder()
		s.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", buf))

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func TestAuthMiddleware(t *testing.T) {
	s, gw := newTestServer(t)
	user := seedUser(t, gw, "bob", types.RoleMember)

	handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		assert.True(t, ok, "expected user id in context")
		assert.Equal(t, user.Id, userId, "expected authenticated user id")
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token passes through", func(t *testing.T) {
		token, err := s.createJwtForSession(user.Id, defaultExp)
		require.NoError(t, err, "expected token to sign")

		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(createJwtCookie(token, defaultExp))

		rr := httptest.NewRecorder()
		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store", "expected no-store cache header")
	})

	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler(rr, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(createJwtCookie("not-a-token", defaultExp))

		rr := httptest.NewRecorder()
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
	})
}

func TestSessionHandler(t *testing.T) {
	s, gw := newTestServer(t)
	user := seedUser(t, gw, "carol", types.RoleAdmin)

	rr := httptest.NewRecorder()
	s.session(rr, authedRequest(t, http.MethodGet, "/api/auth/session", nil, user.Id))

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	got := decodeBody[types.User](t, rr)
	assert.Equal(t, user.Id, got.Id, "expected session to return the stored user")
	assert.Equal(t, types.RoleAdmin, got.Role, "expected role to round trip")
}

func TestLogoutHandler(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	s.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")

	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected cookie to be overwritten")
	assert.Empty(t, cookie.Value, "expected cookie value to be cleared")
	assert.True(t, cookie.Expires.Before(time.Now()), "expected cookie to be expired")
}
