package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/ycheng-dev/channelhub/internal/gateway"
	"github.com/ycheng-dev/channelhub/internal/types"
	"golang.org/x/crypto/bcrypt"
)

var (
	defaultExp     = time.Hour * 24
	tokenCookieKey = "token"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)

	return userId, ok
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Phone    string `json:"phone"`
	Avatar   string `json:"avatar"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Email == "" || req.Nickname == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	existing, err := s.gw.List(r.Context(), gateway.CollectionUsers,
		[]gateway.Filter{gateway.Where("email", gateway.OpEq, req.Email)}, nil)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if len(existing) > 0 {
		s.writeError(w, &ApiError{
			StatusCode: http.StatusConflict,
			Message:    "email already registered",
		})
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	user := types.User{
		Id:           uuid.NewString(),
		Nickname:     req.Nickname,
		EmailAddress: req.Email,
		Phone:        req.Phone,
		Avatar:       req.Avatar,
		Role:         types.RoleMember,
		PasswordHash: pwdHash,
		CreatedAt:    time.Now().UnixMilli(),
	}

	if _, err := s.gw.Create(r.Context(), gateway.CollectionUsers, user, user.Id); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	docs, err := s.gw.List(r.Context(), gateway.CollectionUsers,
		[]gateway.Filter{gateway.Where("email", gateway.OpEq, lr.Email)}, nil)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if len(docs) == 0 {
		s.writeError(w, NewNotFoundError())
		return
	}

	user, err := gateway.Decode[types.User](docs[0])
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !verifyPassword(user.PasswordHash, lr.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	token, err := s.createJwtForSession(user.Id, defaultExp)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultExp))

	s.writeJson(w, http.StatusOK, user)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	user, errResp := s.currentUser(r)
	if errResp != nil {
		s.writeError(w, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// currentUser resolves the authenticated user's stored record.
func (s *Server) currentUser(r *http.Request) (*types.User, *ApiError) {
	userId, ok := UserId(r.Context())
	if !ok {
		return nil, NewUnauthorizedError()
	}

	doc, err := s.gw.GetOne(r.Context(), gateway.CollectionUsers, userId)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, NewNotFoundError()
		}
		return nil, NewInternalServerError(err)
	}

	user, err := gateway.Decode[types.User](doc)
	if err != nil {
		return nil, NewInternalServerError(err)
	}

	return &user, nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *Server) createJwtForSession(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *Server) extractUserIdFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}
