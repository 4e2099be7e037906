package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ycheng-dev/channelhub/internal/types"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

// statusForKind maps the domain error taxonomy to HTTP status codes.
var statusForKind = map[types.Kind]int{
	types.KindForbidden:         http.StatusForbidden,
	types.KindNotFound:          http.StatusNotFound,
	types.KindAlreadyMember:     http.StatusConflict,
	types.KindDuplicateRequest:  http.StatusConflict,
	types.KindInvalidCount:      http.StatusBadRequest,
	types.KindInvalidName:       http.StatusBadRequest,
	types.KindImmutableCategory: http.StatusBadRequest,
	types.KindContentBlocked:    http.StatusUnprocessableEntity,
	types.KindConfirmRequired:   http.StatusConflict,
	types.KindWriteError:        http.StatusBadGateway,
}

// NewDomainError converts an engine error into an API error, carrying
// the kind through so clients can render inline feedback.
func NewDomainError(err error) *ApiError {
	var domainErr *types.Error
	if !errors.As(err, &domainErr) {
		return NewInternalServerError(err)
	}

	status, ok := statusForKind[domainErr.Kind]
	if !ok {
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: status,
		Kind:       string(domainErr.Kind),
		Message:    domainErr.Message,
		Err:        domainErr.Err,
	}
}
