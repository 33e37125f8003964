package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeRegistration      = "REGISTRATION_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Kind sentinels. Match with errors.Is; every *Error of that kind unwraps to one.
var (
	ErrConfiguration    = stderrors.New("configuration error")
	ErrAuthentication   = stderrors.New("authentication failed")
	ErrTenantContext    = stderrors.New("tenant context error")
	ErrTransaction      = stderrors.New("transaction failed")
	ErrRegistration     = stderrors.New("registration failed")
	ErrPermissionDenied = stderrors.New("permission denied")
	ErrNotFound         = stderrors.New("not found")
	ErrInvalidInput     = stderrors.New("invalid input")
	ErrConflict         = stderrors.New("conflict")
)

// Error carries a kind sentinel, the operation that failed and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Configuration(op string, err error) error { return New(ErrConfiguration, op, err) }

func TenantContext(op string, err error) error { return New(ErrTenantContext, op, err) }

func InvalidInput(op string, err error) error { return New(ErrInvalidInput, op, err) }

func NotFound(op string) error { return New(ErrNotFound, op, nil) }

func Conflict(op string, err error) error { return New(ErrConflict, op, err) }

// StatusFor maps an error kind to the HTTP status and code used by WriteError.
func StatusFor(err error) (int, string) {
	switch {
	case stderrors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case stderrors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case stderrors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden, ErrCodeForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case stderrors.Is(err, ErrConflict):
		return http.StatusConflict, ErrCodeConflict
	case stderrors.Is(err, ErrConfiguration):
		return http.StatusUnprocessableEntity, ErrCodeConfiguration
	case stderrors.Is(err, ErrRegistration):
		return http.StatusBadGateway, ErrCodeRegistration
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// WriteErr renders err using its kind. Internal errors get a generic message.
func WriteErr(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	WriteError(w, status, code, msg, nil)
}
