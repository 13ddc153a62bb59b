package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind is the closed set of error kinds the gateway produces
type Kind string

// Possible values for Kind.
const (
	KindRouteNotFound     Kind = "ROUTE_NOT_FOUND"
	KindBadRequest        Kind = "BAD_REQUEST"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindScopeMismatch     Kind = "SCOPE_MISMATCH"
	KindRateLimitExceeded Kind = "RATE_LIMIT_EXCEEDED"
	KindUnsupportedFormat Kind = "UNSUPPORTED_FORMAT"
	KindValidationFailed  Kind = "VALIDATION_FAILED"
	KindResource          Kind = "RESOURCE"
	KindHTTP              Kind = "HTTP"
)

var kindStatusCodes = map[Kind]int{
	KindRouteNotFound:     http.StatusNotFound,
	KindBadRequest:        http.StatusBadRequest,
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindScopeMismatch:     http.StatusForbidden,
	KindRateLimitExceeded: http.StatusTooManyRequests,
	KindUnsupportedFormat: http.StatusNotAcceptable,
	KindValidationFailed:  http.StatusUnprocessableEntity,
	KindResource:          http.StatusUnprocessableEntity,
	KindHTTP:              http.StatusInternalServerError,
}

// With is a convenience function for constructing an Error of this kind.
func (k Kind) With(msg string, args ...interface{}) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &Error{Kind: k, Status: kindStatusCodes[k], Message: msg}
}

// Error is an error carrying an HTTP status code. The dispatcher translates
// it into a {message, errors?} body; any error that is not (or does not wrap)
// an *Error propagates to the host untouched.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Errors is the structured error list of validation and resource errors.
	Errors  []string
	Headers http.Header
	Inner   error
}

// Error implements the builtin/error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = StatusMessage(e.Status)
	}
	if e.Inner != nil {
		return msg + ": " + e.Inner.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Inner
}

// StatusCode returns the HTTP status of the error
func (e *Error) StatusCode() int {
	return e.Status
}

// ErrorList returns the structured error list, nil for non-list kinds
func (e *Error) ErrorList() []string {
	return e.Errors
}

// ResponseHeaders returns headers that must accompany the translated response
func (e *Error) ResponseHeaders() http.Header {
	return e.Headers
}

// PublicMessage is the message shown to API consumers
func (e *Error) PublicMessage() string {
	if e.Message == "" {
		return StatusMessage(e.Status)
	}
	return e.Message
}

// WithHeader returns a copy of e carrying an extra response header
func (e *Error) WithHeader(key, value string) *Error {
	cp := *e
	cp.Headers = e.Headers.Clone()
	if cp.Headers == nil {
		cp.Headers = make(http.Header)
	}
	cp.Headers.Set(key, value)
	return &cp
}

// Wrap returns a copy of e with inner attached as its cause
func (e *Error) Wrap(inner error) *Error {
	cp := *e
	cp.Inner = inner
	return &cp
}

// StatusCoder is implemented by errors that map to an HTTP status
type StatusCoder interface {
	StatusCode() int
}

// ErrorLister is implemented by errors exposing a structured error list
type ErrorLister interface {
	ErrorList() []string
}

// HeaderCarrier is implemented by errors that add response headers
type HeaderCarrier interface {
	ResponseHeaders() http.Header
}

// StatusOf returns the HTTP status of err and whether it carries one
func StatusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// IsKind reports whether err wraps an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusMessage renders the default "<code> <status text>" message
func StatusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return strconv.Itoa(status) + " " + text
	}
	return strconv.Itoa(status)
}

// New builds an arbitrary HTTP error
func New(status int, msg string) *Error {
	return &Error{Kind: KindHTTP, Status: status, Message: msg}
}

// NotFound signals that no route matched
func NotFound(msg string) *Error {
	return KindRouteNotFound.With(msg)
}

// BadRequest signals a malformed request
func BadRequest(msg string) *Error {
	return KindBadRequest.With(msg)
}

// Unauthorized signals a failed or missing authentication
func Unauthorized(msg string) *Error {
	return KindUnauthorized.With(msg)
}

// Forbidden signals an authenticated principal lacking access
func Forbidden(msg string) *Error {
	return KindForbidden.With(msg)
}

// ScopeMismatch signals that the principal lacks the route's scopes
func ScopeMismatch(required []string) *Error {
	e := KindScopeMismatch.With("Insufficient scopes for this resource.")
	e.Errors = append([]string(nil), required...)
	return e
}

// TooManyRequests signals an exceeded throttle and carries Retry-After
func TooManyRequests(retryAfter time.Duration) *Error {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return KindRateLimitExceeded.With("You have exceeded your rate limit.").
		WithHeader("Retry-After", strconv.Itoa(secs))
}

// NotAcceptable signals that no formatter exists for the negotiated format
func NotAcceptable(format string) *Error {
	e := KindUnsupportedFormat.With("Unable to format response according to Accept header.")
	if format != "" {
		e.Inner = fmt.Errorf("unsupported format %q", format)
	}
	return e
}

// Resource builds a resource error with a structured error list
func Resource(status int, msg string, errs ...string) *Error {
	e := KindResource.With(msg)
	if status != 0 {
		e.Status = status
	}
	e.Errors = errs
	return e
}

// ValidationFailed builds a 422 validation error with a structured error list
func ValidationFailed(msg string, errs ...string) *Error {
	e := KindValidationFailed.With(msg)
	e.Errors = errs
	return e
}
