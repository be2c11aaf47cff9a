/*
Package apperr defines the client's error taxonomy.

Every failure that reaches a caller is an *Error carrying a Kind, so callers can
branch with errors.Is against the sentinel values below and show the
user-facing message for the kind.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthentication means the credentials were rejected.
	KindAuthentication
	// KindSessionExpired means refresh was exhausted and the session was cleared.
	KindSessionExpired
	// KindUnauthorized means the server rejected the access token. Only the
	// request gateway acts on it.
	KindUnauthorized
	KindValidation
	KindConflict
	KindNotFound
	KindPermission
	KindTransport
	KindServer
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrSessionExpired = &Error{Kind: KindSessionExpired}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrPermission     = &Error{Kind: KindPermission}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrServer         = &Error{Kind: KindServer}
)

// kindMessages holds the user-facing text for each kind.
var kindMessages = map[Kind]string{
	KindUnknown:        "Something went wrong. Please try again.",
	KindAuthentication: "Invalid email or password.",
	KindSessionExpired: "Your session has expired. Please sign in again.",
	KindUnauthorized:   "Please sign in to continue.",
	KindValidation:     "Invalid request.",
	KindConflict:       "That name is already taken.",
	KindNotFound:       "Not found.",
	KindPermission:     "You do not have permission to do that.",
	KindTransport:      "Unable to reach the server.",
	KindServer:         "The server had a problem. Please try again later.",
}

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindSessionExpired:
		return "session_expired"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the typed failure surfaced by every engine component.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "directory.create".
	Op string
	// Message is the user-facing description. Empty means the kind default.
	Message string
	// Status is the HTTP status that produced the error, if any.
	Status int
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.UserMessage()
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage returns text suitable for display
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return kindMessages[e.Kind]
}

// New creates an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for a validation failure with a message
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// FromStatus maps an HTTP status to an error kind. message is the server's
// explanation, if it sent one.
func FromStatus(op string, status int, message string) *Error {
	return &Error{Kind: KindForStatus(status), Op: op, Status: status, Message: message}
}

// KindForStatus returns the kind an HTTP status maps to
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of err, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing text for any error
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	if err == nil {
		return ""
	}
	return kindMessages[KindUnknown]
}
