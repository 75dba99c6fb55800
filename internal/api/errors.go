package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nhle/costdesk/internal/model"
)

// User-facing messages for the error kinds that do not carry their own text.
const (
	ForbiddenMessage       = "You do not have permission to perform this action."
	ViewerForbiddenMessage = "Viewers have read-only access. Ask a super admin to make this change."
	SessionExpiredMessage  = "Your session has expired. Please log in again."
	GenericMessage         = "Something went wrong. Please try again."
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsForbidden reports whether err is a 403 from the backend.
func IsForbidden(err error) bool {
	return IsStatus(err, http.StatusForbidden)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// ValidationError is a client-side check that failed before any request
// was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Kind classifies an error for presentation.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindForbidden
	KindUnauthorized
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransport:
		return "transport"
	default:
		return "none"
	}
}

// Classify maps err onto the error taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	if IsForbidden(err) {
		return KindForbidden
	}
	if IsUnauthorized(err) {
		return KindUnauthorized
	}
	return KindTransport
}

// UserMessage converts err into the text shown to the user. role selects
// the permission-denied wording.
func UserMessage(err error, role model.Role) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindValidation:
		var vErr *ValidationError
		errors.As(err, &vErr)
		return vErr.Message
	case KindForbidden:
		if role == model.RoleViewer {
			return ViewerForbiddenMessage
		}
		return ForbiddenMessage
	case KindUnauthorized:
		return SessionExpiredMessage
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && strings.TrimSpace(httpErr.Message) != "" &&
		httpErr.Message != http.StatusText(httpErr.StatusCode) {
		return httpErr.Message
	}
	return GenericMessage
}

// ServerMessage returns the backend's own message for err, or err's text
// when it did not come from the backend.
func ServerMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return err.Error()
}
