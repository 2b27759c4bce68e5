package portal

import (
	"errors"
	"fmt"
)

// ValidationError is returned for malformed input that never reached the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthenticationError means the portal rejected the confirmation code.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{Message: message}
}

// SessionError means the stel_token cookie was missing from a login response.
type SessionError struct {
	Message string
}

func (e *SessionError) Error() string {
	return e.Message
}

func NewSessionError(message string) *SessionError {
	return &SessionError{Message: message}
}

// AppCreationError carries the lowercased portal response that signalled a
// rejected application form.
type AppCreationError struct {
	Detail string
}

func (e *AppCreationError) Error() string {
	return "app creation rejected: " + e.Detail
}

func NewAppCreationError(detail string) *AppCreationError {
	return &AppCreationError{Detail: detail}
}

// ScrapeError means an expected element was absent from a portal page.
type ScrapeError struct {
	Field   string
	Message string
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewScrapeError(field, message string) *ScrapeError {
	return &ScrapeError{Field: field, Message: message}
}

// TransportError wraps network failures, timeouts and unexpected status codes.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("portal: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("portal: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(op string, statusCode int, err error) *TransportError {
	return &TransportError{Op: op, StatusCode: statusCode, Err: err}
}

// Error kinds reported by ErrorKind.
const (
	KindValidation     = "validation"
	KindAuthentication = "authentication"
	KindSession        = "session"
	KindAppCreation    = "app_creation"
	KindScrape         = "scrape"
	KindTransport      = "transport"
	KindUnknown        = "unknown"
)

// ErrorKind classifies err into one of the Kind constants. A nil error has no kind.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		validationErr  *ValidationError
		authErr        *AuthenticationError
		sessionErr     *SessionError
		appCreationErr *AppCreationError
		scrapeErr      *ScrapeError
		transportErr   *TransportError
	)

	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &sessionErr):
		return KindSession
	case errors.As(err, &appCreationErr):
		return KindAppCreation
	case errors.As(err, &scrapeErr):
		return KindScrape
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}
