package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrRateLimited    = errors.New("too many requests")
	ErrSessionExpired = errors.New("session expired or invalid")
)

// Kind classifies authentication failures independently of the identity provider.
type Kind string

const (
	KindConfigurationMissing  Kind = "ConfigurationMissing"
	KindConfigurationRequired Kind = "ConfigurationRequired"
	KindProviderUnavailable   Kind = "ProviderUnavailable"
	KindProviderError         Kind = "ProviderError"
	KindInvalidParameter      Kind = "InvalidParameter"
	KindUsernameExists        Kind = "UsernameExists"
	KindNotAuthorized         Kind = "NotAuthorized"
	KindUserNotFound          Kind = "UserNotFound"
	KindUserNotConfirmed      Kind = "UserNotConfirmed"
	KindInvalidPassword       Kind = "InvalidPassword"
	KindInvalidCode           Kind = "InvalidCode"
	KindExpiredCode           Kind = "ExpiredCode"
	KindExpiredSession        Kind = "ExpiredSession"
	KindTokenMalformed        Kind = "TokenMalformed"
	KindUnauthenticated       Kind = "Unauthenticated"
	KindTooManyRequests       Kind = "TooManyRequests"
)

// AuthError carries a Kind and a message safe to show to end users.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// New creates an AuthError without an underlying cause
func New(kind Kind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

// WrapKind creates an AuthError around err
func WrapKind(kind Kind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first AuthError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
