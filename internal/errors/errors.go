package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for the UI. Every failure path in the client maps
// to exactly one Kind and leaves the caller in a retryable state.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkUnreachable
	KindInvalidCredentials
	KindInvalidOrExpiredCode
	KindAccountLocked
	KindAccountNotVerified
	KindRateLimited
	KindMalformedInput
	KindCorruptedSession
)

var kindNames = [...]string{
	KindUnknown:              "unknown",
	KindNetworkUnreachable:   "network_unreachable",
	KindInvalidCredentials:   "invalid_credentials",
	KindInvalidOrExpiredCode: "invalid_or_expired_code",
	KindAccountLocked:        "account_locked",
	KindAccountNotVerified:   "account_not_verified",
	KindRateLimited:          "rate_limited",
	KindMalformedInput:       "malformed_input",
	KindCorruptedSession:     "corrupted_session",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Retryable reports whether the user can simply try the same action again.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetworkUnreachable, KindUnknown, KindMalformedInput:
		return true
	}
	return false
}

var defaultMessages = [...]string{
	KindUnknown:              "Something went wrong. Please try again.",
	KindNetworkUnreachable:   "Unable to reach the server. Check your connection and try again.",
	KindInvalidCredentials:   "Invalid email or password.",
	KindInvalidOrExpiredCode: "The verification code is invalid or has expired.",
	KindAccountLocked:        "Your account is locked. Please contact support.",
	KindAccountNotVerified:   "Your account is not verified yet. Please verify your email.",
	KindRateLimited:          "Too many attempts. Please wait before trying again.",
	KindMalformedInput:       "Please check the information you entered.",
	KindCorruptedSession:     "Your session is no longer valid. Please sign in again.",
}

// Error is the client's classified error. Message is user facing; Field names
// the form field to mark, if any.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.kind()]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) kind() Kind {
	if e.Kind < 0 || int(e.Kind) >= len(defaultMessages) {
		return KindUnknown
	}
	return e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNetworkUnreachable   = &Error{Kind: KindNetworkUnreachable}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials}
	ErrInvalidOrExpiredCode = &Error{Kind: KindInvalidOrExpiredCode}
	ErrAccountLocked        = &Error{Kind: KindAccountLocked}
	ErrAccountNotVerified   = &Error{Kind: KindAccountNotVerified}
	ErrRateLimited          = &Error{Kind: KindRateLimited}
	ErrMalformedInput       = &Error{Kind: KindMalformedInput}
	ErrCorruptedSession     = &Error{Kind: KindCorruptedSession}
)

// New builds a classified error with a user-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Field builds a MalformedInput error that marks a form field.
func Field(field, message string) *Error {
	return &Error{Kind: KindMalformedInput, Field: field, Message: message}
}

// WithCause attaches the underlying error.
func WithCause(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return defaultMessages[e.kind()]
	}
	return defaultMessages[KindUnknown]
}

// FieldOf returns the form field marked by err, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
