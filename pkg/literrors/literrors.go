// Package literrors defines the structured error carrier used across the SDK.
// Classified failures surfaced to a caller are an *Error holding a stable kind
// tag, a numeric code, a human-readable message and, when a network batch was
// actually issued, the request id of that batch. Some local failures (session
// key, encoding, mint callback and relay errors) are returned as plain wrapped
// errors that carry no kind.
package literrors

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure. Kinds are stable strings so callers
// can switch on them programmatically.
type Kind string

const (
	KindParamsMissing            Kind = "ParamsMissing"
	KindInvalidParamType         Kind = "InvalidParamType"
	KindInvalidArgumentException Kind = "InvalidArgumentException"
	KindInvalidEthBlockhash      Kind = "InvalidEthBlockhash"
	KindWalletSignatureNotFound  Kind = "WalletSignatureNotFound"
	KindLitNodeClientNotReady    Kind = "LitNodeClientNotReady"
	KindParamNull                Kind = "ParamNull"
	KindNodeRequestFailed        Kind = "NodeRequestFailed"
	KindUnknownError             Kind = "UnknownError"
)

var kindCodes = map[Kind]int{
	KindParamsMissing:            100,
	KindInvalidParamType:         101,
	KindInvalidArgumentException: 102,
	KindInvalidEthBlockhash:      103,
	KindWalletSignatureNotFound:  104,
	KindLitNodeClientNotReady:    105,
	KindParamNull:                106,
	KindNodeRequestFailed:        107,
	KindUnknownError:             999,
}

// Sentinel values for errors.Is matching. An *Error matches the sentinel of
// its own kind regardless of message or request id.
var (
	ErrParamsMissing            = &Error{Kind: KindParamsMissing}
	ErrInvalidParamType         = &Error{Kind: KindInvalidParamType}
	ErrInvalidArgumentException = &Error{Kind: KindInvalidArgumentException}
	ErrInvalidEthBlockhash      = &Error{Kind: KindInvalidEthBlockhash}
	ErrWalletSignatureNotFound  = &Error{Kind: KindWalletSignatureNotFound}
	ErrLitNodeClientNotReady    = &Error{Kind: KindLitNodeClientNotReady}
	ErrParamNull                = &Error{Kind: KindParamNull}
	ErrNodeRequestFailed        = &Error{Kind: KindNodeRequestFailed}
	ErrUnknownError             = &Error{Kind: KindUnknownError}
)

// Error is the uniform failure carrier of the SDK.
type Error struct {
	Kind      Kind   `json:"kind"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`

	cause error
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Code:    kindCodes[kind],
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an *Error of the given kind whose cause is err. The cause is
// reachable through errors.Unwrap.
func Wrap(err error, kind Kind, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.cause = err
	return e
}

// WithRequestID returns a copy of the error stamped with the request id of the
// node batch that produced it.
func (e *Error) WithRequestID(requestId string) *Error {
	cp := *e
	cp.RequestID = requestId
	return &cp
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, e.Message)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" [requestId=%s]", e.RequestID)
	}
	if e.cause != nil {
		msg += fmt.Sprintf(": %v", e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same kind. This makes the
// package sentinels usable with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of err if it is (or wraps) an *Error, otherwise
// KindUnknownError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknownError
}
