package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error is the error kind surfaced by the SDK. Two errors are the same kind
// when their names match, so callers use errors.Is against the sentinels.
type Error struct {
	Name       string `json:"name"`
	Message    string `json:"description,omitempty"`
	Debug      string `json:"debug,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// Is reports whether target is an *Error with the same name.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Name == e.Name
}

var (
	ErrKinvey                   = &Error{Name: "KinveyError"}
	ErrNotFound                 = &Error{Name: "NotFoundError"}
	ErrInsufficientCredentials  = &Error{Name: "InsufficientCredentialsError"}
	ErrInvalidCredentials       = &Error{Name: "InvalidCredentialsError"}
	ErrServer                   = &Error{Name: "ServerError"}
	ErrInvalidQuerySyntax       = &Error{Name: "InvalidQuerySyntaxError"}
	ErrJSONParse                = &Error{Name: "JSONParseError"}
	ErrMissingQuery             = &Error{Name: "MissingQueryError"}
	ErrMissingRequestHeader     = &Error{Name: "MissingRequestHeaderError"}
	ErrMissingRequestParameter  = &Error{Name: "MissingRequestParameterError"}
	ErrParameterValueOutOfRange = &Error{Name: "ParameterValueOutOfRangeError"}
	ErrFeatureUnavailable       = &Error{Name: "FeatureUnavailableError"}
	ErrIncompleteRequestBody    = &Error{Name: "IncompleteRequestBodyError"}
	ErrMobileIdentityConnect    = &Error{Name: "MobileIdentityConnectError"}
	ErrInvalidIdentifier        = &Error{Name: "InvalidIdentifierError"}
	ErrMissingConfiguration     = &Error{Name: "MissingConfigurationError"}
	ErrQuery                    = &Error{Name: "QueryError"}
	ErrActiveUser               = &Error{Name: "ActiveUserError"}
	ErrCanceled                 = errors.New("operation canceled")
)

// NewError creates an error of the given kind with a message.
func NewError(kind *Error, message string) *Error {
	return &Error{Name: kind.Name, Message: message, StatusCode: kind.StatusCode}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind *Error, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WrapError converts context.Canceled and context.DeadlineExceeded to ErrCanceled.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) {
		return ErrCanceled
	}
	return err
}

// IsCanceled returns true if the error is due to context cancellation or deadline exceeded.
// Wrapped errors from drivers that lose the chain are matched by message.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrCanceled) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context canceled") || strings.Contains(errStr, "context deadline exceeded")
}
