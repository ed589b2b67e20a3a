// Package apperrors defines the error taxonomy shared by the proxy's components.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindProvider   Kind = "provider"
	KindInternal   Kind = "internal"
)

// Reasons attached to auth failures.
const (
	ReasonNetwork  = "network"
	ReasonProtocol = "protocol"
)

// Error is a classified failure. Detail carries the provider's raw payload, if any,
// and is meant for operators rather than end users.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Reason  string
	Status  int
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. Errors that are already classified pass through untouched.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

func Auth(op, reason, message string, cause error) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message, Reason: reason, Cause: cause}
}

func Provider(op string, status int, message, detail string) *Error {
	return &Error{Kind: KindProvider, Op: op, Message: message, Status: status, Detail: detail}
}

// KindOf returns the kind of the first classified error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == kind
}

// HTTPStatus maps an error to the status returned to proxy callers.
func HTTPStatus(err error) int {
	if KindOf(err) == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

const maxDetailBytes = 2048

// TruncateDetail bounds a provider payload before it is attached to an Error.
func TruncateDetail(body []byte) string {
	if len(body) > maxDetailBytes {
		return string(body[:maxDetailBytes]) + "...(truncated)"
	}
	return string(body)
}

// WithoutURL drops the request URL from transport errors. Outbound URLs carry
// signed queries and tokens, which must not leak into messages.
func WithoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
