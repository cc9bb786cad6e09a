package moderation

import (
	"context"
	"fmt"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/pkg/errors"
)

// Kind classifies a failed moderation call.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindConfig     Kind = "config"
	KindCanceled   Kind = "canceled"
	KindInternal   Kind = "internal"
)

// Error is the error type returned by every component of this package.
// Classification into transient or permanent happens only in Client.
type Error struct {
	Kind    Kind
	Message string

	// Field names the offending inbound field of a validation error.
	Field string

	// Status is the upstream HTTP status, zero when no response was received.
	Status int

	// Timeout is set when the failure was a deadline being hit.
	Timeout bool

	// Attempts is filled in by the retry policy.
	Attempts int

	// Final is set once the retry budget was spent on transient failures.
	Final bool

	cause error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Info converts the error into its wire form.
func (e *Error) Info() *models.ErrorInfo {
	msg := e.Message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return &models.ErrorInfo{
		Kind:           string(e.Kind),
		Message:        msg,
		Field:          e.Field,
		UpstreamStatus: e.Status,
		Attempts:       e.Attempts,
	}
}

// ValidationError reports a malformed or missing inbound field.
func ValidationError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransientError reports a failure expected to succeed on retry.
func TransientError(status int, timeout bool, cause error, message string) *Error {
	return &Error{Kind: KindTransient, Status: status, Timeout: timeout, Message: message, cause: cause}
}

// PermanentError reports a failure that will not change on retry.
func PermanentError(status int, cause error, message string) *Error {
	return &Error{Kind: KindPermanent, Status: status, Message: message, cause: cause}
}

// ConfigError wraps a configuration problem that keeps the gateway from serving.
func ConfigError(cause error) *Error {
	return &Error{Kind: KindConfig, Message: "gateway is not configured", cause: cause}
}

// CanceledError reports that the caller went away or the call deadline elapsed.
func CanceledError(cause error) *Error {
	return &Error{
		Kind:    KindCanceled,
		Message: "moderation call canceled",
		Timeout: errors.Is(cause, context.DeadlineExceeded),
		cause:   cause,
	}
}

// AsError returns err as *Error, classifying anything foreign as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CanceledError(err)
	}
	return &Error{Kind: KindInternal, Message: "unexpected failure", cause: err}
}

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// InfoOf converts any error into its wire form.
func InfoOf(err error) *models.ErrorInfo {
	if e := AsError(err); e != nil {
		return e.Info()
	}
	return nil
}
