// Package apierr defines the error taxonomy shared by the transport, the
// reducer engine and the CLI.
package apierr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dtnitsch/pixbatch/pkg/spcode"
)

// Kind is the category of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindQuota
	KindInvalidRequest
	KindTemporary
	KindProtocol
	KindUsage
	KindBatch
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindInvalidRequest:
		return "invalid_request"
	case KindTemporary:
		return "temporary"
	case KindProtocol:
		return "protocol"
	case KindUsage:
		return "usage"
	case KindBatch:
		return "batch_partial_failure"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind and
// every *BatchError matches ErrBatch.
var (
	ErrUnknown        = errors.New("unknown error")
	ErrAuth           = errors.New("authentication failed")
	ErrQuota          = errors.New("quota exceeded")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTemporary      = errors.New("temporary failure")
	ErrProtocol       = errors.New("protocol violation")
	ErrNoResults      = errors.New("no results available")
	ErrBatch          = errors.New("batch partially failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindQuota:
		return ErrQuota
	case KindInvalidRequest:
		return ErrInvalidRequest
	case KindTemporary:
		return ErrTemporary
	case KindProtocol:
		return ErrProtocol
	case KindUsage:
		return ErrNoResults
	case KindBatch:
		return ErrBatch
	default:
		return ErrUnknown
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Code is the service status code, 0 when the failure did not come
	// from a status block.
	Code int
	// Message is the service's status message, if any.
	Message string
	// HTTPStatus is set for failures derived from an HTTP response.
	HTTPStatus int
	Retryable  bool
	// Payload is the response meta (or metas) the failure was derived from.
	Payload any
	// Index is the batch position the error belongs to, -1 if none.
	Index int
	Cause error

	msg string
}

// Option configures an Error built by New.
type Option func(*Error)

func WithCode(code int) Option { return func(e *Error) { e.Code = code } }

func WithMessage(m string) Option { return func(e *Error) { e.Message = m } }

func WithHTTPStatus(status int) Option { return func(e *Error) { e.HTTPStatus = status } }

func WithPayload(p any) Option { return func(e *Error) { e.Payload = p } }

func WithIndex(i int) Option { return func(e *Error) { e.Index = i } }

func WithCause(err error) Option { return func(e *Error) { e.Cause = err } }

// WithRetryable overrides the Kind's default retryability.
func WithRetryable(r bool) Option { return func(e *Error) { e.Retryable = r } }

// New builds an Error. Only KindTemporary is retryable by default.
func New(kind Kind, msg string, opts ...Option) *Error {
	e := &Error{
		Kind:      kind,
		Retryable: kind == KindTemporary,
		Index:     -1,
		msg:       msg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromStatus builds the error for a service status code that classified
// as an error. payload is attached as-is.
func FromStatus(code int, message string, payload any) *Error {
	c := spcode.Classify(code)
	msg := message
	if msg == "" {
		msg = spcode.Describe(code)
	}
	if msg == "" {
		msg = fmt.Sprintf("service returned status %d", code)
	}
	e := New(KindFromStatus(c.Status), msg, WithCode(code), WithMessage(message), WithPayload(payload))
	e.Retryable = c.Retryable
	return e
}

// KindFromStatus maps a classifier status to an error kind.
func KindFromStatus(s spcode.Status) Kind {
	switch s {
	case spcode.Auth:
		return KindAuth
	case spcode.Quota:
		return KindQuota
	case spcode.InvalidRequest:
		return KindInvalidRequest
	case spcode.Temporary:
		return KindTemporary
	default:
		return KindUnknown
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Text returns the error message without code or cause decoration.
func (e *Error) Text() string { return e.msg }

// ItemReport is one item's final state inside a BatchError.
type ItemReport struct {
	Index int
	Input any
	// Ready is true for items that succeeded.
	Ready bool
	Meta  any
	Err   *Error
}

// BatchError reports a multi-item batch in which at least one item failed.
// Items lists every item of the batch, succeeded ones included.
type BatchError struct {
	Items []ItemReport
}

func (b *BatchError) Error() string {
	failed := b.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("batch of %d items: no failures", len(b.Items))
	}
	first := failed[0]
	return fmt.Sprintf("batch failed for %d of %d items (first: index %d: %v)",
		len(failed), len(b.Items), first.Index, first.Err)
}

func (b *BatchError) Is(target error) bool { return target == ErrBatch }

// Failed returns the reports of the failed items, in index order.
func (b *BatchError) Failed() []ItemReport {
	var out []ItemReport
	for _, it := range b.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Succeeded returns the reports of the ready items, in index order.
func (b *BatchError) Succeeded() []ItemReport {
	var out []ItemReport
	for _, it := range b.Items {
		if it.Ready {
			out = append(out, it)
		}
	}
	return out
}

// KindOf returns the Kind of err, KindBatch for a *BatchError and
// KindUnknown for anything unclassified.
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return KindBatch
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
