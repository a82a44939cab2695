package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a generation failure.
type Kind int

// Failure kinds. Only the first three are transient.
const (
	KindFatal Kind = iota
	KindRateLimited
	KindConnection
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// Error is a classified generation failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying: rate limited, connection
// failed or timed out.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRateLimited, KindConnection, KindTimeout:
		return true
	default:
		return false
	}
}

// KindOf returns the failure kind, KindFatal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

func fatal(provider string, err error) *Error {
	return &Error{Kind: KindFatal, Provider: provider, Err: err}
}

// transportError classifies a failure to get any response at all.
func transportError(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Provider: provider, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fatal(provider, err)
	}
	return &Error{Kind: KindConnection, Provider: provider, Err: err}
}

// statusError classifies a non-200 HTTP response.
func statusError(provider string, status int, body string) *Error {
	err := fmt.Errorf("HTTP %d: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Provider: provider, Err: err}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Provider: provider, Err: err}
	case status >= 500:
		return &Error{Kind: KindConnection, Provider: provider, Err: err}
	default:
		return fatal(provider, err)
	}
}
