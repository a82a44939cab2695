package trace

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/llm"
)

// Error type constants for classification
const (
	ErrTypeNetwork     = "network"
	ErrTypeTimeout     = "timeout"
	ErrTypeRateLimited = "rate_limited"
	ErrTypeLLM         = "llm"
	ErrTypeAuth        = "auth"
	ErrTypeDatabase    = "database"
	ErrTypeValidation  = "validation"
	ErrTypeUnknown     = "unknown"
)

// ClassifyError inspects an error and returns its type classification for
// metrics labels and trace records.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var genErr *llm.Error
	if errors.As(err, &genErr) {
		switch genErr.Kind {
		case llm.KindRateLimited:
			return ErrTypeRateLimited
		case llm.KindTimeout:
			return ErrTypeTimeout
		case llm.KindConnection:
			return ErrTypeNetwork
		default:
			return ErrTypeLLM
		}
	}

	if errors.Is(err, identity.ErrSecretMismatch) ||
		errors.Is(err, identity.ErrSessionExpired) ||
		errors.Is(err, identity.ErrSessionNotFound) ||
		errors.Is(err, identity.ErrPersonDisabled) ||
		errors.Is(err, identity.ErrPersonNotFound) {
		return ErrTypeAuth
	}

	errStrLower := strings.ToLower(err.Error())

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(errStrLower, "timeout") || strings.Contains(errStrLower, "deadline exceeded") {
		return ErrTypeTimeout
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return ErrTypeNetwork
	}
	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "connection reset") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "dial tcp") {
		return ErrTypeNetwork
	}

	if strings.Contains(errStrLower, "sql") ||
		strings.Contains(errStrLower, "database") ||
		strings.Contains(errStrLower, "constraint") {
		return ErrTypeDatabase
	}

	if strings.Contains(errStrLower, "invalid") ||
		strings.Contains(errStrLower, "required") ||
		strings.Contains(errStrLower, "empty") ||
		strings.Contains(errStrLower, "must be") {
		return ErrTypeValidation
	}

	return ErrTypeUnknown
}
