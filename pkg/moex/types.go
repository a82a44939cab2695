package moex

import (
	"github.com/dan-solli/moex/pkg/chat"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/trace"
)

// Type re-exports for caller convenience

// Caller is re-exported from identity package
type Caller = identity.Caller

// ChatRequest is re-exported from chat package
type ChatRequest = chat.Request

// ChatResponse is re-exported from chat package
type ChatResponse = chat.Response

// Error type constants re-exported from trace package
const (
	ErrTypeNetwork     = trace.ErrTypeNetwork
	ErrTypeTimeout     = trace.ErrTypeTimeout
	ErrTypeRateLimited = trace.ErrTypeRateLimited
	ErrTypeLLM         = trace.ErrTypeLLM
	ErrTypeAuth        = trace.ErrTypeAuth
	ErrTypeDatabase    = trace.ErrTypeDatabase
	ErrTypeValidation  = trace.ErrTypeValidation
	ErrTypeUnknown     = trace.ErrTypeUnknown
)

// ClassifyError maps an error to one of the ErrType constants.
func ClassifyError(err error) string {
	return trace.ClassifyError(err)
}
