// Package search provides lexical retrieval over moex's knowledge chunks.
package search

import (
	"context"

	"github.com/dan-solli/moex/pkg/store"
)

// SearchResult represents a single search result with scoring metadata.
type SearchResult struct {
	Chunk *store.KnowledgeChunk // Full chunk data
	Score float64               // Cosine similarity in (0, 1], higher is better
	Rank  int                   // Position in the result list, starting at 1
}

// SearchOptions configures search behavior.
type SearchOptions struct {
	TopK   int // Maximum number of results to return (default: 4)
	Window int // Number of most recent chunks considered (default: 500)
}

// Default option values.
const (
	DefaultTopK   = 4
	DefaultWindow = 500
)

// Searcher defines the interface for knowledge search. Implementations return
// at most TopK results with strictly positive, non-increasing scores.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// ApplyDefaults sets default values for unspecified search options.
func ApplyDefaults(opts *SearchOptions) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
}
