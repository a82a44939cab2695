package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/dan-solli/moex/pkg/store"
)

// TermVector maps a lowercased token to its frequency in a text.
type TermVector map[string]int

// Tokenize lowercases text and splits it on whitespace.
// There is no stemming and no stopword removal.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// TermFrequencies builds the term vector for text.
func TermFrequencies(text string) TermVector {
	tf := make(TermVector)
	for _, tok := range Tokenize(text) {
		tf[tok]++
	}
	return tf
}

// CosineSimilarity computes dot(a,b) / (|a| * |b|).
// Returns 0 when either vector has zero norm. Term frequencies are never
// negative, so the result lies in [0, 1].
func CosineSimilarity(a, b TermVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Iterate the smaller map for the dot product.
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for term, n := range small {
		dot += float64(n) * float64(large[term])
	}

	normA, normB := norm(a), norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (normA * normB)
	// Clamp float drift.
	if sim > 1 {
		sim = 1
	}
	return sim
}

func norm(v TermVector) float64 {
	var sum float64
	for _, n := range v {
		sum += float64(n) * float64(n)
	}
	return math.Sqrt(sum)
}

// LexicalSearcher scores the most recent knowledge chunks against a query by
// term-frequency cosine similarity. Vectors are recomputed on every query.
type LexicalSearcher struct {
	knowledge store.KnowledgeStore
}

// Compile-time interface check
var _ Searcher = (*LexicalSearcher)(nil)

// NewLexicalSearcher creates a searcher over the given knowledge store.
func NewLexicalSearcher(knowledge store.KnowledgeStore) *LexicalSearcher {
	return &LexicalSearcher{knowledge: knowledge}
}

// Search returns up to TopK chunks with positive similarity, best first.
// Equal scores keep the store's order, which is newest first.
func (l *LexicalSearcher) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	ApplyDefaults(&opts)

	q := TermFrequencies(query)
	if len(q) == 0 {
		return []SearchResult{}, nil
	}

	chunks, err := l.knowledge.RecentKnowledge(ctx, opts.Window)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(chunks))
	for _, c := range chunks {
		score := CosineSimilarity(q, TermFrequencies(c.Chunk))
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Chunk: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

// Excerpt returns at most n runes of text.
func Excerpt(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
