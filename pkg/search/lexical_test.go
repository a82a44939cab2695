package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dan-solli/moex/pkg/store"
)

type mockKnowledgeStore struct {
	chunks    []*store.KnowledgeChunk // newest first
	lastLimit int
	err       error
}

func (m *mockKnowledgeStore) AddKnowledge(ctx context.Context, k *store.KnowledgeChunk) error {
	m.chunks = append([]*store.KnowledgeChunk{k}, m.chunks...)
	return nil
}

func (m *mockKnowledgeStore) RecentKnowledge(ctx context.Context, limit int) ([]*store.KnowledgeChunk, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.chunks) {
		return m.chunks[:limit], nil
	}
	return m.chunks, nil
}

func (m *mockKnowledgeStore) CountKnowledge(ctx context.Context) (int64, error) {
	return int64(len(m.chunks)), nil
}

func TestTokenize(t *testing.T) {
	got := Tokenize("  Travel  POLICY\tfor\nvendors ")
	want := []string{"travel", "policy", "for", "vendors"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "expense report", "expense report", 1},
		{"case insensitive", "Expense Report", "expense report", 1},
		{"disjoint", "expense report", "holiday calendar", 0},
		{"empty a", "", "expense report", 0},
		{"both empty", "", "", 0},
		{"partial", "a b", "a c", 0.5},
		{"frequency weighted", "a a b", "a", 2 / math.Sqrt(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(TermFrequencies(tt.a), TermFrequencies(tt.b))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_SymmetricAndBounded(t *testing.T) {
	texts := []string{
		"submit the travel claim by friday",
		"travel travel policy",
		"the board meets on friday",
		"",
		"claim",
	}

	for _, x := range texts {
		for _, y := range texts {
			a, b := TermFrequencies(x), TermFrequencies(y)
			ab, ba := CosineSimilarity(a, b), CosineSimilarity(b, a)
			if ab != ba {
				t.Errorf("not symmetric for %q/%q: %v vs %v", x, y, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("out of bounds for %q/%q: %v", x, y, ab)
			}
		}
	}
}

func TestLexicalSearcher_Search(t *testing.T) {
	ks := &mockKnowledgeStore{chunks: []*store.KnowledgeChunk{
		{ID: "5", Title: "Parking", Chunk: "parking permits renew in march"},
		{ID: "4", Title: "Travel", Chunk: "travel claims need receipts"},
		{ID: "3", Title: "Travel FAQ", Chunk: "travel claims need receipts and approval"},
		{ID: "2", Title: "Receipts", Chunk: "receipts"},
		{ID: "1", Title: "Unrelated", Chunk: "holiday calendar"},
	}}
	s := NewLexicalSearcher(ks)

	results, err := s.Search(context.Background(), "travel claims receipts", SearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "4" {
		t.Errorf("Expected best match '4', got %q", results[0].Chunk.ID)
	}
	for i, r := range results {
		if r.Score <= 0 {
			t.Errorf("result %d has non-positive score %v", i, r.Score)
		}
		if i > 0 && r.Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d", i, r.Rank)
		}
	}
	if ks.lastLimit != DefaultWindow {
		t.Errorf("Expected window %d, got %d", DefaultWindow, ks.lastLimit)
	}
}

func TestLexicalSearcher_TieBreakNewestFirst(t *testing.T) {
	ks := &mockKnowledgeStore{chunks: []*store.KnowledgeChunk{
		{ID: "new", Chunk: "badge access"},
		{ID: "old", Chunk: "badge access"},
	}}

	results, err := NewLexicalSearcher(ks).Search(context.Background(), "badge", SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "new" || results[1].Chunk.ID != "old" {
		t.Errorf("Expected newest first on ties, got %s, %s", results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestLexicalSearcher_NoMatches(t *testing.T) {
	ks := &mockKnowledgeStore{chunks: []*store.KnowledgeChunk{{ID: "1", Chunk: "holiday calendar"}}}
	s := NewLexicalSearcher(ks)

	for _, q := range []string{"expense report", "", "   "} {
		results, err := s.Search(context.Background(), q, SearchOptions{})
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", q, err)
		}
		if len(results) != 0 {
			t.Errorf("Search(%q) returned %d results, want 0", q, len(results))
		}
	}
}

func TestLexicalSearcher_WindowHidesOlderChunks(t *testing.T) {
	ks := &mockKnowledgeStore{chunks: []*store.KnowledgeChunk{
		{ID: "recent", Chunk: "nothing relevant"},
		{ID: "ancient", Chunk: "quarterly audit"},
	}}

	results, err := NewLexicalSearcher(ks).Search(context.Background(), "audit", SearchOptions{Window: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Chunk outside the window should be invisible, got %d results", len(results))
	}
}

func TestLexicalSearcher_StoreError(t *testing.T) {
	ks := &mockKnowledgeStore{err: errors.New("disk gone")}

	if _, err := NewLexicalSearcher(ks).Search(context.Background(), "audit", SearchOptions{}); err == nil {
		t.Fatal("Expected store error to propagate")
	}
}

func TestLexicalSearcher_SQLite(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, text := range []string{"vendor onboarding needs two quotes", "lunch menu"} {
		if err := s.AddKnowledge(ctx, &store.KnowledgeChunk{Title: text, Chunk: text, Tag: "policy"}); err != nil {
			t.Fatalf("AddKnowledge failed: %v", err)
		}
	}

	results, err := NewLexicalSearcher(s).Search(ctx, "how many vendor quotes", SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Title != "vendor onboarding needs two quotes" {
		t.Errorf("Unexpected results: %+v", results)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := Excerpt(tt.in, tt.n); got != tt.want {
			t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
