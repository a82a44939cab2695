package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/dan-solli/moex/pkg/chunker"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/tone"
	"github.com/dan-solli/moex/pkg/trace"
)

// UploadResult reports what an upload wrote.
type UploadResult struct {
	Title     string `json:"title"`
	Chunks    int    `json:"chunks"`
	Duplicate bool   `json:"duplicate"`
}

// Upload slices a document into policy knowledge chunks. Content identical
// to an earlier upload writes nothing and reports the earlier chunk count.
func (s *Service) Upload(ctx context.Context, caller identity.Caller, title, content string) (res *UploadResult, err error) {
	op := trace.Begin("upload")
	defer func() { s.finishOperation(ctx, op, err) }()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidInput)
	}

	hash := chunker.ContentHash(content)
	op.SetID("hash", hash)

	done, previous, err := s.repo.IsUploadProcessed(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check upload: %w", err)
	}
	if done {
		s.audit(ctx, caller.Name(), "upload", tone.Professional, map[string]interface{}{
			"title":     title,
			"chunks":    previous,
			"duplicate": true,
		})
		return &UploadResult{Title: title, Chunks: previous, Duplicate: true}, nil
	}

	span := op.Span("chunk")
	chunks := s.chunker.Chunk(content)
	s.endSpan(ctx, op, span, nil, map[string]int64{"chunks": int64(len(chunks))})

	span = op.Span("write")
	for _, c := range chunks {
		err = s.repo.AddKnowledge(ctx, &store.KnowledgeChunk{
			Title:     title,
			Chunk:     c.Text,
			Tag:       TagPolicy,
			SourceURI: title,
			CreatedAt: s.now(),
		})
		if err != nil {
			s.endSpan(ctx, op, span, err, nil)
			return nil, fmt.Errorf("failed to store chunk %d: %w", c.Index, err)
		}
	}
	if err = s.repo.MarkUploadProcessed(ctx, hash, title, len(chunks)); err != nil {
		s.endSpan(ctx, op, span, err, nil)
		return nil, fmt.Errorf("failed to mark upload processed: %w", err)
	}
	s.endSpan(ctx, op, span, nil, map[string]int64{"chunks": int64(len(chunks))})

	if n, err := s.repo.CountKnowledge(ctx); err == nil {
		s.metrics.SetStorageCount(ctx, "knowledge", n)
	}

	s.audit(ctx, caller.Name(), "upload", tone.Professional, map[string]interface{}{
		"title":  title,
		"chunks": len(chunks),
	})
	return &UploadResult{Title: title, Chunks: len(chunks)}, nil
}
