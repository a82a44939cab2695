package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/dan-solli/moex/pkg/command"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/tone"
)

// Knowledge tags.
const (
	TagPolicy = "policy"
	TagCanon  = "canon"
)

func (s *Service) runCommand(ctx context.Context, caller identity.Caller, cmd command.Command) (string, error) {
	switch c := cmd.(type) {
	case command.Teach:
		h, err := s.Teach(ctx, caller, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved a %s line under tag '%s'.", h.Level, h.Tag), nil
	case command.Remember:
		return s.remember(ctx, caller, c)
	case command.Canon:
		return s.canon(ctx, caller, c)
	default:
		return "", fmt.Errorf("unsupported command %T", cmd)
	}
}

// rejectCommand answers a malformed command with its usage hint. The exchange
// is audited as kind command_error; no knowledge, humor or fact is written.
func (s *Service) rejectCommand(ctx context.Context, caller identity.Caller, message string, formatErr *command.FormatError, resp *Response) {
	resp.Reply = formatErr.Hint
	s.audit(ctx, caller.Name(), "command_error", "", map[string]interface{}{
		"message": message,
		"result":  formatErr.Hint,
	})
	s.recordReply(ctx, caller, resp.Reply)
}

// Teach stores a humor line. An unknown level or an empty line is a
// *command.FormatError carrying the usage hint.
func (s *Service) Teach(ctx context.Context, caller identity.Caller, t command.Teach) (*store.HumorLine, error) {
	level := t.Level
	if level == "" {
		level = s.opts.DefaultLevel
	}
	voice, ok := tone.ParseTone(level)
	line := strings.TrimSpace(t.Line)
	if !ok || line == "" {
		return nil, &command.FormatError{Hint: command.TeachHint}
	}
	tag := strings.TrimSpace(t.Tag)
	if tag == "" {
		tag = command.DefaultTag
	}

	h := &store.HumorLine{
		Line:      line,
		Level:     string(voice),
		Tag:       tag,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddHumor(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to save humor line: %w", err)
	}

	s.audit(ctx, caller.Name(), "teach", voice, map[string]interface{}{
		"line": line,
		"tag":  tag,
	})
	return h, nil
}

func (s *Service) remember(ctx context.Context, caller identity.Caller, r command.Remember) (string, error) {
	err := s.repo.AddFact(ctx, &store.MemoryFact{
		Key:       r.Key,
		Value:     r.Value,
		Source:    caller.Name(),
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save memory fact: %w", err)
	}

	s.audit(ctx, caller.Name(), "teach", tone.Professional, map[string]interface{}{
		"memory_key": r.Key,
	})
	return fmt.Sprintf("Noted. I'll remember %s.", r.Key), nil
}

func (s *Service) canon(ctx context.Context, caller identity.Caller, c command.Canon) (string, error) {
	err := s.repo.AddKnowledge(ctx, &store.KnowledgeChunk{
		Title:     c.Title,
		Chunk:     c.Text,
		Tag:       TagCanon,
		SourceURI: "chat:" + caller.Name(),
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save canonical note: %w", err)
	}

	s.audit(ctx, caller.Name(), "teach", tone.Professional, map[string]interface{}{
		"canon": c.Title,
	})
	return "Added canonical note: " + c.Title, nil
}
