// Package chat is the conversation orchestrator. Each request resolves the
// caller, records the inbound text, intercepts structured commands, and
// otherwise retrieves knowledge, generates, sanitizes and envelopes a reply.
// Every exchange lands in the audit log.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dan-solli/moex/pkg/chunker"
	"github.com/dan-solli/moex/pkg/command"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/llm"
	"github.com/dan-solli/moex/pkg/metrics"
	"github.com/dan-solli/moex/pkg/search"
	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/tone"
	"github.com/dan-solli/moex/pkg/trace"
	"go.uber.org/zap"
)

// Fixed replies.
const (
	MessageIdentify    = "Hey, who am I speaking to? (name or work email)"
	MessageTrouble     = "Sorry, I'm having trouble reaching my brain right now. Please try again in a moment."
	MessageUnavailable = "I'm unavailable right now. Please try again later."
)

// NextClaim tells an unidentified caller where to go when guests are not allowed.
const NextClaim = "POST /auth/claim"

// ErrInvalidInput marks caller mistakes in task and upload requests.
var ErrInvalidInput = errors.New("invalid input")

// Repository is the storage capability set the orchestrator needs.
type Repository interface {
	store.KnowledgeStore
	store.HumorStore
	store.TaskStore
	store.FactStore
	store.AuditLog
	store.ChatLog
	store.UploadTracker
}

// Resolver maps a session token to a caller.
type Resolver interface {
	Resolve(ctx context.Context, token string) (identity.Caller, error)
}

// Options tunes the orchestrator.
type Options struct {
	AllowGuests  bool
	DefaultLevel string  // Humor level for teach commands without one
	Provider     string  // Generation backend name, for metrics and logs
	Model        string  // Empty uses the generator's default
	Temperature  float64
	MaxTokens    int
	TopK         int // Retrieved chunks per message (default: 4)
	Window       int // Most recent chunks considered (default: 500)
	ChunkSize    int // Upload slice size in characters (default: 1800)
}

// Service orchestrates chat requests. It holds no per-request state.
type Service struct {
	repo      Repository
	ids       Resolver
	searcher  search.Searcher
	generator llm.Generator
	retry     llm.RetryPolicy
	enveloper *tone.Enveloper
	parser    command.Parser
	chunker   *chunker.Chunker
	opts      Options
	logger    *zap.Logger
	metrics   metrics.Collector
	exporter  trace.Exporter
	now       func() time.Time
}

// New creates a Service. Logging, metrics and trace export default to no-ops.
func New(repo Repository, ids Resolver, searcher search.Searcher, generator llm.Generator, opts Options) *Service {
	if opts.DefaultLevel == "" {
		opts.DefaultLevel = string(tone.Playful)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultSize
	}
	if opts.Provider == "" {
		opts.Provider = "unknown"
	}

	return &Service{
		repo:      repo,
		ids:       ids,
		searcher:  searcher,
		generator: generator,
		retry:     llm.DefaultRetryPolicy(),
		enveloper: tone.NewEnveloper(repo),
		parser:    command.Parser{DefaultLevel: opts.DefaultLevel},
		chunker:   &chunker.Chunker{Size: opts.ChunkSize},
		opts:      opts,
		logger:    zap.NewNop(),
		metrics:   metrics.NewNoopCollector(),
		exporter:  trace.NoopExporter{},
		now:       time.Now,
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	if logger != nil {
		s.logger = logger
		s.enveloper.WithLogger(logger.Named("tone"))
	}
	return s
}

// WithMetrics sets the metrics collector.
func (s *Service) WithMetrics(c metrics.Collector) *Service {
	if c != nil {
		s.metrics = c
	}
	return s
}

// WithExporter sets the trace exporter.
func (s *Service) WithExporter(e trace.Exporter) *Service {
	if e != nil {
		s.exporter = e
	}
	return s
}

// WithRetryPolicy replaces the generation retry policy.
func (s *Service) WithRetryPolicy(p llm.RetryPolicy) *Service {
	s.retry = p
	return s
}

// WithClock replaces the clock used for overdue checks and every timestamp
// the service writes.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
		s.enveloper.WithClock(now)
	}
	return s
}

// Request is one inbound chat message.
type Request struct {
	Token   string
	Message string
	Meta    tone.Meta // Caller-supplied flags, merged with derived ones
}

// Response is the reply to a chat message.
type Response struct {
	Authenticated bool         `json:"authenticated"`
	Guest         bool         `json:"guest,omitempty"`
	Reply         string       `json:"reply"`
	Tone          tone.Tone    `json:"tone,omitempty"`
	Context       tone.Context `json:"context,omitempty"`
	Sources       []string     `json:"sources,omitempty"`
	Next          string       `json:"next,omitempty"`
}

// Handle runs one chat exchange. Only storage failures before a reply exists
// are returned as errors; generation failures become fixed replies.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	op := trace.Begin("chat")
	var opErr error
	defer func() { s.finishOperation(ctx, op, opErr) }()

	span := op.Span("resolve")
	caller, err := s.ids.Resolve(ctx, req.Token)
	s.endSpan(ctx, op, span, err, nil)
	if err != nil {
		opErr = err
		return nil, fmt.Errorf("failed to resolve caller: %w", err)
	}
	if !caller.Anonymous() {
		op.SetID("personId", caller.PersonID())
	} else if caller.Reason != nil && req.Token != "" {
		s.logger.Debug("session not trusted", zap.Error(caller.Reason))
	}

	span = op.Span("record")
	err = s.repo.AppendChat(ctx, &store.ChatMessage{
		PersonID:  caller.PersonID(),
		Role:      store.RoleUser,
		Text:      req.Message,
		CreatedAt: s.now(),
	})
	s.endSpan(ctx, op, span, err, nil)
	if err != nil {
		opErr = err
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	resp := &Response{Authenticated: !caller.Anonymous(), Guest: caller.Anonymous()}

	if caller.Anonymous() && !s.opts.AllowGuests {
		resp.Guest = false
		resp.Reply = MessageIdentify
		resp.Next = NextClaim
		s.audit(ctx, caller.Name(), "chat", "", map[string]interface{}{
			"message": req.Message,
			"result":  resp.Reply,
			"context": "identify",
		})
		s.recordReply(ctx, caller, resp.Reply)
		return resp, nil
	}

	cmd, err := s.parser.Parse(req.Message)
	var formatErr *command.FormatError
	if errors.As(err, &formatErr) {
		s.rejectCommand(ctx, caller, req.Message, formatErr, resp)
		return resp, nil
	}

	switch c := cmd.(type) {
	case command.Teach, command.Remember, command.Canon:
		reply, err := s.runCommand(ctx, caller, c)
		if err != nil {
			if errors.As(err, &formatErr) {
				s.rejectCommand(ctx, caller, req.Message, formatErr, resp)
				return resp, nil
			}
			opErr = err
			return nil, err
		}
		resp.Reply = reply
	case command.TaskList:
		reply, err := s.taskListReply(ctx, caller, req.Message, req.Meta.Tag)
		if err != nil {
			opErr = err
			return nil, err
		}
		resp.Reply = reply
		resp.Tone = tone.ToneFor(tone.ContextTask)
		resp.Context = tone.ContextTask
	default:
		opErr = s.converse(ctx, op, caller, req, resp)
	}

	s.recordReply(ctx, caller, resp.Reply)
	return resp, nil
}

// converse is the retrieve, classify, generate, sanitize and envelope path.
// The returned error is for the trace only; resp always carries a reply.
func (s *Service) converse(ctx context.Context, op *trace.Operation, caller identity.Caller, req Request, resp *Response) error {
	meta := s.deriveMeta(ctx, caller, req.Message, req.Meta)

	span := op.Span("retrieve")
	results, err := s.searcher.Search(ctx, req.Message, search.SearchOptions{TopK: s.opts.TopK, Window: s.opts.Window})
	s.endSpan(ctx, op, span, err, map[string]int64{"results": int64(len(results))})
	if err != nil {
		// Retrieval failure degrades to an answer without context.
		s.logger.Error("retrieval failed", zap.Error(err))
		s.metrics.RecordError(ctx, "chat", trace.ClassifyError(err))
		results = nil
	}

	class := tone.Classify(req.Message, meta)
	voice := tone.ToneFor(class)
	resp.Context = class
	resp.Tone = voice
	resp.Sources = sourceTitles(results)
	s.metrics.RecordTone(ctx, string(class), string(voice))

	span = op.Span("generate")
	attempts := int64(0)
	raw, genErr := s.generate(ctx, llm.Request{
		System:      SystemPrompt(caller),
		Prompt:      BuildPrompt(caller.Name(), req.Message, results),
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}, &attempts)
	s.endSpan(ctx, op, span, genErr, map[string]int64{"attempts": attempts})

	if genErr != nil {
		resp.Reply = MessageUnavailable
		if llm.IsTransient(genErr) {
			resp.Reply = MessageTrouble
		}
		s.logger.Error("generation failed",
			zap.String("provider", s.opts.Provider),
			zap.String("kind", llm.KindOf(genErr).String()),
			zap.Int64("attempts", attempts),
			zap.Error(genErr))
		s.metrics.RecordError(ctx, "chat", trace.ClassifyError(genErr))
		s.auditSpan(ctx, op, caller.Name(), "chat", voice, map[string]interface{}{
			"message": req.Message,
			"result":  resp.Reply,
			"context": string(class),
			"error":   trace.ClassifyError(genErr),
		})
		return genErr
	}

	span = op.Span("sanitize")
	clean := Sanitize(raw)
	s.endSpan(ctx, op, span, nil, nil)

	span = op.Span("envelope")
	final := s.enveloper.Envelope(ctx, voice, clean, voice == tone.Professional, meta.Tag)
	s.endSpan(ctx, op, span, nil, nil)

	resp.Reply = final
	s.auditSpan(ctx, op, caller.Name(), "chat", voice, map[string]interface{}{
		"message": req.Message,
		"result":  final,
		"context": string(class),
		"sources": resp.Sources,
	})

	return nil
}

// generate calls the generator through the retry policy, counting attempts.
func (s *Service) generate(ctx context.Context, req llm.Request, attempts *int64) (string, error) {
	counted := llm.GeneratorFunc(func(ctx context.Context, r llm.Request) (string, error) {
		*attempts++
		text, err := s.generator.Generate(ctx, r)
		outcome := "ok"
		if err != nil {
			outcome = llm.KindOf(err).String()
		}
		s.metrics.RecordGeneration(ctx, s.opts.Provider, outcome)
		return text, err
	})

	policy := s.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("retrying generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("kind", llm.KindOf(err).String()),
			zap.Error(err))
	}

	return policy.Generate(ctx, counted, req)
}

// deriveMeta merges request flags with what moex can infer: external markers
// in the text, a repeated question, and open tasks past their due date.
func (s *Service) deriveMeta(ctx context.Context, caller identity.Caller, message string, meta tone.Meta) tone.Meta {
	if containsAny(lower(message), externalMarkers) {
		meta.External = true
	}
	if caller.Anonymous() {
		return meta
	}

	if !meta.Repeat {
		// The newest user message is the one just recorded.
		recent, err := s.repo.RecentChats(ctx, caller.PersonID(), store.RoleUser, 2)
		if err != nil {
			s.logger.Warn("repeat check failed", zap.Error(err))
		} else if len(recent) == 2 && equalFold(recent[1].Text, message) {
			meta.Repeat = true
		}
	}

	if !meta.Overdue {
		tasks, err := s.repo.ListTasks(ctx, store.TaskFilter{Owner: caller.Name()})
		if err != nil {
			s.logger.Warn("overdue check failed", zap.Error(err))
		} else {
			meta.Overdue = hasOverdue(tasks, s.now().Format(store.DueDateLayout))
		}
	}

	return meta
}

func hasOverdue(tasks []*store.Task, today string) bool {
	for _, t := range tasks {
		if t.Status != store.StatusDone && t.DueDate != "" && t.DueDate < today {
			return true
		}
	}
	return false
}

func sourceTitles(results []search.SearchResult) []string {
	var titles []string
	seen := make(map[string]bool)
	for _, r := range results {
		if !seen[r.Chunk.Title] {
			seen[r.Chunk.Title] = true
			titles = append(titles, r.Chunk.Title)
		}
	}
	return titles
}

func (s *Service) recordReply(ctx context.Context, caller identity.Caller, text string) {
	err := s.repo.AppendChat(ctx, &store.ChatMessage{
		PersonID:  caller.PersonID(),
		Role:      store.RoleAssistant,
		Text:      text,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Error("failed to record reply", zap.Error(err))
	}
}

func (s *Service) endSpan(ctx context.Context, op *trace.Operation, st *trace.SpanTimer, err error, counters map[string]int64) {
	ms := st.Finish(err, counters)
	s.metrics.RecordStage(ctx, op.Name(), st.Name(), ms)
}

func (s *Service) finishOperation(ctx context.Context, op *trace.Operation, err error) {
	rec := op.Record(err)
	s.metrics.RecordOperation(ctx, rec.Operation, rec.Status, rec.DurationMs)
	if err := s.exporter.Export(ctx, rec); err != nil {
		s.logger.Warn("trace export failed", zap.Error(err))
	}
}
