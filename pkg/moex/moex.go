// Package moex wires configuration, storage, identity, retrieval, generation,
// metrics and tracing into a ready-to-serve conversational backend.
package moex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dan-solli/moex/pkg/chat"
	"github.com/dan-solli/moex/pkg/config"
	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/llm"
	"github.com/dan-solli/moex/pkg/metrics"
	"github.com/dan-solli/moex/pkg/search"
	"github.com/dan-solli/moex/pkg/store"
	"github.com/dan-solli/moex/pkg/trace"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Version is the build version, overridden with -ldflags at release time.
var Version = "dev"

const defaultOllamaModel = "llama3.2"

// MoeX is the main entry point for the backend.
type MoeX struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	identity  *identity.Manager
	chat      *chat.Service
	generator llm.Generator
	metrics   metrics.Collector
	registry  *prometheus.Registry
	exporter  trace.Exporter
	logger    *zap.Logger
}

type options struct {
	logger    *zap.Logger
	generator llm.Generator
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithGenerator bypasses provider selection.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// New validates cfg and builds every component. The caller must Close the
// returned instance.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*MoeX, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s, err := store.OpenSQLiteStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	generator := o.generator
	if generator == nil {
		generator, err = NewGenerator(ctx, cfg.LLM)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	exporter, err := trace.NewFileExporter(cfg.Trace.File)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open trace exporter: %w", err)
	}

	var collector metrics.Collector = metrics.NewNoopCollector()
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		c := metrics.NewCollector()
		collector, registry = c, c.Registry()
	}

	ids := identity.NewManager(s, cfg.TrustDuration()).
		WithLogger(o.logger.Named("identity"))

	retry := llm.DefaultRetryPolicy()
	retry.MaxRetries = cfg.LLM.Retries
	retry.Timeout = cfg.GetLLMTimeout()

	svc := chat.New(s, ids, search.NewLexicalSearcher(s), generator, chat.Options{
		AllowGuests:  cfg.Auth.AllowGuests,
		DefaultLevel: cfg.Tone.DefaultLevel,
		Provider:     cfg.LLM.Provider,
		Model:        ModelFor(cfg.LLM),
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		TopK:         cfg.Retrieval.TopK,
		Window:       cfg.Retrieval.Window,
		ChunkSize:    cfg.Upload.ChunkSize,
	}).
		WithLogger(o.logger.Named("chat")).
		WithMetrics(collector).
		WithExporter(exporter).
		WithRetryPolicy(retry)

	m := &MoeX{
		cfg:       cfg,
		store:     s,
		identity:  ids,
		chat:      svc,
		generator: generator,
		metrics:   collector,
		registry:  registry,
		exporter:  exporter,
		logger:    o.logger,
	}
	m.RefreshCounts(ctx)

	o.logger.Info("moex ready",
		zap.String("version", Version),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("store", cfg.Store.Path),
		zap.Bool("allow_guests", cfg.Auth.AllowGuests),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("tracing", trace.Enabled && cfg.Trace.File != ""))

	return m, nil
}

// NewGenerator builds the generation backend named by cfg.Provider. A
// missing API key is reported on first use, not here.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case "openai":
		g := llm.NewOpenAIGenerator(cfg.APIKey)
		if cfg.Model != "" {
			g.Model = cfg.Model
		}
		if cfg.BaseURL != "" {
			g.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return g, nil
	case "gemini":
		if cfg.APIKey == "" {
			return missingKey("gemini", "GEMINI_API_KEY"), nil
		}
		g, err := llm.NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini generator: %w", err)
		}
		return g, nil
	case "ollama":
		return llm.NewOllamaGenerator(strings.TrimRight(cfg.BaseURL, "/"), ModelFor(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// ModelFor returns the model requested from the provider. OpenAI model names
// fall back to a local default on ollama.
func ModelFor(cfg config.LLMConfig) string {
	if cfg.Provider == "ollama" && (cfg.Model == "" || strings.HasPrefix(cfg.Model, "gpt-")) {
		return defaultOllamaModel
	}
	return cfg.Model
}

func missingKey(provider, env string) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "", &llm.Error{
			Kind:     llm.KindFatal,
			Provider: provider,
			Err:      fmt.Errorf("API key not configured (set %s)", env),
		}
	})
}

// RefreshCounts publishes stored people and knowledge counts to metrics.
func (m *MoeX) RefreshCounts(ctx context.Context) {
	if n, err := m.store.CountPeople(ctx); err == nil {
		m.metrics.SetStorageCount(ctx, "people", n)
	}
	if n, err := m.store.CountKnowledge(ctx); err == nil {
		m.metrics.SetStorageCount(ctx, "knowledge", n)
	}
}

// Config returns the validated configuration.
func (m *MoeX) Config() *config.Config {
	return m.cfg
}

// Store returns the underlying repository.
func (m *MoeX) Store() *store.SQLiteStore {
	return m.store
}

// Identity returns the identity and trust session manager.
func (m *MoeX) Identity() *identity.Manager {
	return m.identity
}

// Chat returns the conversation orchestrator.
func (m *MoeX) Chat() *chat.Service {
	return m.chat
}

// Metrics returns the active collector.
func (m *MoeX) Metrics() metrics.Collector {
	return m.metrics
}

// Registry returns the Prometheus registry, nil when metrics are disabled.
func (m *MoeX) Registry() *prometheus.Registry {
	return m.registry
}

// Ping checks that storage is reachable.
func (m *MoeX) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Close flushes traces and closes the store.
func (m *MoeX) Close() error {
	return errors.Join(m.exporter.Close(), m.store.Close())
}
