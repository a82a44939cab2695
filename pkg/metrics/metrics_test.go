package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector_RecordOperation(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordOperation(ctx, "chat", "success", 1000)
	collector.RecordOperation(ctx, "chat", "success", 1500)
	collector.RecordOperation(ctx, "chat", "error", 500)
	collector.RecordOperation(ctx, "upload", "success", 200)

	if got := testutil.CollectAndCount(collector.operationsTotal); got != 3 {
		t.Errorf("expected 3 metric series (chat/success, chat/error, upload/success), got %d", got)
	}

	chatSuccess := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("chat", "success"))
	if chatSuccess != 2 {
		t.Errorf("expected 2 chat/success operations, got %f", chatSuccess)
	}

	chatError := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("chat", "error"))
	if chatError != 1 {
		t.Errorf("expected 1 chat/error operation, got %f", chatError)
	}

	// Each operation also lands in the total-duration histogram
	if got := testutil.CollectAndCount(collector.operationDuration); got != 2 {
		t.Errorf("expected 2 total-duration series, got %d", got)
	}
}

func TestMetricsCollector_RecordStage(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordStage(ctx, "chat", "retrieve", 3)
	collector.RecordStage(ctx, "chat", "generate", 2500)
	collector.RecordStage(ctx, "chat", "generate", 3000)

	if got := testutil.CollectAndCount(collector.operationDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestMetricsCollector_RecordError(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordError(ctx, "chat", "rate_limited")
	collector.RecordError(ctx, "chat", "rate_limited")
	collector.RecordError(ctx, "chat", "audit_dropped")
	collector.RecordError(ctx, "upload", "validation")

	rateLimited := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("chat", "rate_limited"))
	if rateLimited != 2 {
		t.Errorf("expected 2 rate_limited errors, got %f", rateLimited)
	}

	dropped := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("chat", "audit_dropped"))
	if dropped != 1 {
		t.Errorf("expected 1 dropped audit entry, got %f", dropped)
	}
}

func TestMetricsCollector_RecordGeneration(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordGeneration(ctx, "openai", "timeout")
	collector.RecordGeneration(ctx, "openai", "ok")

	expected := `
# HELP moex_generation_attempts_total Text generation attempts by provider and outcome
# TYPE moex_generation_attempts_total counter
moex_generation_attempts_total{outcome="ok",provider="openai"} 1
moex_generation_attempts_total{outcome="timeout",provider="openai"} 1
`
	if err := testutil.CollectAndCompare(collector.generationsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected generation metrics: %v", err)
	}
}

func TestMetricsCollector_RecordTone(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordTone(ctx, "policy", "professional")
	collector.RecordTone(ctx, "overdue", "sharp")
	collector.RecordTone(ctx, "overdue", "sharp")

	if got := testutil.ToFloat64(collector.tonesTotal.WithLabelValues("overdue", "sharp")); got != 2 {
		t.Errorf("expected 2 sharp overdue replies, got %f", got)
	}
}

func TestMetricsCollector_SetStorageCount(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.SetStorageCount(ctx, "knowledge", 42)
	collector.SetStorageCount(ctx, "people", 3)

	knowledge := testutil.ToFloat64(collector.storageCount.WithLabelValues("knowledge"))
	if knowledge != 42 {
		t.Errorf("expected 42 knowledge chunks, got %f", knowledge)
	}

	collector.SetStorageCount(ctx, "knowledge", 50)
	knowledge = testutil.ToFloat64(collector.storageCount.WithLabelValues("knowledge"))
	if knowledge != 50 {
		t.Errorf("expected 50 knowledge chunks after update, got %f", knowledge)
	}
}

func TestMetricsCollector_Registry(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordOperation(ctx, "test", "success", 100)
	collector.RecordStage(ctx, "test", "stage1", 50)
	collector.RecordError(ctx, "test", "error1")
	collector.RecordGeneration(ctx, "ollama", "ok")
	collector.RecordTone(ctx, "routine", "playful")
	collector.SetStorageCount(ctx, "people", 10)

	registry := collector.Registry()
	if registry == nil {
		t.Fatal("expected non-nil registry")
	}

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) != 6 {
		t.Errorf("expected 6 metric families, got %d", len(metricFamilies))
	}
	for _, mf := range metricFamilies {
		if !strings.HasPrefix(mf.GetName(), "moex_") {
			t.Errorf("metric %q lacks moex_ prefix", mf.GetName())
		}
	}
}

// TestMetricsCollector_NoPayloadLeakage verifies label values carry no secrets
func TestMetricsCollector_NoPayloadLeakage(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordOperation(ctx, "chat", "success", 1000)
	collector.RecordStage(ctx, "chat", "generate", 500)
	collector.RecordError(ctx, "verify", "auth")

	metricFamilies, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	forbiddenTerms := []string{"secret", "token", "api_key", "Bearer"}
	for _, mf := range metricFamilies {
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				for _, term := range forbiddenTerms {
					if strings.Contains(label.GetValue(), term) {
						t.Errorf("found forbidden term %q in metric label", term)
					}
				}
			}
		}
	}
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NewNoopCollector()
	ctx := context.Background()

	// Must not panic
	c.RecordOperation(ctx, "chat", "success", 1)
	c.RecordStage(ctx, "chat", "generate", 1)
	c.RecordError(ctx, "chat", "timeout")
	c.RecordGeneration(ctx, "openai", "ok")
	c.RecordTone(ctx, "routine", "playful")
	c.SetStorageCount(ctx, "people", 1)
}
