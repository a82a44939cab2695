package trace

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation collects spans for one request. Safe for concurrent use.
type Operation struct {
	mu    sync.Mutex
	id    string
	name  string
	start time.Time
	spans []SpanRecord
	ids   map[string]interface{}
}

// Begin starts tracing an operation. IDs are ULIDs so exported traces sort by
// start time.
func Begin(operation string) *Operation {
	return &Operation{
		id:    ulid.Make().String(),
		name:  operation,
		start: time.Now(),
		spans: make([]SpanRecord, 0),
	}
}

// ID returns the operation's correlation ID.
func (o *Operation) ID() string {
	return o.id
}

// Name returns the operation type.
func (o *Operation) Name() string {
	return o.name
}

// SetID attaches an identifier to the exported record.
func (o *Operation) SetID(key string, value interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ids == nil {
		o.ids = make(map[string]interface{})
	}
	o.ids[key] = value
}

// Spans returns a copy of the spans recorded so far.
func (o *Operation) Spans() []SpanRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SpanRecord, len(o.spans))
	copy(out, o.spans)
	return out
}

// Span starts timing a named stage.
func (o *Operation) Span(name string) *SpanTimer {
	return &SpanTimer{name: name, start: time.Now(), op: o}
}

// Record closes the operation. err decides the status and error type.
func (o *Operation) Record(err error) *TraceRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := &TraceRecord{
		Timestamp:   o.start,
		OperationID: o.id,
		Operation:   o.name,
		DurationMs:  time.Since(o.start).Milliseconds(),
		Status:      "success",
		Spans:       append([]SpanRecord(nil), o.spans...),
		IDs:         o.ids,
	}
	if err != nil {
		rec.Status = "error"
		rec.ErrorType = ClassifyError(err)
	}
	return rec
}

// SpanTimer measures one stage of an Operation.
type SpanTimer struct {
	name  string
	start time.Time
	op    *Operation
	done  bool
}

// Name returns the stage name.
func (st *SpanTimer) Name() string {
	return st.name
}

// Finish records the span and returns its duration in milliseconds.
// Only the first call records.
func (st *SpanTimer) Finish(err error, counters map[string]int64) int64 {
	duration := time.Since(st.start).Milliseconds()
	if st.done {
		return duration
	}
	st.done = true

	span := SpanRecord{
		Name:       st.name,
		DurationMs: duration,
		OK:         err == nil,
		Counters:   counters,
	}
	if err != nil {
		span.ErrorType = ClassifyError(err)
	}

	st.op.mu.Lock()
	st.op.spans = append(st.op.spans, span)
	st.op.mu.Unlock()

	return duration
}
