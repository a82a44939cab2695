package tone

import (
	"context"
	"time"

	"github.com/dan-solli/moex/pkg/store"
	"go.uber.org/zap"
)

// HumorPicker selects and marks a humor line as used at the given time. It
// returns (nil, nil) when no line matches; an empty tag matches any tag.
type HumorPicker interface {
	PickHumor(ctx context.Context, level, tag string, at time.Time) (*store.HumorLine, error)
}

var defaultLines = map[Tone]string{
	Playful: "It won't finish itself. Shocking, I know.",
	Sharp:   "Even Oracle's patch cycles move faster.",
}

// DefaultLine returns the built-in line for a tone, used when the humor store
// has nothing to offer. Professional has none.
func DefaultLine(t Tone) string {
	return defaultLines[t]
}

// Enveloper appends a humor line to playful and sharp replies.
type Enveloper struct {
	picker HumorPicker
	logger *zap.Logger
	now    func() time.Time
}

// NewEnveloper creates an Enveloper. A nil picker always uses default lines.
func NewEnveloper(picker HumorPicker) *Enveloper {
	return &Enveloper{picker: picker, logger: zap.NewNop(), now: time.Now}
}

// WithLogger sets the logger.
func (e *Enveloper) WithLogger(logger *zap.Logger) *Enveloper {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithClock sets the clock that stamps picked lines.
func (e *Enveloper) WithClock(now func() time.Time) *Enveloper {
	if now != nil {
		e.now = now
	}
	return e
}

// Envelope decorates body for the given tone. Professional replies and policy
// content are returned unchanged. Otherwise exactly one line is appended:
// "(P.S. <line>)" for playful, "(<line>)" for sharp.
func (e *Enveloper) Envelope(ctx context.Context, t Tone, body string, isPolicy bool, tag string) string {
	if t == Professional || isPolicy {
		return body
	}

	line := e.Pick(ctx, t, tag)
	switch t {
	case Playful:
		return body + "\n\n(P.S. " + line + ")"
	case Sharp:
		return body + "\n\n(" + line + ")"
	default:
		return body
	}
}

// Pick returns a stored line for the tone, preferring the tag, then any tag,
// then the default line. Store failures fall through to the default line.
func (e *Enveloper) Pick(ctx context.Context, t Tone, tag string) string {
	if h := e.pick(ctx, t, tag); h != nil {
		return h.Line
	}
	return DefaultLine(t)
}

func (e *Enveloper) pick(ctx context.Context, t Tone, tag string) *store.HumorLine {
	if e.picker == nil {
		return nil
	}

	at := e.now()
	tags := []string{""}
	if tag != "" {
		tags = []string{tag, ""}
	}
	for _, tg := range tags {
		h, err := e.picker.PickHumor(ctx, string(t), tg, at)
		if err != nil {
			e.logger.Warn("humor pick failed, using default line",
				zap.String("tone", string(t)), zap.Error(err))
			return nil
		}
		if h != nil {
			return h
		}
	}
	return nil
}
