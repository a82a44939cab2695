// Package tone classifies a message into a conversational context, maps the
// context to a tone, and decorates replies with rotated humor lines.
package tone

import (
	"strings"
)

// Context is the classification of an inbound message.
type Context string

// Contexts. Process and external are never produced by Classify but map to a
// tone, so callers may supply them directly.
const (
	ContextPolicy   Context = "policy"
	ContextProcess  Context = "process"
	ContextExternal Context = "external"
	ContextOverdue  Context = "overdue"
	ContextRepeat   Context = "repeat_question"
	ContextTask     Context = "task_nudge"
	ContextRoutine  Context = "routine"
)

// Tone is the voice a reply is written in.
type Tone string

// Tones.
const (
	Professional Tone = "professional"
	Playful      Tone = "playful"
	Sharp        Tone = "sharp"
)

// Meta carries caller-side flags that influence classification.
type Meta struct {
	External bool   // Audience is outside the organization
	Overdue  bool   // Caller has overdue work
	Repeat   bool   // Caller asked the same thing before
	Tag      string // Preferred humor tag
}

var policyKeywords = []string{"vendor", "auditor", "board", "policy", "procedure", "process", "sop"}

var taskKeywords = []string{"task", "remind", "what tasks", "my tasks", "mark done", "status"}

// Classify returns the context for a message. The first matching rule wins:
// external flag or policy keyword, overdue flag, repeat flag, task keyword,
// otherwise routine. Keywords match as substrings of the lowercased message.
func Classify(message string, meta Meta) Context {
	msg := strings.ToLower(message)

	switch {
	case meta.External || containsAny(msg, policyKeywords):
		return ContextPolicy
	case meta.Overdue:
		return ContextOverdue
	case meta.Repeat:
		return ContextRepeat
	case containsAny(msg, taskKeywords):
		return ContextTask
	default:
		return ContextRoutine
	}
}

// ToneFor maps a context to a tone. Unknown contexts are professional.
func ToneFor(c Context) Tone {
	switch c {
	case ContextPolicy, ContextProcess, ContextExternal:
		return Professional
	case ContextOverdue, ContextRepeat:
		return Sharp
	case ContextTask, ContextRoutine:
		return Playful
	default:
		return Professional
	}
}

// ParseTone converts a level name to a Tone. Only levels that carry humor are valid.
func ParseTone(level string) (Tone, bool) {
	switch t := Tone(strings.ToLower(strings.TrimSpace(level))); t {
	case Playful, Sharp:
		return t, true
	default:
		return "", false
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
