package chat

import (
	"strings"

	"github.com/dan-solli/moex/pkg/identity"
	"github.com/dan-solli/moex/pkg/search"
)

// basePrompt is the system instruction for every generation.
const basePrompt = "You are MoeX. Speak naturally and briefly like a human, not a template. " +
	"Do NOT use labels like 'TL;DR', 'Actions', or bullet lists unless the user asks. " +
	"For policy/process or external topics, keep it straightforward and professional (no jokes). " +
	"Otherwise feel free to be lightly witty and personable. " +
	"Match the user's language (Arabic or English)."

// excerptLen caps how much of each retrieved chunk goes into the prompt.
const excerptLen = 600

var externalMarkers = []string{"vendor", "auditor", "board", "bot", "external"}

// SystemPrompt returns the system instruction, personalized for an identified
// caller with their name, email, tags and persona.
func SystemPrompt(caller identity.Caller) string {
	p := caller.Person
	if p == nil {
		return basePrompt
	}

	var bits []string
	caption := "Caller: " + p.Name
	if p.Email != "" {
		caption += " (" + p.Email + ")"
	}
	bits = append(bits, caption+".")
	if p.Tags != "" {
		bits = append(bits, "Caller works in: "+p.Tags+".")
	}
	if p.Persona != "" {
		bits = append(bits, "Special instructions for "+p.Name+":\n"+p.Persona)
	}

	return basePrompt + "\n\n" + strings.Join(bits, "\n")
}

// BuildPrompt assembles the user prompt from the caller's name, the message
// and retrieved context, each cited by title.
func BuildPrompt(name, message string, results []search.SearchResult) string {
	var b strings.Builder
	b.WriteString("User: " + name + "\n\nQuestion: " + message + "\n\n")

	if len(results) > 0 {
		sources := make([]string, 0, len(results))
		for _, r := range results {
			sources = append(sources, "Source: "+r.Chunk.Title+"\n"+search.Excerpt(r.Chunk.Chunk, excerptLen))
		}
		b.WriteString("Context (may cite):\n" + strings.Join(sources, "\n\n") + "\n")
	}

	b.WriteString("\nAnswer naturally in a few sentences. If you cite uploaded material, mention the Source title(s).")
	return b.String()
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
