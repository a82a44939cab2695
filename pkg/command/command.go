// Package command parses the structured chat commands moex understands:
//
//	teach: level=<playful|sharp> tag=<tag> | <line>
//	remember: <key> = <value>
//	canon: <title> | <content>
//
// plus a handful of task-list questions. Anything else is plain chat.
package command

import (
	"strings"
)

// Usage hints returned for malformed commands.
const (
	TeachHint    = "Format: teach: level=playful tag=task | your witty line"
	RememberHint = "Format: remember: key = value"
	CanonHint    = "Format: canon: Title | Authoritative content"
)

// DefaultTag is the humor tag used when a teach command names none.
const DefaultTag = "generic"

// Command is one parsed inbound message.
type Command interface {
	isCommand()
}

// Chat is free text for retrieval and generation.
type Chat struct {
	Text string
}

// Teach adds a humor line.
type Teach struct {
	Level string
	Tag   string
	Line  string
}

// Remember records a memory fact.
type Remember struct {
	Key   string
	Value string
}

// Canon adds an authoritative knowledge note.
type Canon struct {
	Title string
	Text  string
}

// TaskList asks for the caller's tasks.
type TaskList struct{}

func (Chat) isCommand()     {}
func (Teach) isCommand()    {}
func (Remember) isCommand() {}
func (Canon) isCommand()    {}
func (TaskList) isCommand() {}

// FormatError reports a malformed command. Hint is safe to show the caller.
type FormatError struct {
	Hint string
}

func (e *FormatError) Error() string {
	return e.Hint
}

var taskListPhrases = []string{"what tasks do i have", "my tasks", "show my tasks"}

// Parser parses messages. DefaultLevel fills in a teach command's level.
type Parser struct {
	DefaultLevel string
}

// Parse parses a message with the "playful" default level.
func Parse(message string) (Command, error) {
	return Parser{}.Parse(message)
}

// Parse classifies and validates a message. Prefixes match case-insensitively
// after leading whitespace. A malformed command returns a *FormatError.
func (p Parser) Parse(message string) (Command, error) {
	trimmed := strings.TrimLeft(message, " \t\r\n")
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "teach:"):
		return p.parseTeach(trimmed[len("teach:"):])
	case strings.HasPrefix(lower, "remember:"):
		return parseRemember(trimmed[len("remember:"):])
	case strings.HasPrefix(lower, "canon:"):
		return parseCanon(trimmed[len("canon:"):])
	}

	for _, phrase := range taskListPhrases {
		if strings.Contains(lower, phrase) {
			return TaskList{}, nil
		}
	}

	return Chat{Text: message}, nil
}

func (p Parser) parseTeach(rest string) (Command, error) {
	head, line, ok := strings.Cut(rest, "|")
	line = strings.TrimSpace(line)
	if !ok || line == "" {
		return nil, &FormatError{Hint: TeachHint}
	}

	cmd := Teach{Level: p.DefaultLevel, Tag: DefaultTag, Line: line}
	if cmd.Level == "" {
		cmd.Level = "playful"
	}

	for _, field := range strings.Fields(head) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "level":
			cmd.Level = strings.ToLower(value)
		case "tag":
			cmd.Tag = value
		}
	}

	if cmd.Level != "playful" && cmd.Level != "sharp" {
		return nil, &FormatError{Hint: TeachHint}
	}
	if cmd.Tag == "" {
		cmd.Tag = DefaultTag
	}

	return cmd, nil
}

func parseRemember(rest string) (Command, error) {
	key, value, ok := strings.Cut(rest, "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return nil, &FormatError{Hint: RememberHint}
	}
	return Remember{Key: key, Value: value}, nil
}

func parseCanon(rest string) (Command, error) {
	title, text, ok := strings.Cut(rest, "|")
	title, text = strings.TrimSpace(title), strings.TrimSpace(text)
	if !ok || title == "" || text == "" {
		return nil, &FormatError{Hint: CanonHint}
	}
	return Canon{Title: title, Text: text}, nil
}
