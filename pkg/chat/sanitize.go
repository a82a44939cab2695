package chat

import (
	"regexp"
	"strings"
)

var (
	directiveLine = regexp.MustCompile(`(?im)^[ \t]*(teach:|sys:|system:|internal:|debug:|tl;dr\b|tldr\b).*$`)
	blankRun      = regexp.MustCompile(`\n{3,}`)
)

// Sanitize removes lines that open with an internal directive or a banned
// summary label, collapses runs of three or more newlines to two, and trims.
// CRLF line endings are normalized to LF first.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = directiveLine.ReplaceAllString(text, "")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
