// Package privacy scrubs content before it becomes a durable memory.
// Conversation turns can carry text the user marked private, plus secrets
// that should never be recallable later.
package privacy

import (
	"regexp"
	"strings"
)

// privateTagRegex matches <private>...</private> blocks (non-greedy, dotall).
var privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

// secretPatterns matches common credential shapes worth redacting from
// stored memories.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{20,}=*`),
}

// StripPrivateTags removes all <private>...</private> blocks from content.
func StripPrivateTags(content string) string {
	return strings.TrimSpace(privateTagRegex.ReplaceAllString(content, ""))
}

// RedactSecrets replaces credential-shaped substrings with a placeholder.
func RedactSecrets(content string) string {
	for _, p := range secretPatterns {
		content = p.ReplaceAllString(content, "[redacted]")
	}
	return content
}

// Sanitize applies both filters in order: private blocks first, then secret
// redaction on whatever remains.
func Sanitize(content string) string {
	return RedactSecrets(StripPrivateTags(content))
}

// HasOnlyPrivateContent reports whether nothing useful remains after
// stripping private blocks.
func HasOnlyPrivateContent(content string) bool {
	return StripPrivateTags(content) == ""
}
