package provider

import (
	"regexp"
	"strings"
)

// StripCodeFence removes a surrounding ```json / ```markdown / ``` fence
// from an LLM response, returning the inner text trimmed of whitespace.
// LLMs routinely wrap structured output in a fence even when asked not to.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"```json", "```markdown", "```"} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			text = strings.TrimSuffix(text, "```")
			break
		}
	}
	return strings.TrimSpace(text)
}

var citationPattern = regexp.MustCompile(`\[(?:Source\s+)?(\d+)\]`)

// ExtractCitationMarkers returns the distinct citation numbers referenced
// via "[N]" or "[Source N]" markers in text, in first-seen order.
func ExtractCitationMarkers(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}
