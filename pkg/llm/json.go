package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Reasoning models served over OpenAI-compatible endpoints prefix their
// answers with <think> blocks; the decision JSON follows after.
var (
	leadingThinkBlock = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
	thinkBlockContent = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
)

// ExtractThinking returns the model's reasoning from a <think> block, or the
// empty string when there is none.
func ExtractThinking(response string) string {
	m := thinkBlockContent.FindStringSubmatch(response)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ExtractJSON pulls the first JSON value out of free-form model output.
// Think blocks are stripped, then the first balanced object or array wins;
// markdown fences and trailing prose fall away on their own.
func ExtractJSON(response string) (string, error) {
	cleaned := leadingThinkBlock.ReplaceAllString(response, "")

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if candidate, ok := balancedSpan(cleaned, '{', '}'); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	if arrStart >= 0 {
		if candidate, ok := balancedSpan(cleaned, '[', ']'); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	// The whole response may be a bare JSON scalar.
	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// balancedSpan returns the first span from open to its matching closing
// bracket, ignoring brackets inside JSON strings.
func balancedSpan(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch c {
			case '\\':
				i++ // skip the escaped byte
			case '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
