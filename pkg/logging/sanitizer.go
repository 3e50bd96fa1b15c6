package logging

import (
	"regexp"
)

const (
	// MaxQuestionLogLength caps how much of a shop question lands in a log line.
	MaxQuestionLogLength = 120
	// RedactedText replaces anything a redaction rule matches.
	RedactedText = "[REDACTED]"
)

// redactionRule pairs a credential-shaped pattern with its replacement.
// Replacements keep the surrounding key or scheme so a log line still shows
// what kind of value was removed.
type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// The rules run in order on every string we scrub. Key/value forms go first
// so a password inside a URI query string is caught before the URI rule
// rewrites the authority part.
var redactionRules = []redactionRule{
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText},
	// Bearer tokens: three base64url segments separated by dots
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`), "Bearer " + RedactedText},
	// api_key=xxx and friends, long enough to look like a real key
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`), "${1}=" + RedactedText},
	// user:pass@host in mongodb:// and redis:// URIs
	{regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`), "://" + RedactedText + "@" + RedactedText},
}

func scrub(s string) string {
	for _, rule := range redactionRules {
		s = rule.pattern.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// SanitizeConnectionString redacts credentials from a MongoDB or Redis URI
// so it can be logged at startup.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return scrub(connStr)
}

// SanitizeError redacts an error message before logging. Driver and provider
// errors echo the failing request and can carry URIs or auth headers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return scrub(err.Error())
}

// SanitizeQuestion truncates and redacts a shop question for logging.
// Questions are free-form text pasted by shop staff and occasionally carry
// credentials or whole connection strings copied from other tools, so the
// full rule set runs on them too. Truncation happens first; a value cut in
// half still matches its key rule.
func SanitizeQuestion(question string) string {
	if question == "" {
		return ""
	}
	if len(question) > MaxQuestionLogLength {
		question = question[:MaxQuestionLogLength] + "..."
	}
	return scrub(question)
}

// TruncateString caps s at maxLen bytes, appending an ellipsis when cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
