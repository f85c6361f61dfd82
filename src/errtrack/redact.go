package errtrack

import (
	"os/user"
	"regexp"
	"strings"
	"sync"
)

const (
	IPPlaceholder       = "[IP hidden]"
	UsernamePlaceholder = "[username hidden]"
)

var (
	ipv4Pattern = regexp.MustCompile(`\b(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})\b`)

	// Compressed forms with a group after "::" come before the trailing "::"
	// form so the whole address is matched.
	ipv6Pattern = regexp.MustCompile(`(?i)` +
		`\b([0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b|` +
		`\b([0-9a-f]{1,4}:){1,6}:[0-9a-f]{1,4}\b|` +
		`\b([0-9a-f]{1,4}:){1,5}(:[0-9a-f]{1,4}){1,2}\b|` +
		`\b([0-9a-f]{1,4}:){1,4}(:[0-9a-f]{1,4}){1,3}\b|` +
		`\b([0-9a-f]{1,4}:){1,3}(:[0-9a-f]{1,4}){1,4}\b|` +
		`\b([0-9a-f]{1,4}:){1,2}(:[0-9a-f]{1,4}){1,5}\b|` +
		`\b[0-9a-f]{1,4}:(:[0-9a-f]{1,4}){1,6}\b|` +
		`\b([0-9a-f]{1,4}:){1,7}:\b|` +
		`\b:(:[0-9a-f]{1,4}){1,7}\b|` +
		`\b::([0-9a-f]{1,4}:){0,5}[0-9a-f]{1,4}\b|` +
		`\b::\b`)

	// The user segment may not start with '[' so placeholders are left alone.
	homePathPattern = regexp.MustCompile(
		`(/home/)[^\s/\[][^\s\[]*` +
			`|(/Users/)[^\s/\[][^\s\[]*` +
			`|((?i:[A-Z]:\\Users\\))[^\s\\\[][^\s\[]*`)

	placeholders = []string{IPPlaceholder, UsernamePlaceholder}
)

var currentUsername = sync.OnceValue(func() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
})

// Anonymize hides IP addresses, user home directories and the name of the
// account running the process.
func Anonymize(text string) string {
	return anonymize(text, currentUsername())
}

func anonymize(text, username string) string {
	text = ipv4Pattern.ReplaceAllString(text, IPPlaceholder)
	text = ipv6Pattern.ReplaceAllString(text, IPPlaceholder)
	text = homePathPattern.ReplaceAllString(text, "${1}${2}${3}"+UsernamePlaceholder)
	if username != "" {
		text = replaceOutsidePlaceholders(text, username, UsernamePlaceholder)
	}
	return text
}

// replaceOutsidePlaceholders replaces old with repl everywhere except inside
// placeholder tokens already present in text.
func replaceOutsidePlaceholders(text, old, repl string) string {
	if !strings.Contains(text, old) {
		return text
	}
	var b strings.Builder
	for len(text) > 0 {
		at, token := nextPlaceholder(text)
		if at < 0 {
			b.WriteString(strings.ReplaceAll(text, old, repl))
			break
		}
		b.WriteString(strings.ReplaceAll(text[:at], old, repl))
		b.WriteString(token)
		text = text[at+len(token):]
	}
	return b.String()
}

func nextPlaceholder(text string) (int, string) {
	at, token := -1, ""
	for _, p := range placeholders {
		if i := strings.Index(text, p); i >= 0 && (at < 0 || i < at) {
			at, token = i, p
		}
	}
	return at, token
}
