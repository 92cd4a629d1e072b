package notify

import (
	"strings"
	"time"
)

const stampFormat = "2006-01-02 15:04:05 UTC"

var levelEmoji = map[string]string{
	"INFO":    "ℹ️",
	"WARNING": "⚠️",
	"ERROR":   "❌",
	"SUCCESS": "✅",
	"DEBUG":   "🔍",
}

// FormatMessage renders a titled Markdown notification with a level
// marker and timestamp, the shape used by the API and webhook intake.
func FormatMessage(title, body, level string, now time.Time) string {
	emoji, ok := levelEmoji[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		emoji = levelEmoji["INFO"]
	}

	var b strings.Builder
	b.WriteString(emoji)
	b.WriteString(" *")
	b.WriteString(EscapeMarkdown(title))
	b.WriteString("*\n\n")
	b.WriteString(body)
	b.WriteString("\n\n🕒 ")
	b.WriteString(now.UTC().Format(stampFormat))
	return b.String()
}

// EscapeMarkdown escapes the characters Telegram's legacy Markdown mode
// trips over in user-supplied titles.
func EscapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(s)
}
