// Package text holds small helpers for user input and outgoing Telegram messages.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageLength is Telegram's limit for a single message, in characters.
const MaxMessageLength = 4096

var (
	// controlCharsRegex matches ASCII control characters (including DEL) except tab and newlines.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	// invisibleReplacer drops zero-width and direction marks that clients
	// sometimes paste into commands.
	invisibleReplacer = strings.NewReplacer(
		"\u2060", "",
		"\uFEFF", "",
		"\u00AD", "",
		"\u200E", "",
		"\u200F", "",
		"\u200B", " ",
		"\u200C", " ",
		"\u00A0", " ",
	)
)

// Fields cleans a command argument string and splits it on whitespace.
func Fields(s string) []string {
	s = invisibleReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, "")
	return strings.FieldsFunc(s, unicode.IsSpace)
}

// CommandArgs returns the text after the command word, e.g. "a b" for
// "/cmd@bot a b". It is "" when there are no arguments.
func CommandArgs(msg string) string {
	msg = strings.TrimSpace(msg)
	i := strings.IndexFunc(msg, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(msg[i:])
}

// Split breaks s into chunks of at most limit characters, cutting on line
// boundaries. A single line longer than limit is cut at rune boundaries.
func Split(s string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.Split(s, "\n") {
		lineLen := utf8.RuneCountInString(line)

		for lineLen > limit {
			flush()
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			lineLen -= limit
		}

		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+lineLen > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		curLen += sep + lineLen
	}
	flush()
	return chunks
}
