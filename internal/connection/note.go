package connection

import (
	"strings"
	"unicode/utf8"

	"github.com/yourusername/linkedin-mcp/internal/search"
)

// DefaultMaxNoteLength is LinkedIn's character limit for connection notes.
const DefaultMaxNoteLength = 300

// greetingFallback replaces a name that could not be read.
const greetingFallback = "there"

// RenderNote fills {name}, {title} and {location} in template from card.
// Doubled braces are literal braces. When the template names any other
// field or its braces do not balance, the template is used as written.
// The result is cut to maxLen characters when maxLen is positive.
func RenderNote(template string, card search.ProfileCard, maxLen int) string {
	name := card.Name
	if name == "" || name == search.PlaceholderName {
		name = greetingFallback
	}
	fields := map[string]string{
		"name":     name,
		"title":    card.Title,
		"location": card.Location,
	}

	note, ok := format(template, fields)
	if !ok {
		note = template
	}
	return truncate(note, maxLen)
}

// format expands {field} references. It reports false on an unknown field
// or unbalanced braces.
func format(template string, fields map[string]string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end == -1 {
				return "", false
			}
			key := template[i+1 : i+1+end]
			value, known := fields[key]
			if !known {
				return "", false
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", false
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

func truncate(note string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(note) <= maxLen {
		return note
	}
	runes := []rune(note)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
