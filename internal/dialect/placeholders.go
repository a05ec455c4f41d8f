package dialect

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// CountPlaceholders counts the "?" placeholders of sqlText. Question marks
// inside string literals, quoted identifiers and comments are text, and "??"
// is an escaped question mark.
func CountPlaceholders(sqlText string) int {
	_, n := scan(sqlText, func(int) string { return "?" }, "??")
	return n
}

// ReplacePlaceholders rewrites the "?" placeholders of a finished statement
// into format and unescapes "??". It returns the number of placeholders.
// Literals, quoted identifiers and comments are copied unchanged.
func ReplacePlaceholders(sqlText string, format sq.PlaceholderFormat) (string, int, error) {
	var mark func(n int) string
	switch format {
	case sq.Question:
		mark = func(int) string { return "?" }
	case sq.Dollar:
		mark = func(n int) string { return "$" + strconv.Itoa(n) }
	case sq.Colon:
		mark = func(n int) string { return ":" + strconv.Itoa(n) }
	case sq.AtP:
		mark = func(n int) string { return "@p" + strconv.Itoa(n) }
	default:
		return "", 0, fmt.Errorf("unsupported placeholder format %T", format)
	}
	out, n := scan(sqlText, mark, "?")
	return out, n, nil
}

func scan(sqlText string, mark func(n int) string, escaped string) (string, int) {
	var b strings.Builder
	b.Grow(len(sqlText) + 8)
	n := 0
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		var next byte
		if i+1 < len(sqlText) {
			next = sqlText[i+1]
		}

		end := -1
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			// A doubled quote closes and reopens, which copies the same text.
			end = len(sqlText)
			if j := strings.IndexByte(sqlText[i+1:], ch); j >= 0 {
				end = i + 1 + j + 1
			}
		case ch == '-' && next == '-':
			end = len(sqlText)
			if j := strings.IndexByte(sqlText[i:], '\n'); j >= 0 {
				end = i + j
			}
		case ch == '/' && next == '*':
			end = len(sqlText)
			if j := strings.Index(sqlText[i+2:], "*/"); j >= 0 {
				end = i + 2 + j + 2
			}
		case ch == '?' && next == '?':
			b.WriteString(escaped)
			i++
			continue
		case ch == '?':
			n++
			b.WriteString(mark(n))
			continue
		}

		if end < 0 {
			b.WriteByte(ch)
			continue
		}
		b.WriteString(sqlText[i:end])
		i = end - 1
	}
	return b.String(), n
}
