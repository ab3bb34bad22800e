package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// RenderField renders key: value as document lines. prefix is the text
// before the key on the first line, indent the column of the key. Lists
// render as block sequences, multi-line text as a literal block, and
// everything else on one line.
func RenderField(prefix string, indent int, key string, v catalog.Value, eol string) []string {
	child := strings.Repeat(" ", indent+2)

	if v.List {
		lines := []string{prefix + key + ":" + eol}
		for _, item := range v.Items {
			lines = append(lines, child+"- "+quoteScalar(item)+eol)
		}
		return lines
	}

	text := strings.TrimRight(v.Text, "\n")
	if key == catalog.FieldFilterable {
		if b, ok := v.AsBool(); ok {
			return []string{prefix + key + ": " + strconv.FormatBool(b) + eol}
		}
	}
	if strings.Contains(text, "\n") && literalSafe(text) {
		lines := []string{prefix + key + ": |-" + eol}
		for _, l := range strings.Split(text, "\n") {
			if l == "" {
				lines = append(lines, eol)
				continue
			}
			lines = append(lines, child+l+eol)
		}
		return lines
	}
	return []string{prefix + key + ": " + quoteScalar(text) + eol}
}

// literalSafe reports whether text can be written as a literal block
// without an indentation indicator.
func literalSafe(text string) bool {
	first, _, _ := strings.Cut(text, "\n")
	if first == "" || first[0] == ' ' || first[0] == '\t' {
		return false
	}
	for _, r := range text {
		if r != '\n' && r != '\t' && r < 0x20 {
			return false
		}
	}
	return true
}

var (
	plainPattern = regexp.MustCompile(`^[A-Za-z0-9_(][^\t\n\r]*$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	reservedText = map[string]bool{
		"true": true, "false": true, "yes": true, "no": true, "on": true, "off": true,
		"y": true, "n": true, "null": true, "~": true,
	}
)

// quoteScalar writes s plain when YAML reads it back as the same string,
// and double-quoted otherwise.
func quoteScalar(s string) string {
	if needsQuotes(s) {
		return doubleQuote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	switch {
	case s == "":
		return true
	case !plainPattern.MatchString(s):
		return true
	case strings.TrimSpace(s) != s:
		return true
	case strings.Contains(s, ": ") || strings.Contains(s, " #") || strings.HasSuffix(s, ":"):
		return true
	case reservedText[strings.ToLower(s)]:
		return true
	case catalog.IsPlaceholder(s):
		return true
	case datePattern.MatchString(s):
		return true
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64); err == nil {
		return true
	}
	if _, err := strconv.ParseInt(s, 0, 64); err == nil {
		return true
	}
	return false
}

func doubleQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
