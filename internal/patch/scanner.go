// Package patch applies annotation changes to a hand-maintained table
// document by editing only the lines that must change. Everything else,
// including comments, key order, quoting and blank lines, is preserved
// byte for byte.
package patch

import (
	"regexp"
	"strings"
)

// EventKind identifies a scanner event.
type EventKind int

// Scanner events.
const (
	EventPassthrough EventKind = iota // lines copied verbatim
	EventEntityStart                  // a column entity begins
	EventField                        // one field of the open entity, with continuation lines
	EventEntityEnd                    // the open entity ends
)

func (k EventKind) String() string {
	switch k {
	case EventPassthrough:
		return "passthrough"
	case EventEntityStart:
		return "entity-start"
	case EventField:
		return "field"
	case EventEntityEnd:
		return "entity-end"
	}
	return "unknown"
}

// Event is one unit of a scanned document. Concatenating the Lines of all
// events reproduces the input exactly.
type Event struct {
	Kind   EventKind
	Entity string   // column name, for entity and field events
	Key    string   // field key, for field events
	Prefix string   // text before the key on its line, e.g. "  - " or "    "
	Indent int      // column of the field keys inside the entity
	Lines  []string // raw lines including terminators
}

// DefaultEntityKey is the top-level key whose list items are entities.
const DefaultEntityKey = "columns"

var keyPattern = regexp.MustCompile(`^(?:"([^"]+)"|'([^']+)'|([A-Za-z_][A-Za-z0-9_.\-]*))[ \t]*:(?:[ \t]+(.*))?$`)

// matchKey splits "key: rest" with a plain or quoted key.
func matchKey(s string) (key, rest string, ok bool) {
	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1] + m[2] + m[3], m[4], true
}

type line struct {
	raw     string // with terminator
	text    string // without terminator
	indent  int
	blank   bool
	comment bool
}

func splitLines(src string) []line {
	if src == "" {
		return nil
	}
	parts := strings.SplitAfter(src, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	lines := make([]line, len(parts))
	for i, raw := range parts {
		text := strings.TrimRight(raw, "\r\n")
		trimmed := strings.TrimLeft(text, " ")
		lines[i] = line{
			raw:     raw,
			text:    text,
			indent:  len(text) - len(trimmed),
			blank:   strings.TrimSpace(text) == "",
			comment: strings.HasPrefix(strings.TrimSpace(text), "#"),
		}
	}
	return lines
}

func (l line) isItem() bool {
	t := l.text[l.indent:]
	return t == "-" || strings.HasPrefix(t, "- ")
}

func (l line) skippable() bool {
	return l.blank || l.comment
}

// Scan splits a document into events. Entities are the list items under the
// top-level entityKey; an entity's name comes from its "name" field, found
// by look-ahead. Blank and comment lines trailing an entity are emitted
// after its EntityEnd so insertions land directly after its last field.
func Scan(src []byte, entityKey string) []Event {
	if entityKey == "" {
		entityKey = DefaultEntityKey
	}
	lines := splitLines(string(src))

	var events []Event
	passthrough := func(ls ...line) {
		for _, l := range ls {
			if n := len(events); n > 0 && events[n-1].Kind == EventPassthrough {
				events[n-1].Lines = append(events[n-1].Lines, l.raw)
				continue
			}
			events = append(events, Event{Kind: EventPassthrough, Lines: []string{l.raw}})
		}
	}

	start := -1
	for i, l := range lines {
		if l.indent == 0 && !l.skippable() {
			if key, _, ok := matchKey(l.text); ok && key == entityKey {
				start = i
				break
			}
		}
	}
	if start < 0 {
		passthrough(lines...)
		return events
	}
	passthrough(lines[:start+1]...)

	i := start + 1
	itemIndent := -1
	for i < len(lines) {
		l := lines[i]
		if l.skippable() {
			passthrough(l)
			i++
			continue
		}
		if l.indent == 0 && !l.isItem() {
			break
		}
		if l.isItem() && (itemIndent < 0 || l.indent == itemIndent) {
			itemIndent = l.indent
			var evs []Event
			evs, i = scanEntity(lines, i, itemIndent)
			events = append(events, evs...)
			continue
		}
		passthrough(l)
		i++
	}
	passthrough(lines[i:]...)
	return events
}

// scanEntity emits the events for the list item starting at lines[start]
// and returns the index just past its last content line.
func scanEntity(lines []line, start, itemIndent int) ([]Event, int) {
	last := start
	for j := start + 1; j < len(lines); j++ {
		l := lines[j]
		if l.skippable() {
			continue
		}
		if l.indent <= itemIndent {
			break
		}
		last = j
	}
	end := last + 1

	first := lines[start]
	afterDash := first.text[first.indent+1:]
	fieldIndent := first.indent + 1 + (len(afterDash) - len(strings.TrimLeft(afterDash, " ")))
	if rest := strings.TrimSpace(afterDash); rest == "" || strings.HasPrefix(rest, "#") {
		// A bare "-" line; the fields start on the next line.
		fieldIndent = first.indent + 2
		for j := start + 1; j < end; j++ {
			if !lines[j].skippable() {
				fieldIndent = lines[j].indent
				break
			}
		}
	}

	entity := lookupName(lines[start:end], fieldIndent)
	events := []Event{{Kind: EventEntityStart, Entity: entity, Indent: fieldIndent}}

	for j := start; j < end; {
		l := lines[j]
		content := ""
		if len(l.text) > fieldIndent && (j == start || l.indent == fieldIndent) {
			content = l.text[fieldIndent:]
		}
		key, _, ok := matchKey(content)
		if content == "" || strings.HasPrefix(content, "#") || !ok {
			events = append(events, Event{Kind: EventPassthrough, Entity: entity, Lines: []string{l.raw}})
			j++
			continue
		}

		lastCont := j
		for k := j + 1; k < end; k++ {
			c := lines[k]
			if c.skippable() {
				continue
			}
			if c.indent > fieldIndent || (c.indent == fieldIndent && c.isItem()) {
				lastCont = k
				continue
			}
			break
		}

		ev := Event{
			Kind:   EventField,
			Entity: entity,
			Key:    key,
			Prefix: l.text[:fieldIndent],
			Indent: fieldIndent,
		}
		for k := j; k <= lastCont; k++ {
			ev.Lines = append(ev.Lines, lines[k].raw)
		}
		events = append(events, ev)
		j = lastCont + 1
	}

	events = append(events, Event{Kind: EventEntityEnd, Entity: entity, Indent: fieldIndent})
	return events, end
}

func lookupName(lines []line, fieldIndent int) string {
	for i, l := range lines {
		if len(l.text) <= fieldIndent || (i > 0 && l.indent != fieldIndent) {
			continue
		}
		if key, rest, ok := matchKey(l.text[fieldIndent:]); ok && key == "name" {
			return unquote(inlineValue(rest))
		}
	}
	return ""
}

// inlineValue strips a trailing comment from the text after "key:".
func inlineValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] == '#' {
		return ""
	}
	if raw[0] == '"' || raw[0] == '\'' {
		if end := closingQuote(raw); end > 0 {
			return raw[:end+1]
		}
		return raw
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func closingQuote(s string) int {
	q := s[0]
	for i := 1; i < len(s); i++ {
		switch {
		case q == '"' && s[i] == '\\':
			i++
		case s[i] == q && q == '\'' && i+1 < len(s) && s[i+1] == '\'':
			i++
		case s[i] == q:
			return i
		}
	}
	return -1
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
