package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// Policy decides what happens when a field already carries a value.
type Policy int

const (
	// PolicyFill writes only absent or placeholder fields.
	PolicyFill Policy = iota
	// PolicyReplace also overwrites values that differ in normalised form.
	PolicyReplace
)

func (p Policy) String() string {
	if p == PolicyReplace {
		return "replace"
	}
	return "fill"
}

// ParsePolicy parses "fill" or "replace".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fill", "":
		return PolicyFill, nil
	case "replace":
		return PolicyReplace, nil
	}
	return PolicyFill, fmt.Errorf("unknown patch policy %q (valid: fill, replace)", s)
}

// Change is a computed value for one field.
type Change struct {
	Value  catalog.Value
	Policy Policy
}

// ChangeSet maps entity name to field key to change.
type ChangeSet map[string]map[string]Change

// Set records a change, creating the entity map on first use.
func (cs ChangeSet) Set(entity, field string, c Change) {
	m, ok := cs[entity]
	if !ok {
		m = make(map[string]Change)
		cs[entity] = m
	}
	m[field] = c
}

// Len counts field changes across all entities.
func (cs ChangeSet) Len() int {
	n := 0
	for _, m := range cs {
		n += len(m)
	}
	return n
}

// Action is what the patcher did with one change.
type Action string

// Actions.
const (
	ActionAdded     Action = "added"
	ActionUpdated   Action = "updated"
	ActionPreserved Action = "preserved"
)

// Applied reports the outcome for one change.
type Applied struct {
	Entity string
	Field  string
	Action Action
	Old    catalog.Value
	New    catalog.Value
}

// Result is the outcome of Apply.
type Result struct {
	Output  []byte
	Applied []Applied
	Changed bool
}

// Count returns the number of applied entries with the given action.
func (r *Result) Count(a Action) int {
	n := 0
	for _, ap := range r.Applied {
		if ap.Action == a {
			n++
		}
	}
	return n
}

type visitState int

const (
	stateOutside visitState = iota
	stateInEntity
)

// Apply patches src with changes. Fields that already carry a value are
// preserved under PolicyFill and rewritten under PolicyReplace when the
// normalised values differ. Missing fields are appended at the end of the
// entity in canonical field order. When nothing changes the output is the
// input, byte for byte. The patched output must parse back into the same
// columns carrying the new values, or a ValidationFailure is returned.
// file names the document in errors and supplies the default table name.
func Apply(src []byte, file string, changes ChangeSet) (Result, error) {
	orig, err := catalog.ParseDocument(src, file)
	if err != nil {
		return Result{}, err
	}
	if changes.Len() == 0 {
		return Result{Output: src}, nil
	}

	eol := "\n"
	if strings.Contains(string(src), "\r\n") {
		eol = "\r\n"
	}

	var (
		out     strings.Builder
		res     Result
		state   = stateOutside
		col     *catalog.Column
		pending map[string]Change
		indent  int
		opened  = make(map[string]bool, len(changes))
	)
	write := func(lines ...string) {
		for _, l := range lines {
			out.WriteString(l)
		}
	}

	for _, ev := range Scan(src, DefaultEntityKey) {
		switch ev.Kind {
		case EventPassthrough:
			write(ev.Lines...)

		case EventEntityStart:
			state = stateInEntity
			indent = ev.Indent
			pending = nil
			col = nil
			if c, ok := orig.Column(ev.Entity); ok && ev.Entity != "" {
				opened[ev.Entity] = true
				col = c
				pending = make(map[string]Change, len(changes[ev.Entity]))
				for k, v := range changes[ev.Entity] {
					pending[k] = v
				}
			}

		case EventField:
			change, ok := pending[ev.Key]
			if state != stateInEntity || !ok || change.Value.IsEmpty() {
				write(ev.Lines...)
				continue
			}
			delete(pending, ev.Key)

			current, present := col.Value(ev.Key)
			switch {
			case !present:
				write(rewrite(ev, change.Value, eol)...)
				res.Applied = append(res.Applied, Applied{Entity: ev.Entity, Field: ev.Key, Action: ActionAdded, New: change.Value})
			case change.Policy == PolicyReplace && !current.Equal(change.Value):
				write(rewrite(ev, change.Value, eol)...)
				res.Applied = append(res.Applied, Applied{Entity: ev.Entity, Field: ev.Key, Action: ActionUpdated, Old: current, New: change.Value})
			default:
				write(ev.Lines...)
				res.Applied = append(res.Applied, Applied{Entity: ev.Entity, Field: ev.Key, Action: ActionPreserved, Old: current, New: change.Value})
			}

		case EventEntityEnd:
			if len(pending) > 0 {
				if s := out.String(); s != "" && !strings.HasSuffix(s, "\n") {
					out.WriteString(eol)
				}
				pad := strings.Repeat(" ", indent)
				for _, key := range sortedFields(pending) {
					change := pending[key]
					if change.Value.IsEmpty() {
						continue
					}
					write(RenderField(pad, indent, key, change.Value, eol)...)
					res.Applied = append(res.Applied, Applied{Entity: ev.Entity, Field: key, Action: ActionAdded, New: change.Value})
				}
			}
			state = stateOutside
			pending = nil
			col = nil
		}
	}

	if err := unreached(orig, changes, opened); err != nil {
		return Result{}, &catalog.ValidationFailure{Table: orig.Name, Path: file, Err: err}
	}

	res.Changed = res.Count(ActionAdded)+res.Count(ActionUpdated) > 0
	if !res.Changed {
		res.Output = src
		return res, nil
	}
	res.Output = []byte(out.String())

	if err := validate(orig, file, res); err != nil {
		return Result{}, &catalog.ValidationFailure{Table: orig.Name, Path: file, Err: err}
	}
	return res, nil
}

// rewrite renders a replacement for a field event. A field on the last line
// of a file without a trailing newline stays without one.
func rewrite(ev Event, v catalog.Value, eol string) []string {
	lines := RenderField(ev.Prefix, ev.Indent, ev.Key, v, eol)
	if last := ev.Lines[len(ev.Lines)-1]; !strings.HasSuffix(last, "\n") {
		n := len(lines) - 1
		lines[n] = strings.TrimSuffix(lines[n], eol)
	}
	return lines
}

// sortedFields orders keys canonically; unknown keys sort last by name.
func sortedFields(m map[string]Change) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := catalog.FieldRank(keys[i]), catalog.FieldRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// unreached reports columns that carry changes but were never opened as a
// block list item, such as flow-style entries.
func unreached(orig *catalog.Table, changes ChangeSet, opened map[string]bool) error {
	var missed []string
	for name, fields := range changes {
		if len(fields) == 0 || opened[name] {
			continue
		}
		if _, ok := orig.Column(name); ok {
			missed = append(missed, name)
		}
	}
	if len(missed) == 0 {
		return nil
	}
	sort.Strings(missed)
	return fmt.Errorf("cannot patch columns written in flow style or without a name line: %s", strings.Join(missed, ", "))
}

func validate(orig *catalog.Table, file string, res Result) error {
	patched, err := catalog.ParseDocument(res.Output, file)
	if err != nil {
		return err
	}
	if got, want := strings.Join(patched.ColumnNames(), ","), strings.Join(orig.ColumnNames(), ","); got != want {
		return fmt.Errorf("column set changed: got [%s], want [%s]", got, want)
	}

	var errs []error
	for _, ap := range res.Applied {
		if ap.Action == ActionPreserved {
			continue
		}
		col, _ := patched.Column(ap.Entity)
		got, _ := col.Value(ap.Field)
		if !got.Equal(ap.New) {
			errs = append(errs, fmt.Errorf("%s.%s: wrote %q, read back %q", ap.Entity, ap.Field, ap.New.String(), got.String()))
		}
	}
	return errors.Join(errs...)
}
