package formula

import (
	"sort"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// ExtractReferences returns the identifiers a formula mentions, in order of
// first appearance. String literals, reserved words, numbers and
// placeholders are excluded. Malformed text yields whatever was read before
// the fault, so this never fails.
func ExtractReferences(formula string) []string {
	tokens, _ := NewLexer(formula).Tokenize()

	seen := make(map[string]bool)
	var refs []string
	for _, tok := range tokens {
		if tok.Type != TokenIdent || IsReserved(tok.Value) || seen[tok.Value] {
			continue
		}
		seen[tok.Value] = true
		refs = append(refs, tok.Value)
	}
	return refs
}

// RelatedColumns returns the sibling columns a formula references: the
// references that name a table column, minus the column itself, sorted and
// capped at catalog.MaxRelatedColumns. Entries cut by the cap are returned
// as truncated.
func RelatedColumns(column, formula string, tableColumns map[string]bool) (related, truncated []string) {
	for _, ref := range ExtractReferences(formula) {
		if ref != column && tableColumns[ref] {
			related = append(related, ref)
		}
	}
	sort.Strings(related)
	if len(related) > catalog.MaxRelatedColumns {
		truncated = append(truncated, related[catalog.MaxRelatedColumns:]...)
		related = related[:catalog.MaxRelatedColumns]
	}
	return related, truncated
}

// SanitizeRelated enforces the related_columns constraints on an authored
// or copied list: entries must be distinct sibling columns and at most
// catalog.MaxRelatedColumns are kept. Order is preserved.
func SanitizeRelated(column string, items []string, tableColumns map[string]bool) (kept, dropped []string) {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		switch {
		case it == column, !tableColumns[it], seen[it]:
			dropped = append(dropped, it)
		case len(kept) >= catalog.MaxRelatedColumns:
			dropped = append(dropped, it)
		default:
			kept = append(kept, it)
		}
		seen[it] = true
	}
	return kept, dropped
}
