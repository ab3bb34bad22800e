package describe

import (
	"log/slog"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/index"
)

// DefaultMinInformativeLength is the description length below which a
// lineage-derived description yields to a longer heuristic one.
const DefaultMinInformativeLength = 40

// Tier identifies which resolution level produced a value.
type Tier int

// Resolution tiers, in fallback order.
const (
	TierNone Tier = iota
	TierReference
	TierLineage
	TierHeuristic
)

func (t Tier) String() string {
	switch t {
	case TierReference:
		return "reference"
	case TierLineage:
		return "lineage"
	case TierHeuristic:
		return "heuristic"
	default:
		return "none"
	}
}

// Options tunes the resolver.
type Options struct {
	MinInformativeLength int
}

// Result holds resolved values for one column. Empty fields had no
// candidate.
type Result struct {
	Description     string
	DescriptionTier Tier
	Source          string
	SourceTier      Tier

	// Copied from the reference catalog only.
	Synonyms       []string
	BusinessRules  string
	RelatedColumns []string

	// Warning is set when no tier produced a description.
	Warning *catalog.AmbiguousResolutionWarning
}

// Resolver resolves descriptions and sources against loaded indexes.
type Resolver struct {
	idx    *index.Indexes
	opts   Options
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(idx *index.Indexes, opts Options, logger *slog.Logger) *Resolver {
	if idx == nil {
		idx = index.Empty()
	}
	if opts.MinInformativeLength <= 0 {
		opts.MinInformativeLength = DefaultMinInformativeLength
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{idx: idx, opts: opts, logger: logger}
}

// Resolve runs the tiers for one column of table.
func (r *Resolver) Resolve(table *catalog.Table, col *catalog.Column) Result {
	var res Result

	if ref, ok := r.idx.Reference.Column(table.Name, col.Name); ok {
		res.Synonyms = ref.Synonyms
		res.BusinessRules = ref.BusinessRules
		res.RelatedColumns = ref.RelatedColumns
		if ref.Description != "" {
			res.Description, res.DescriptionTier = ref.Description, TierReference
		}
		if ref.Source != "" {
			res.Source, res.SourceTier = ref.Source, TierReference
		}
	}

	if res.Description != "" && res.Source != "" {
		return res
	}

	lineageDesc, lineageSource := r.lineage(table.Name, col.Name)
	if res.Source == "" && lineageSource != "" {
		res.Source, res.SourceTier = lineageSource, TierLineage
	}

	if res.Description == "" {
		heuristic, _ := Heuristic(col.Name)
		switch {
		case lineageDesc != "" && len(lineageDesc) < r.opts.MinInformativeLength && len(heuristic) > len(lineageDesc):
			r.logger.Debug("heuristic description preferred over short lineage description",
				"table", table.Name, "column", col.Name, "lineage", lineageDesc)
			res.Description, res.DescriptionTier = heuristic, TierHeuristic
		case lineageDesc != "":
			res.Description, res.DescriptionTier = lineageDesc, TierLineage
		case heuristic != "":
			res.Description, res.DescriptionTier = heuristic, TierHeuristic
		default:
			res.Warning = &catalog.AmbiguousResolutionWarning{
				Table:  table.Name,
				Column: col.Name,
				Field:  catalog.FieldDescription,
			}
		}
	}

	return res
}

// lineage derives a description and source string from the transformation
// record of a column and the comment of its originating field.
func (r *Resolver) lineage(table, column string) (description, source string) {
	rec, ok := r.idx.Transforms.Lookup(table, column)
	if !ok || rec.Source == "" {
		return "", ""
	}

	source = rec.Source
	if rec.Kind != index.KindDirect {
		source += " (" + string(rec.Kind) + ")"
	}

	group := rec.SourceGroup()
	def, ok := r.lookupField(group, rec.SourceField())
	if !ok || strings.TrimSpace(def.Comment) == "" {
		return "", source
	}
	return lineageSentence(def, column), source
}

func (r *Resolver) lookupField(group, field string) (index.FieldDefinition, bool) {
	for _, name := range NameVariants(field) {
		if def, ok := r.idx.Fields.Lookup(group, name); ok {
			return def, true
		}
	}
	return index.FieldDefinition{}, false
}

// lineageSentence turns a field comment into a description sentence with
// provenance and unit qualifiers.
func lineageSentence(def index.FieldDefinition, column string) string {
	var b strings.Builder
	b.WriteString(Sentence(catalog.NormalizeText(def.Comment)))

	if def.Group != "" {
		b.WriteString(" Originates from ")
		b.WriteString(def.Group)
		b.WriteString(".")
	}

	lowerComment := strings.ToLower(def.Comment)
	if isNanos(column, def.Name) && !strings.Contains(lowerComment, "nanosecond") {
		if isTimeLike(column) {
			b.WriteString(" Expressed in nanoseconds since the Unix epoch.")
		} else {
			b.WriteString(" Expressed in nanoseconds.")
		}
	}
	if def.Enum {
		b.WriteString(" Stored as the enum value name.")
	}
	return b.String()
}

func isNanos(column, field string) bool {
	c := strings.ToLower(column)
	if strings.HasSuffix(c, "_ns") || strings.Contains(c, "_ns_") || strings.Contains(c, "nanos") {
		return true
	}
	words := SplitWords(field)
	if len(words) == 0 {
		return false
	}
	last := words[len(words)-1]
	return last == "ns" || last == "nanos" || last == "nanoseconds"
}

func isTimeLike(column string) bool {
	for _, w := range SplitWords(column) {
		switch w {
		case "timestamp", "ts", "time", "at", "epoch":
			return true
		}
	}
	return false
}
