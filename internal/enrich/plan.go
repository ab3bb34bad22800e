package enrich

import (
	"fmt"
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/classify"
	"github.com/LuisDee/catalog-enricher/internal/describe"
	"github.com/LuisDee/catalog-enricher/internal/formula"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/LuisDee/catalog-enricher/internal/patch"
)

// Stage is one enrichment step.
type Stage string

// Stages, in the order they run for each table.
const (
	StageClassify Stage = "classify"
	StageFormulas Stage = "formulas"
	StageRelated  Stage = "related"
	StageDescribe Stage = "describe"
)

// AllStages lists every stage in run order.
var AllStages = []Stage{StageClassify, StageFormulas, StageRelated, StageDescribe}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	for _, st := range AllStages {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q (valid: classify, formulas, related, describe)", s)
}

type stageSet map[Stage]bool

func newStageSet(stages []Stage) stageSet {
	if len(stages) == 0 {
		stages = AllStages
	}
	set := make(stageSet, len(stages))
	for _, s := range stages {
		set[s] = true
	}
	return set
}

// Plan is the change-set computed for one table, with the bookkeeping that
// does not depend on patching.
type Plan struct {
	Changes  patch.ChangeSet
	Stats    Stats
	Warnings []error
	Formulas *formula.Index
}

// planner computes the change-set for one table.
type planner struct {
	table    *catalog.Table
	idx      *index.Indexes
	resolver *describe.Resolver
	stages   stageSet
	replace  map[string]bool
	plan     *Plan
}

// TradeType resolves the trade type whose metric definitions apply to a
// table: the document's own trade_type, then the trade type listing the
// table, then the table name.
func TradeType(table *catalog.Table, spec *index.MetricSpec) string {
	if table.TradeType != "" {
		return table.TradeType
	}
	if spec != nil {
		if tt, ok := spec.TradeTypeForTable(table.Name); ok {
			return tt
		}
	}
	return table.Name
}

// BuildPlan computes the changes for table without touching its document.
func BuildPlan(table *catalog.Table, idx *index.Indexes, resolver *describe.Resolver, stages []Stage, replaceFields []string) *Plan {
	if idx == nil {
		idx = index.Empty()
	}
	p := &planner{
		table:    table,
		idx:      idx,
		resolver: resolver,
		stages:   newStageSet(stages),
		replace:  make(map[string]bool, len(replaceFields)),
		plan:     &Plan{Changes: patch.ChangeSet{}, Stats: Stats{}},
	}
	for _, f := range replaceFields {
		p.replace[f] = true
	}

	p.plan.Formulas = formula.BuildIndex(idx.Metrics, TradeType(table, idx.Metrics), table.Name, nil)

	columns := table.ColumnSet()
	for i := range table.Columns {
		col := &table.Columns[i]
		_, indexed := p.plan.Formulas.Lookup(col.Name)
		category := effectiveCategory(col, indexed)

		if p.stages[StageClassify] {
			p.classify(col, category)
		}
		effFormula := col.Formula
		if p.stages[StageFormulas] {
			effFormula = p.formula(col, category, effFormula)
		}
		if p.stages[StageRelated] {
			p.related(col, effFormula, columns)
		}
		if p.stages[StageDescribe] {
			p.describe(col, effFormula != "", columns)
		}
	}
	return p.plan
}

// effectiveCategory is the authored category when valid, else the computed
// one. A column with an indexed formula classifies as if it carried it.
func effectiveCategory(col *catalog.Column, indexed bool) catalog.Category {
	if c, ok := catalog.ParseCategory(col.Category); ok {
		return c
	}
	return classify.Classify(col.Name, col.DataType(), col.HasFormula() || indexed)
}

func (p *planner) policy(field string) patch.Policy {
	if p.replace[field] {
		return patch.PolicyReplace
	}
	return patch.PolicyFill
}

// propose records a computed value unless the column already carries it,
// or carries any value under the fill policy.
func (p *planner) propose(col *catalog.Column, field string, v catalog.Value) {
	if v.IsEmpty() {
		return
	}
	policy := p.policy(field)
	if current, ok := col.Value(field); ok && (policy == patch.PolicyFill || current.Equal(v)) {
		p.plan.Stats.count(field).Preserved++
		return
	}
	p.plan.Changes.Set(col.Name, field, patch.Change{Value: v, Policy: policy})
}

func (p *planner) unresolved(col *catalog.Column, field string) {
	if col.Has(field) {
		p.plan.Stats.count(field).Preserved++
		return
	}
	p.plan.Stats.count(field).Unresolved++
}

func (p *planner) classify(col *catalog.Column, category catalog.Category) {
	p.propose(col, catalog.FieldCategory, catalog.Text(string(category)))
	if category == catalog.CategoryMeasure {
		p.propose(col, catalog.FieldAggregation, catalog.Text(string(classify.AssignAggregation(col.Name))))
		return
	}
	p.propose(col, catalog.FieldFilterable, catalog.Bool(classify.AssignFilterable(col.Name, col.DataType(), category)))
}

// formula proposes the indexed formula and returns the formula the column
// will carry after patching.
func (p *planner) formula(col *catalog.Column, category catalog.Category, authored string) string {
	entry, ok := p.plan.Formulas.Lookup(col.Name)
	if !ok {
		if category == catalog.CategoryMeasure {
			p.unresolved(col, catalog.FieldFormula)
		}
		return authored
	}
	p.propose(col, catalog.FieldFormula, catalog.Text(entry.Formula))
	if p.policy(catalog.FieldFormula) == patch.PolicyReplace || !col.HasFormula() {
		return entry.Formula
	}
	return authored
}

func (p *planner) related(col *catalog.Column, effFormula string, columns map[string]bool) {
	if strings.TrimSpace(effFormula) == "" {
		return
	}
	related, truncated := formula.RelatedColumns(col.Name, effFormula, columns)
	if len(truncated) > 0 {
		p.plan.Warnings = append(p.plan.Warnings, &catalog.SchemaConstraintViolation{
			Table:   p.table.Name,
			Column:  col.Name,
			Field:   catalog.FieldRelated,
			Dropped: truncated,
			Reason:  fmt.Sprintf("exceeds %d entries", catalog.MaxRelatedColumns),
		})
	}
	if len(related) == 0 {
		return
	}
	p.propose(col, catalog.FieldRelated, catalog.List(related))
}

func (p *planner) describe(col *catalog.Column, hasFormula bool, columns map[string]bool) {
	if p.resolver == nil {
		return
	}
	res := p.resolver.Resolve(p.table, col)

	if res.Description != "" {
		p.propose(col, catalog.FieldDescription, catalog.Text(res.Description))
	} else {
		p.unresolved(col, catalog.FieldDescription)
		if res.Warning != nil && !col.Has(catalog.FieldDescription) {
			p.plan.Warnings = append(p.plan.Warnings, res.Warning)
		}
	}

	if res.Source != "" {
		p.propose(col, catalog.FieldSource, catalog.Text(res.Source))
	} else {
		p.unresolved(col, catalog.FieldSource)
	}

	if len(res.Synonyms) > 0 {
		p.propose(col, catalog.FieldSynonyms, catalog.List(res.Synonyms))
	}
	if res.BusinessRules != "" {
		p.propose(col, catalog.FieldBusinessRules, catalog.Text(res.BusinessRules))
	}

	// Formula-derived related columns take precedence over copied ones.
	if (hasFormula && p.stages[StageRelated]) || len(res.RelatedColumns) == 0 {
		return
	}
	kept, dropped := formula.SanitizeRelated(col.Name, res.RelatedColumns, columns)
	if len(dropped) > 0 {
		p.plan.Warnings = append(p.plan.Warnings, &catalog.SchemaConstraintViolation{
			Table:   p.table.Name,
			Column:  col.Name,
			Field:   catalog.FieldRelated,
			Dropped: dropped,
			Reason:  "invalid or over-limit references",
		})
	}
	if len(kept) > 0 && !col.Has(catalog.FieldRelated) {
		p.plan.Changes.Set(col.Name, catalog.FieldRelated, patch.Change{Value: catalog.List(kept), Policy: patch.PolicyFill})
	} else if len(kept) > 0 {
		p.plan.Stats.count(catalog.FieldRelated).Preserved++
	}
}
