package classify

import (
	"strings"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
)

// Classify returns the category of a column. Rules are tried in priority
// order and the first match wins; the function is total.
func Classify(name string, dataType catalog.DataType, hasFormula bool) catalog.Category {
	n := normalizeName(name)

	switch {
	case isTime(n, dataType):
		return catalog.CategoryTime
	case isIdentifier(n):
		return catalog.CategoryIdentifier
	case isDimension(n, dataType):
		return catalog.CategoryDimension
	case hasFormula || dataType.IsNumeric():
		return catalog.CategoryMeasure
	}
	return catalog.CategoryDimension
}

// ClassifyColumn classifies a parsed column.
func ClassifyColumn(col *catalog.Column) catalog.Category {
	return Classify(col.Name, col.DataType(), col.HasFormula())
}

func isTime(n string, t catalog.DataType) bool {
	if t.IsTemporal() || partitionNames[n] {
		return true
	}
	return hasAnySuffix(n, timeSuffixes) && !t.IsText()
}

func isIdentifier(n string) bool {
	return hasAnySuffix(n, identifierSuffixes) || infraCounters[n]
}

func isDimension(n string, t catalog.DataType) bool {
	switch {
	case t.IsBool():
		return true
	case categoricalNames[n]:
		return true
	case hasAnySuffix(n, categoricalSuffixes):
		return true
	}
	return t.IsText()
}

// AssignAggregation returns the default aggregation for a measure.
func AssignAggregation(name string) catalog.Aggregation {
	n := normalizeName(name)

	if isPerUnit(n) {
		return catalog.AggregationAvg
	}
	if averageOverrides[n] {
		return catalog.AggregationAvg
	}
	for _, tok := range strings.Split(n, "_") {
		if additiveTokens[tok] {
			return catalog.AggregationSum
		}
	}
	return catalog.AggregationAvg
}

func isPerUnit(n string) bool {
	return containsAny(n, perUnitInfixes) ||
		hasAnyPrefix(n, perUnitPrefixes) ||
		hasAnySuffix(n, perUnitSuffixes)
}

// AssignFilterable returns whether a column is a sensible WHERE-clause
// target. Measures are never filterable.
func AssignFilterable(name string, dataType catalog.DataType, category catalog.Category) bool {
	n := normalizeName(name)

	switch category {
	case catalog.CategoryMeasure:
		return false
	case catalog.CategoryTime:
		return partitionNames[n]
	case catalog.CategoryIdentifier:
		return true
	case catalog.CategoryDimension:
		return categoricalNames[n] ||
			hasAnySuffix(n, categoricalSuffixes) ||
			dataType.IsBool() ||
			dataType.IsText()
	}
	return false
}
