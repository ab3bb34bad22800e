package catalog

import "strings"

// DataType is a declared column type normalised to a closed set.
type DataType string

// Normalised declared types.
const (
	TypeString    DataType = "STRING"
	TypeBytes     DataType = "BYTES"
	TypeInt64     DataType = "INT64"
	TypeFloat64   DataType = "FLOAT64"
	TypeNumeric   DataType = "NUMERIC"
	TypeBool      DataType = "BOOL"
	TypeDate      DataType = "DATE"
	TypeDatetime  DataType = "DATETIME"
	TypeTime      DataType = "TIME"
	TypeTimestamp DataType = "TIMESTAMP"
	TypeUnknown   DataType = "UNKNOWN"
)

var typeAliases = map[string]DataType{
	"STRING":     TypeString,
	"VARCHAR":    TypeString,
	"TEXT":       TypeString,
	"CHAR":       TypeString,
	"BYTES":      TypeBytes,
	"BLOB":       TypeBytes,
	"INT64":      TypeInt64,
	"INT":        TypeInt64,
	"INTEGER":    TypeInt64,
	"BIGINT":     TypeInt64,
	"SMALLINT":   TypeInt64,
	"INT32":      TypeInt64,
	"UINT64":     TypeInt64,
	"FLOAT64":    TypeFloat64,
	"FLOAT":      TypeFloat64,
	"DOUBLE":     TypeFloat64,
	"FLOAT32":    TypeFloat64,
	"NUMERIC":    TypeNumeric,
	"DECIMAL":    TypeNumeric,
	"BIGNUMERIC": TypeNumeric,
	"BOOL":       TypeBool,
	"BOOLEAN":    TypeBool,
	"DATE":       TypeDate,
	"DATETIME":   TypeDatetime,
	"TIME":       TypeTime,
	"TIMESTAMP":  TypeTimestamp,
}

// NormalizeType maps a declared type onto the closed DataType set.
// Parameterised forms such as NUMERIC(18,4) or ARRAY<STRING> keep only
// their base name.
func NormalizeType(raw string) DataType {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexAny(s, "(<"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if t, ok := typeAliases[s]; ok {
		return t
	}
	return TypeUnknown
}

// IsTemporal reports whether the type holds a date or time.
func (t DataType) IsTemporal() bool {
	switch t {
	case TypeDate, TypeDatetime, TypeTime, TypeTimestamp:
		return true
	}
	return false
}

// IsNumeric reports whether the type is an integer or decimal type.
func (t DataType) IsNumeric() bool {
	switch t {
	case TypeInt64, TypeFloat64, TypeNumeric:
		return true
	}
	return false
}

// IsText reports whether the type is generic text.
func (t DataType) IsText() bool {
	return t == TypeString
}

// IsBool reports whether the type is boolean.
func (t DataType) IsBool() bool {
	return t == TypeBool
}
