package db

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

// identifierPattern admits plain and schema-qualified SQL identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

// InsertStatement is a single-row INSERT whose values are always bound as parameters.
type InsertStatement struct {
	Table   string
	Columns []string
	Values  []any
}

// NewInsert validates the table and column names and pairs columns with values in order.
func NewInsert(table string, columns []string, values []any) (InsertStatement, error) {
	if !identifierPattern.MatchString(table) {
		return InsertStatement{}, fmt.Errorf("insert: invalid table name %q", table)
	}
	if len(columns) == 0 {
		return InsertStatement{}, fmt.Errorf("insert: no columns")
	}
	if len(columns) != len(values) {
		return InsertStatement{}, fmt.Errorf("insert: %d columns but %d values", len(columns), len(values))
	}
	for _, column := range columns {
		if !identifierPattern.MatchString(column) || strings.Contains(column, ".") {
			return InsertStatement{}, fmt.Errorf("insert: invalid column name %q", column)
		}
	}

	args := make([]any, len(values))
	for i, value := range values {
		bound, err := bindValue(value)
		if err != nil {
			return InsertStatement{}, fmt.Errorf("insert: column %s: %w", columns[i], err)
		}
		args[i] = bound
	}
	return InsertStatement{
		Table:   table,
		Columns: append([]string(nil), columns...),
		Values:  args,
	}, nil
}

// SQL returns the statement text with one ? placeholder per column.
func (s InsertStatement) SQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(s.Columns)), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Table, strings.Join(s.Columns, ","), placeholders)
}

// String renders the statement with literal values, for logs only. Text values are
// single-quoted with embedded quotes doubled; numbers are left bare.
func (s InsertStatement) String() string {
	literals := make([]string, len(s.Values))
	for i, value := range s.Values {
		literals[i] = literal(value)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Table, strings.Join(s.Columns, ","), strings.Join(literals, ","))
}

func bindValue(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(data), nil
	default:
		return value, nil
	}
}

func literal(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(v)
	case datatypes.JSON:
		return quote(string(v))
	case json.Number:
		return v.String()
	case float64:
		return floatLiteral(v)
	default:
		return fmt.Sprint(v)
	}
}

// floatLiteral keeps a trailing ".0" on integral values so 42.0 is not logged as 42.
func floatLiteral(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
