package database

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder assembles a parameterized WHERE clause. Conditions are
// ANDed and numbered from $1.
type WhereBuilder struct {
	conditions []string
	args       []interface{}
	argIndex   int
}

func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends "column = $n". Empty strings and nil are skipped.
func (wb *WhereBuilder) Add(column string, value interface{}) {
	if value == nil {
		return
	}
	if s, ok := value.(string); ok && s == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddRaw appends a condition that takes no arguments.
func (wb *WhereBuilder) AddRaw(condition string) {
	if condition == "" {
		return
	}
	wb.conditions = append(wb.conditions, condition)
}

// AddTimestampRange bounds column inclusively. A zero bound is left open.
func (wb *WhereBuilder) AddTimestampRange(column string, start, end time.Time) {
	if !start.IsZero() {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= $%d", column, wb.argIndex))
		wb.args = append(wb.args, start)
		wb.argIndex++
	}
	if !end.IsZero() {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s <= $%d", column, wb.argIndex))
		wb.args = append(wb.args, end)
		wb.argIndex++
	}
}

// AddSearch matches query case-insensitively against any of columns. All
// columns share one placeholder.
func (wb *WhereBuilder) AddSearch(query string, columns ...string) {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return
	}

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", quoteIdentifier(col), wb.argIndex)
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	wb.args = append(wb.args, "%"+escapeLike(query)+"%")
	wb.argIndex++
}

// Build returns " WHERE ..." and its arguments, or "" and nil.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex is the placeholder number for arguments appended after Build,
// such as LIMIT and OFFSET.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
