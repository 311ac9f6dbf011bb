package mapping

import (
	"strings"
)

// filter accumulates ANDed predicates and their bind arguments in
// placeholder order.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) eq(column string, value any) {
	f.clauses = append(f.clauses, quote(column)+" = ?")
	f.args = append(f.args, value)
}

func (f *filter) raw(clause string, args ...any) {
	f.clauses = append(f.clauses, "("+clause+")")
	f.args = append(f.args, args...)
}

func (f *filter) String() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}
