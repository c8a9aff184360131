// Package database builds parameterised Postgres SELECTs for keyset paging. Identifiers are
// quoted with pgx; values only ever travel as bind arguments.
package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Cond is one WHERE predicate. Its text numbers placeholders from $1; Build renumbers them so
// predicates compose in any order. The zero Cond matches everything and is dropped.
type Cond struct {
	text string
	args []any
}

// IsZero reports whether c contributes nothing to the WHERE clause.
func (c Cond) IsZero() bool { return c.text == "" }

// Raw wraps hand-written SQL. A placeholder may appear more than once.
func Raw(text string, args ...any) Cond {
	return Cond{text: text, args: args}
}

func Eq(column string, v any) Cond  { return compare(column, "=", v) }
func Gte(column string, v any) Cond { return compare(column, ">=", v) }
func Lte(column string, v any) Cond { return compare(column, "<=", v) }

func compare(column, op string, v any) Cond {
	return Cond{text: quote(column) + " " + op + " $1", args: []any{v}}
}

// ArrayContains matches rows whose text[] column holds v.
func ArrayContains(column, v string) Cond {
	return Cond{text: quote(column) + " @> ARRAY[$1]::text[]", args: []any{v}}
}

// NotIn excludes the given values. An empty list yields the zero Cond.
func NotIn[T any](column string, values []T) Cond {
	if len(values) == 0 {
		return Cond{}
	}
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		ph[i] = "$" + strconv.Itoa(i+1)
		args[i] = v
	}
	return Cond{text: quote(column) + " NOT IN (" + strings.Join(ph, ", ") + ")", args: args}
}

// RowCompare is the keyset predicate (columns...) op (values...). op is "<" or ">"; anything
// else is treated as ">".
func RowCompare(columns []string, op string, values []any) Cond {
	if op != "<" {
		op = ">"
	}
	cols := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quote(c)
		ph[i] = "$" + strconv.Itoa(i+1)
	}
	return Cond{
		text: "(" + strings.Join(cols, ", ") + ") " + op + " (" + strings.Join(ph, ", ") + ")",
		args: values,
	}
}

type orderTerm struct {
	column string
	desc   bool
}

// SelectBuilder accumulates one SELECT. Methods mutate and return the receiver.
type SelectBuilder struct {
	table   string
	columns []string
	where   []Cond
	order   []orderTerm
	limit   int
	limited bool
}

// Select starts a query on table. No columns selects *.
func Select(table string, columns ...string) *SelectBuilder {
	return &SelectBuilder{table: table, columns: columns}
}

// Where ANDs conds onto the query, skipping zero values.
func (b *SelectBuilder) Where(conds ...Cond) *SelectBuilder {
	for _, c := range conds {
		if !c.IsZero() {
			b.where = append(b.where, c)
		}
	}
	return b
}

// OrderBy appends columns sharing one direction.
func (b *SelectBuilder) OrderBy(desc bool, columns ...string) *SelectBuilder {
	for _, c := range columns {
		b.order = append(b.order, orderTerm{column: c, desc: desc})
	}
	return b
}

// Limit bounds the row count. Negative values are ignored; zero is a valid limit.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	if n >= 0 {
		b.limit, b.limited = n, true
	}
	return b
}

// Build renders the SELECT and its bind arguments.
func (b *SelectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		for i, c := range b.columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quote(c))
		}
	}
	args := b.writeFromWhere(&sb)

	for i, t := range b.order {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(quote(t.column))
		if t.desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	if b.limited {
		args = append(args, b.limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args
}

// BuildCount renders SELECT COUNT(*) over the same WHERE clause, ignoring order and limit.
func (b *SelectBuilder) BuildCount() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*)")
	args := b.writeFromWhere(&sb)
	return sb.String(), args
}

func (b *SelectBuilder) writeFromWhere(sb *strings.Builder) []any {
	sb.WriteString(" FROM ")
	sb.WriteString(pgx.Identifier{b.table}.Sanitize())

	args := []any{}
	for i, c := range b.where {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(renumber(c, len(args)))
		args = append(args, c.args...)
	}
	return args
}

// renumber shifts c's local $n placeholders past the offset arguments already bound.
// Placeholders beyond c's own arguments are left alone.
func renumber(c Cond, offset int) string {
	if offset == 0 {
		return c.text
	}
	return placeholderRe.ReplaceAllStringFunc(c.text, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(c.args) {
			return m
		}
		return "$" + strconv.Itoa(n+offset)
	})
}

// quote sanitises a possibly schema-qualified identifier.
func quote(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}
