// Package database renders parameterized SELECTs with quoted identifiers for the list
// endpoints.
package database

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op is a comparison in a WHERE predicate.
type Op string

const (
	Eq  Op = "="
	Ne  Op = "<>"
	Gt  Op = ">"
	Gte Op = ">="
	Lt  Op = "<"
	Lte Op = "<="
	// Any matches when the column equals an element of a slice value, rendered as = ANY($n).
	Any Op = "= ANY"
)

type predicate struct {
	column string
	op     Op
	value  any
}

// Query is a single-table SELECT. Predicates are ANDed in the order added.
type Query struct {
	table   string
	columns []string
	where   []predicate
	orderBy string
	desc    bool
	limit   int
	offset  int
}

// From starts a query over table with no limit.
func From(table string) *Query {
	return &Query{table: table, limit: -1}
}

func (q *Query) Columns(cols ...string) *Query {
	q.columns = cols
	return q
}

// Where adds a predicate. A blank column is ignored.
func (q *Query) Where(column string, op Op, value any) *Query {
	if column != "" {
		q.where = append(q.where, predicate{column: column, op: op, value: value})
	}
	return q
}

func (q *Query) OrderBy(column string, desc bool) *Query {
	q.orderBy, q.desc = column, desc
	return q
}

// Page sets LIMIT and OFFSET. Negative values leave them off.
func (q *Query) Page(limit, offset int) *Query {
	q.limit, q.offset = limit, offset
	return q
}

// SQL renders the statement and its positional arguments.
func (q *Query) SQL() (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString("SELECT ")
	if len(q.columns) == 0 {
		b.WriteString("*")
	}
	for i, c := range q.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(c))
	}
	b.WriteString(" FROM " + quote(q.table))

	for i, p := range q.where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(quote(p.column) + " ")
		if p.op == Any {
			b.WriteString("= ANY(" + bind(p.value) + ")")
		} else {
			b.WriteString(string(p.op) + " " + bind(p.value))
		}
	}

	if q.orderBy != "" {
		b.WriteString(" ORDER BY " + quote(q.orderBy))
		if q.desc {
			b.WriteString(" DESC")
		}
	}
	if q.limit >= 0 {
		b.WriteString(" LIMIT " + bind(q.limit))
	}
	if q.offset >= 0 && q.limit >= 0 {
		b.WriteString(" OFFSET " + bind(q.offset))
	}
	return b.String(), args
}

// quote treats dots as schema separators.
func quote(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}
