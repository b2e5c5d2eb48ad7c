// Package query renders parameterized PostgreSQL statements from ordered,
// sparse clause lists. Absent clauses are skipped, present ones become
// "$n" placeholders numbered from 1 in input order. Values never reach the
// SQL text.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrEmptyUpdate is returned by Update when no assignment is present.
var ErrEmptyUpdate = errors.New("query: no fields to update")

// Op is the predicate or assignment kind of a clause.
type Op int

const (
	Equals Op = iota
	GreaterOrEqual
	LessOrEqual
	GreaterThan
	LessThan
	Assign
)

func (o Op) operator() string {
	switch o {
	case Equals, Assign:
		return "="
	case GreaterOrEqual:
		return ">="
	case LessOrEqual:
		return "<="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	default:
		return ""
	}
}

// Clause is one column/value pair. The zero Clause is absent.
type Clause struct {
	Column  string
	Op      Op
	Value   any
	present bool
}

// Present reports whether the clause contributes to the rendered statement.
func (c Clause) Present() bool { return c.present }

// Filter returns a present predicate clause.
func Filter(column string, op Op, value any) Clause {
	return Clause{Column: column, Op: op, Value: value, present: true}
}

// Set returns a present assignment clause.
func Set(column string, value any) Clause {
	return Clause{Column: column, Op: Assign, Value: value, present: true}
}

// Absent returns a clause that renders nothing.
func Absent(column string, op Op) Clause {
	return Clause{Column: column, Op: op}
}

// Opt returns a clause that is present only when v is non-nil, carrying *v.
func Opt[T any](column string, op Op, v *T) Clause {
	if v == nil {
		return Absent(column, op)
	}
	return Filter(column, op, *v)
}

// Page bounds a list query. A nil *Page means no LIMIT/OFFSET.
type Page struct {
	Limit  int
	Offset int
}

// Statement is rendered SQL plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("query: invalid identifier %q", name)
	}
	return nil
}

// where renders present filters joined with AND, numbering placeholders
// from next. It returns the clause text (without the WHERE keyword), the
// arguments and the next free placeholder index.
func where(filters []Clause, next int) (string, []any, int, error) {
	var parts []string
	var args []any
	for _, c := range filters {
		if !c.present {
			continue
		}
		if c.Op == Assign {
			return "", nil, next, fmt.Errorf("query: assignment clause %q used as filter", c.Column)
		}
		if err := checkIdent(c.Column); err != nil {
			return "", nil, next, err
		}
		parts = append(parts, c.Column+" "+c.Op.operator()+" $"+strconv.Itoa(next))
		args = append(args, c.Value)
		next++
	}
	return strings.Join(parts, " AND "), args, next, nil
}

// Select appends the WHERE clause, the ORDER BY expression and, when page
// is non-nil, LIMIT and OFFSET as the last two placeholders. order is
// trusted SQL chosen by the caller from a fixed set.
func Select(base string, filters []Clause, order string, page *Page) (Statement, error) {
	cond, args, next, err := where(filters, 1)
	if err != nil {
		return Statement{}, err
	}

	var b strings.Builder
	b.WriteString(base)
	if cond != "" {
		b.WriteString(" WHERE ")
		b.WriteString(cond)
	}
	if order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}
	if page != nil {
		fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", next, next+1)
		args = append(args, page.Limit, page.Offset)
	}
	return Statement{SQL: b.String(), Args: args}, nil
}

// Count renders base with the same WHERE clause Select would produce for
// filters, so totals and pages always agree.
func Count(base string, filters []Clause) (Statement, error) {
	return Select(base, filters, "", nil)
}

// Update renders "UPDATE table SET ... WHERE key = $n [RETURNING ...]".
// touch holds literal assignments such as "updated_at = NOW()" that are
// appended after the parameterized ones; they do not count as fields.
func Update(table string, assigns []Clause, touch []string, key Clause, returning string) (Statement, error) {
	if err := checkIdent(table); err != nil {
		return Statement{}, err
	}
	if !key.present {
		return Statement{}, errors.New("query: update without key")
	}
	if err := checkIdent(key.Column); err != nil {
		return Statement{}, err
	}

	var sets []string
	var args []any
	next := 1
	for _, c := range assigns {
		if !c.present {
			continue
		}
		if c.Op != Assign {
			return Statement{}, fmt.Errorf("query: filter clause %q used as assignment", c.Column)
		}
		if err := checkIdent(c.Column); err != nil {
			return Statement{}, err
		}
		sets = append(sets, c.Column+" = $"+strconv.Itoa(next))
		args = append(args, c.Value)
		next++
	}
	if len(sets) == 0 {
		return Statement{}, ErrEmptyUpdate
	}
	sets = append(sets, touch...)

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	fmt.Fprintf(&b, " WHERE %s %s $%d", key.Column, key.Op.operator(), next)
	args = append(args, key.Value)
	if returning != "" {
		b.WriteString(" RETURNING ")
		b.WriteString(returning)
	}
	return Statement{SQL: b.String(), Args: args}, nil
}

// CountPresent returns the number of present clauses.
func CountPresent(clauses []Clause) int {
	n := 0
	for _, c := range clauses {
		if c.present {
			n++
		}
	}
	return n
}
