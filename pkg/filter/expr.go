package filter

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Expr is a parsed filter expression.
type Expr interface {
	// String returns the canonical, fully parenthesised form.
	String() string
	// Sqlizer returns the condition over the operations journal.
	Sqlizer() sq.Sqlizer
}

type orExpr struct {
	terms []Expr
}

func (e *orExpr) String() string {
	return joinExprs(e.terms, " or ")
}

func (e *orExpr) Sqlizer() sq.Sqlizer {
	or := make(sq.Or, 0, len(e.terms))
	for _, t := range e.terms {
		or = append(or, t.Sqlizer())
	}
	return or
}

type andExpr struct {
	terms []Expr
}

func (e *andExpr) String() string {
	return joinExprs(e.terms, " and ")
}

func (e *andExpr) Sqlizer() sq.Sqlizer {
	and := make(sq.And, 0, len(e.terms))
	for _, t := range e.terms {
		and = append(and, t.Sqlizer())
	}
	return and
}

type notExpr struct {
	operand Expr
}

func (e *notExpr) String() string {
	return "(not " + e.operand.String() + ")"
}

func (e *notExpr) Sqlizer() sq.Sqlizer {
	return negation{e.operand.Sqlizer()}
}

type compareExpr struct {
	field field
	op    string
	value any
}

func (e *compareExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.field.name, e.op, formatValue(e.value))
}

func (e *compareExpr) Sqlizer() sq.Sqlizer {
	col := e.field.column
	switch e.op {
	case "!=":
		return sq.NotEq{col: e.value}
	case "<":
		return sq.Lt{col: e.value}
	case "<=":
		return sq.LtOrEq{col: e.value}
	case ">":
		return sq.Gt{col: e.value}
	case ">=":
		return sq.GtOrEq{col: e.value}
	default:
		return sq.Eq{col: e.value}
	}
}

type matchExpr struct {
	field   field
	pattern string
	negate  bool
}

func (e *matchExpr) String() string {
	op := "~"
	if e.negate {
		op = "!~"
	}
	return fmt.Sprintf("(%s %s /%s/)", e.field.name, op, e.pattern)
}

// Sqlizer matches NULL columns as the empty string so that a negated match
// includes them.
func (e *matchExpr) Sqlizer() sq.Sqlizer {
	cond := fmt.Sprintf("regexp_matches(coalesce(%s, ''), ?)", e.field.column)
	if e.negate {
		cond = "NOT " + cond
	}
	return sq.Expr(cond, e.pattern)
}

type inExpr struct {
	field  field
	values []any
}

func (e *inExpr) String() string {
	values := make([]string, 0, len(e.values))
	for _, v := range e.values {
		values = append(values, formatValue(v))
	}
	return fmt.Sprintf("(%s in (%s))", e.field.name, strings.Join(values, ", "))
}

func (e *inExpr) Sqlizer() sq.Sqlizer {
	return sq.Eq{e.field.column: e.values}
}

type negation struct {
	sq.Sqlizer
}

func (n negation) ToSql() (string, []any, error) {
	sql, args, err := n.Sqlizer.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}

func joinExprs(terms []Expr, sep string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, t.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}
