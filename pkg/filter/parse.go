package filter

import (
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Compile parses src and returns its condition over the operations journal.
func Compile(src string) (sq.Sqlizer, error) {
	expr, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return expr.Sqlizer(), nil
}

// Parse parses src. Unknown fields and values of the wrong type are
// reported as a *SyntaxError.
func Parse(src string) (Expr, error) {
	tokens, err := scan(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	if p.peek().kind == kindEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}

	expr, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != kindEOF {
		return nil, unexpected(t, "end of input")
	}
	return expr, nil
}

type parser struct {
	tokens []token
	i      int
}

func (p *parser) peek() token {
	return p.tokens[p.i]
}

func (p *parser) advance() token {
	t := p.tokens[p.i]
	if t.kind != kindEOF {
		p.i++
	}
	return t
}

func (p *parser) accept(k kind) bool {
	if p.peek().kind != k {
		return false
	}
	p.advance()
	return true
}

func (p *parser) expr() (Expr, error) {
	terms, err := p.list(kindOr, p.conj)
	if err != nil {
		return nil, err
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return &orExpr{terms: terms}, nil
}

func (p *parser) conj() (Expr, error) {
	terms, err := p.list(kindAnd, p.unary)
	if err != nil {
		return nil, err
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return &andExpr{terms: terms}, nil
}

// list parses one or more operands separated by sep.
func (p *parser) list(sep kind, operand func() (Expr, error)) ([]Expr, error) {
	var terms []Expr
	for {
		e, err := operand()
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
		if !p.accept(sep) {
			return terms, nil
		}
	}
}

func (p *parser) unary() (Expr, error) {
	if p.accept(kindNot) {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &notExpr{operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (Expr, error) {
	t := p.advance()
	switch t.kind {
	case kindLParen:
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if r := p.advance(); r.kind != kindRParen {
			return nil, unexpected(r, "')'")
		}
		return e, nil
	case kindField:
		return p.condition(t)
	}
	return nil, unexpected(t, "field or '('")
}

func (p *parser) condition(name token) (Expr, error) {
	f, ok := fields[name.text]
	if !ok {
		return nil, &SyntaxError{
			Pos: name.pos,
			Msg: fmt.Sprintf("unknown field %q, expected one of %s", name.text, strings.Join(Fields(), ", ")),
		}
	}

	t := p.advance()
	switch t.kind {
	case kindIn:
		return p.in(f)
	case kindOp:
	default:
		return nil, unexpected(t, "operator or in")
	}

	switch t.text {
	case "~", "!~":
		if f.typ != textField {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("%s cannot be matched against a regex", f.name)}
		}
		r := p.advance()
		if r.kind != kindRegex {
			return nil, unexpected(r, "regex")
		}
		if _, err := regexp.Compile(r.text); err != nil {
			return nil, &SyntaxError{Pos: r.pos, Msg: fmt.Sprintf("invalid regex: %v", err)}
		}
		return &matchExpr{field: f, pattern: r.text, negate: t.text == "!~"}, nil
	case "<", "<=", ">", ">=":
		if f.typ == textField {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("%s cannot be compared with %s", f.name, t.text)}
		}
	}

	v, err := p.value(f)
	if err != nil {
		return nil, err
	}
	return &compareExpr{field: f, op: t.text, value: v}, nil
}

func (p *parser) in(f field) (Expr, error) {
	if t := p.advance(); t.kind != kindLParen {
		return nil, unexpected(t, "'('")
	}

	var values []any
	for {
		v, err := p.value(f)
		if err != nil {
			return nil, err
		}
		values = append(values, v)

		t := p.advance()
		switch t.kind {
		case kindComma:
			continue
		case kindRParen:
			return &inExpr{field: f, values: values}, nil
		}
		return nil, unexpected(t, "',' or ')'")
	}
}

func (p *parser) value(f field) (any, error) {
	t := p.advance()
	switch {
	case f.typ == textField && t.kind == kindString:
		return t.text, nil
	case f.typ == sizeField && t.kind == kindSize:
		return parseSize(t)
	case f.typ == timeField && t.kind == kindString:
		return parseTimestamp(t)
	}
	return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected %s value for %s, got %s", f.typ, f.name, t.kind)}
}

func unexpected(t token, want string) *SyntaxError {
	got := t.kind.String()
	if t.kind != kindEOF && t.text != "" {
		got = fmt.Sprintf("%s %q", t.kind, t.text)
	}
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("expected %s, got %s", want, got)}
}
