package filter

import (
	"fmt"
	"strings"
	"unicode"
)

type kind int

const (
	kindEOF kind = iota
	kindField
	kindString
	kindSize
	kindRegex
	kindOp
	kindLParen
	kindRParen
	kindComma
	kindAnd
	kindOr
	kindNot
	kindIn
)

var kindNames = [...]string{
	kindEOF:    "end of input",
	kindField:  "field",
	kindString: "string",
	kindSize:   "size",
	kindRegex:  "regex",
	kindOp:     "operator",
	kindLParen: "'('",
	kindRParen: "')'",
	kindComma:  "','",
	kindAnd:    "and",
	kindOr:     "or",
	kindNot:    "not",
	kindIn:     "in",
}

func (k kind) String() string {
	return kindNames[k]
}

var keywords = map[string]kind{
	"and": kindAnd,
	"or":  kindOr,
	"not": kindNot,
	"in":  kindIn,
}

type token struct {
	kind kind
	// text is the unquoted literal, the operator or the lower-cased field
	text string
	pos  int
}

// SyntaxError reports an invalid expression and the rune offset at which it
// was detected.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid filter at offset %d: %s", e.Pos, e.Msg)
}

type scanner struct {
	src []rune
	pos int
}

func scan(src string) ([]token, error) {
	s := &scanner{src: []rune(src)}

	var tokens []token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == kindEOF {
			return tokens, nil
		}
	}
}

func (s *scanner) next() (token, error) {
	for s.pos < len(s.src) && unicode.IsSpace(s.src[s.pos]) {
		s.pos++
	}

	start := s.pos
	if start >= len(s.src) {
		return token{kind: kindEOF, pos: start}, nil
	}

	r := s.src[start]
	switch {
	case r == '(':
		s.pos++
		return token{kind: kindLParen, text: "(", pos: start}, nil
	case r == ')':
		s.pos++
		return token{kind: kindRParen, text: ")", pos: start}, nil
	case r == ',':
		s.pos++
		return token{kind: kindComma, text: ",", pos: start}, nil
	case r == '\'' || r == '"':
		return s.delimited(r, kindString)
	case r == '/':
		return s.delimited('/', kindRegex)
	case strings.ContainsRune("=!<>~", r):
		return s.operator()
	case unicode.IsDigit(r):
		return s.size(), nil
	case r == '_' || unicode.IsLetter(r):
		return s.word(), nil
	}

	return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
}

// delimited reads a literal closed by delim. A backslash before delim
// escapes it; any other backslash is kept.
func (s *scanner) delimited(delim rune, k kind) (token, error) {
	start := s.pos
	s.pos++

	var b strings.Builder
	for s.pos < len(s.src) {
		r := s.src[s.pos]
		switch {
		case r == '\\' && s.pos+1 < len(s.src) && s.src[s.pos+1] == delim:
			b.WriteRune(delim)
			s.pos += 2
		case r == delim:
			s.pos++
			return token{kind: k, text: b.String(), pos: start}, nil
		default:
			b.WriteRune(r)
			s.pos++
		}
	}

	return token{}, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unterminated %s", k)}
}

func (s *scanner) operator() (token, error) {
	start := s.pos
	r := s.src[s.pos]
	s.pos++

	var next rune
	if s.pos < len(s.src) {
		next = s.src[s.pos]
	}

	op := string(r)
	switch {
	case (r == '<' || r == '>' || r == '!') && next == '=':
		op += "="
	case r == '!' && next == '~':
		op += "~"
	case r == '!':
		return token{}, &SyntaxError{Pos: start, Msg: "expected '=' or '~' after '!'"}
	}
	s.pos = start + len(op)

	return token{kind: kindOp, text: op, pos: start}, nil
}

// size reads a number and the unit letters directly following it.
func (s *scanner) size() token {
	start := s.pos
	for s.pos < len(s.src) && (unicode.IsDigit(s.src[s.pos]) || s.src[s.pos] == '.') {
		s.pos++
	}
	for s.pos < len(s.src) && unicode.IsLetter(s.src[s.pos]) {
		s.pos++
	}
	return token{kind: kindSize, text: string(s.src[start:s.pos]), pos: start}
}

func (s *scanner) word() token {
	start := s.pos
	for s.pos < len(s.src) && (s.src[s.pos] == '_' || unicode.IsLetter(s.src[s.pos]) || unicode.IsDigit(s.src[s.pos])) {
		s.pos++
	}

	text := strings.ToLower(string(s.src[start:s.pos]))
	if k, ok := keywords[text]; ok {
		return token{kind: k, text: text, pos: start}
	}
	return token{kind: kindField, text: text, pos: start}
}
