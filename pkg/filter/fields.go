package filter

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// OperationsAlias is the table alias the journal query must use for the
// operations table.
const OperationsAlias = "o"

type fieldType int

const (
	textField fieldType = iota
	sizeField
	timeField
)

func (t fieldType) String() string {
	switch t {
	case sizeField:
		return "size"
	case timeField:
		return "timestamp"
	default:
		return "string"
	}
}

type field struct {
	name   string
	column string
	typ    fieldType
}

var fields = map[string]field{}

func init() {
	for name, typ := range map[string]fieldType{
		"id":         textField,
		"label":      textField,
		"kind":       textField,
		"state":      textField,
		"error":      textField,
		"path":       textField,
		"bytes":      sizeField,
		"created_at": timeField,
		"updated_at": timeField,
	} {
		fields[name] = field{
			name:   name,
			column: fmt.Sprintf(`%s.%q`, OperationsAlias, name),
			typ:    typ,
		}
	}
}

// Fields returns the sorted list of fields an expression may reference.
func Fields() []string {
	return slices.Sorted(maps.Keys(fields))
}

var sizeUnits = map[string]float64{
	"":   1,
	"b":  1,
	"kb": 1 << 10,
	"mb": 1 << 20,
	"gb": 1 << 30,
	"tb": 1 << 40,
}

func parseSize(tok token) (int64, error) {
	i := strings.IndexFunc(tok.text, func(r rune) bool { return r != '.' && (r < '0' || r > '9') })
	number, unit := tok.text, ""
	if i >= 0 {
		number, unit = tok.text[:i], tok.text[i:]
	}

	mult, ok := sizeUnits[strings.ToLower(unit)]
	if !ok {
		return 0, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unknown size unit %q", unit)}
	}

	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", number)}
	}

	bytes := n * mult
	if bytes > math.MaxInt64 {
		return 0, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("size %s out of range", tok.text)}
	}
	return int64(bytes), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(tok token) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, tok.text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("invalid timestamp %q", tok.text)}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
