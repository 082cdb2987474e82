// Package filter implements the query language accepted by the operations
// endpoint, e.g.
//
//	label = 'win7' and kind = 'dump' and bytes > 1GB
//	not state in ('completed', 'error') or error ~ /timed out/
//	created_at >= '2026-10-19T12:00:00Z'
//
// Fields are typed. Text fields accept strings and regular expressions,
// bytes accepts sizes with an optional B, KB, MB, GB or TB suffix (powers
// of 1024) and the timestamps accept RFC 3339 strings or plain dates.
// Compile turns an expression into a squirrel condition over the
// operations table aliased as "o"; values are always bound as arguments.
package filter

// Grammar
//
//	expr      : conj ( "or" conj )* ;
//	conj      : unary ( "and" unary )* ;
//	unary     : "not" unary | primary ;
//	primary   : "(" expr ")" | condition ;
//	condition : FIELD OP value
//	          | FIELD ( "~" | "!~" ) REGEX
//	          | FIELD "in" "(" value ( "," value )* ")" ;
//	value     : STRING | SIZE ;
//
//	FIELD  : [a-zA-Z_][a-zA-Z0-9_]*     case-insensitive
//	OP     : "=" | "!=" | "<" | "<=" | ">" | ">="
//	STRING : '...' | "..."              \ escapes the quote
//	REGEX  : /.../                      \/ escapes the slash
//	SIZE   : [0-9]+(\.[0-9]+)? unit?
