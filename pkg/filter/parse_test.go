package filter

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parser", func() {
	DescribeTable("valid expressions",
		func(input, output string) {
			expr, err := Parse(input)

			Expect(err).NotTo(HaveOccurred())
			Expect(expr.String()).To(Equal(output))
		},
		// comparisons
		Entry(nil, "label = 'win7'", `(label = "win7")`),
		Entry(nil, `LABEL != "win7"`, `(label != "win7")`),
		Entry(nil, "created_at > '2026-01-01'", `(created_at > 2026-01-01T00:00:00Z)`),
		Entry(nil, "updated_at <= '2026-10-19 12:30:00'", `(updated_at <= 2026-10-19T12:30:00Z)`),
		Entry(nil, "created_at >= '2026-10-19T14:30:00+02:00'", `(created_at >= 2026-10-19T12:30:00Z)`),

		// sizes are converted to bytes
		Entry(nil, "bytes >= 100", "(bytes >= 100)"),
		Entry(nil, "bytes > 512KB", "(bytes > 524288)"),
		Entry(nil, "bytes > 64mb", "(bytes > 67108864)"),
		Entry(nil, "bytes >= 1.5GB", "(bytes >= 1610612736)"),
		Entry(nil, "bytes < 1TB", "(bytes < 1099511627776)"),
		Entry(nil, "bytes = 0B", "(bytes = 0)"),

		// regex
		Entry(nil, "label ~ /^win/", "(label ~ /^win/)"),
		Entry(nil, "error !~ /timed out/", "(error !~ /timed out/)"),

		// in
		Entry(nil, "kind in ('start', 'stop')", `(kind in ("start", "stop"))`),
		Entry(nil, "bytes in (1KB)", "(bytes in (1024))"),

		// not
		Entry(nil, "not state = 'completed'", `(not (state = "completed"))`),
		Entry(nil, "not not label = 'win7'", `(not (not (label = "win7")))`),

		// precedence: not, then and, then or
		Entry(nil, "kind = 'dump' and state = 'error'", `((kind = "dump") and (state = "error"))`),
		Entry(nil, "kind = 'start' or kind = 'stop' or kind = 'dump'", `((kind = "start") or (kind = "stop") or (kind = "dump"))`),
		Entry(nil, "kind = 'dump' or state = 'error' and label = 'win7'", `((kind = "dump") or ((state = "error") and (label = "win7")))`),
		Entry(nil, "not kind = 'dump' and label = 'win7'", `((not (kind = "dump")) and (label = "win7"))`),

		// grouping
		Entry(nil, "((label = 'win7'))", `(label = "win7")`),
		Entry(nil, "(kind = 'dump' or kind = 'stop') and state = 'error'", `(((kind = "dump") or (kind = "stop")) and (state = "error"))`),
		Entry(nil, "not (label = 'win7' or label = 'win10')", `(not ((label = "win7") or (label = "win10")))`),

		// whitespace
		Entry(nil, "label='win7'", `(label = "win7")`),
		Entry(nil, "\tlabel   =   'win7'  ", `(label = "win7")`),
	)

	DescribeTable("invalid expressions",
		func(input, message string) {
			_, err := Parse(input)

			var se *SyntaxError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Msg).To(ContainSubstring(message))
		},
		Entry(nil, "", "empty expression"),
		Entry(nil, "   ", "empty expression"),
		Entry(nil, "label 'win7'", "expected operator or in"),
		Entry(nil, "label =", "expected string value for label, got end of input"),
		Entry(nil, "(label = 'win7'", "expected ')'"),
		Entry(nil, "label = 'win7')", "expected end of input"),
		Entry(nil, "= 'win7'", "expected field or '('"),
		Entry(nil, "label = 'win7' and", "expected field or '('"),
		Entry(nil, "vm = 'win7'", `unknown field "vm"`),
		Entry(nil, "label ~ /[/", "invalid regex"),
		Entry(nil, "label > 'win7'", "label cannot be compared with >"),
		Entry(nil, "bytes ~ /1/", "bytes cannot be matched against a regex"),
		Entry(nil, "bytes = '1GB'", "expected size value for bytes, got string"),
		Entry(nil, "label = 7", "expected string value for label, got size"),
		Entry(nil, "bytes > 1PB", `unknown size unit "PB"`),
		Entry(nil, "bytes > 1.2.3", "invalid number"),
		Entry(nil, "created_at > 'yesterday'", `invalid timestamp "yesterday"`),
		Entry(nil, "kind in ()", "expected string value for kind"),
		Entry(nil, "kind in ('start' 'stop')", "expected ',' or ')'"),
		Entry(nil, "kind in 'start'", "expected '('"),
	)

	It("should report where parsing failed", func() {
		_, err := Parse("label = 'win7' and =")

		var se *SyntaxError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Pos).To(Equal(19))
		Expect(se.Error()).To(HavePrefix("invalid filter at offset 19:"))
	})

	It("should list the fields in order", func() {
		Expect(Fields()).To(Equal([]string{"bytes", "created_at", "error", "id", "kind", "label", "path", "state", "updated_at"}))
	})
})
