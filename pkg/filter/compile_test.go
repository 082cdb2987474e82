package filter

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Compile", func() {
	DescribeTable("conditions",
		func(input, sql string, args ...any) {
			cond, err := Compile(input)
			Expect(err).NotTo(HaveOccurred())

			got, gotArgs, err := cond.ToSql()

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(sql))
			if len(args) == 0 {
				Expect(gotArgs).To(BeEmpty())
			} else {
				Expect(gotArgs).To(Equal(args))
			}
		},
		Entry(nil, "label = 'win7'", `o."label" = ?`, "win7"),
		Entry(nil, "state != 'completed'", `o."state" <> ?`, "completed"),
		Entry(nil, "bytes < 1KB", `o."bytes" < ?`, int64(1024)),
		Entry(nil, "bytes <= 1KB", `o."bytes" <= ?`, int64(1024)),
		Entry(nil, "bytes > 1KB", `o."bytes" > ?`, int64(1024)),
		Entry(nil, "bytes >= 1KB", `o."bytes" >= ?`, int64(1024)),
		Entry(nil, "created_at >= '2026-10-19'", `o."created_at" >= ?`, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)),
		Entry(nil, "label ~ /^win/", `regexp_matches(coalesce(o."label", ''), ?)`, "^win"),
		Entry(nil, "error !~ /timed out/", `NOT regexp_matches(coalesce(o."error", ''), ?)`, "timed out"),
		Entry(nil, "kind in ('start', 'stop')", `o."kind" IN (?,?)`, "start", "stop"),
		Entry(nil, "not label = 'win7'", `NOT (o."label" = ?)`, "win7"),
		Entry(nil, "kind = 'dump' and bytes > 1MB", `(o."kind" = ? AND o."bytes" > ?)`, "dump", int64(1<<20)),
		Entry(nil, "kind = 'start' or kind = 'stop'", `(o."kind" = ? OR o."kind" = ?)`, "start", "stop"),
	)

	// Given a value that would break out of a quoted SQL literal
	// When the expression is compiled
	// Then the value travels as an argument and never reaches the SQL text
	It("should bind values instead of inlining them", func() {
		// Arrange
		src := `path = '\'; DROP TABLE operations; --'`

		// Act
		cond, err := Compile(src)
		Expect(err).NotTo(HaveOccurred())
		sql, args, err := cond.ToSql()

		// Assert
		Expect(err).NotTo(HaveOccurred())
		Expect(sql).To(Equal(`o."path" = ?`))
		Expect(args).To(Equal([]any{"'; DROP TABLE operations; --"}))
	})

	It("should return syntax errors", func() {
		_, err := Compile("label =")

		Expect(err).To(BeAssignableToTypeOf(&SyntaxError{}))
	})
})
