package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// QueryInterceptor is the subset of *sql.DB the stores use.
type QueryInterceptor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// queryInterceptor logs every statement at debug level.
type queryInterceptor struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func newQueryInterceptor(db *sql.DB) *queryInterceptor {
	return &queryInterceptor{
		db:     db,
		logger: zap.S().Named("store"),
	}
}

func (q *queryInterceptor) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer q.log("query_row", query, args, time.Now(), nil)
	return q.db.QueryRowContext(ctx, query, args...)
}

func (q *queryInterceptor) QueryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, err error) {
	start := time.Now()
	defer func() { q.log("query", query, args, start, err) }()
	return q.db.QueryContext(ctx, query, args...)
}

func (q *queryInterceptor) ExecContext(ctx context.Context, query string, args ...any) (res sql.Result, err error) {
	start := time.Now()
	defer func() { q.log("exec", query, args, start, err) }()
	return q.db.ExecContext(ctx, query, args...)
}

func (q *queryInterceptor) log(kind, query string, args []any, start time.Time, err error) {
	if err != nil {
		q.logger.Debugw(kind, "query", query, "args", args, "duration", time.Since(start), "error", err)
		return
	}
	q.logger.Debugw(kind, "query", query, "args", args, "duration", time.Since(start))
}

var _ QueryInterceptor = (*queryInterceptor)(nil)
