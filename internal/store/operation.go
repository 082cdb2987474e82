package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

// Column name constants for the operations table. The table is always
// aliased "o" so conditions produced by pkg/filter apply unchanged.
const (
	operationsTable     = "operations o"
	operationsTableName = "operations"
	opColID             = `o."id"`
	opColLabel          = `o."label"`
	opColKind           = `o."kind"`
	opColState          = `o."state"`
	opColError          = `o."error"`
	opColPath           = `o."path"`
	opColBytes          = `o."bytes"`
	opColCreatedAt      = `o."created_at"`
	opColUpdatedAt      = `o."updated_at"`
)

var operationColumns = []string{
	opColID, opColLabel, opColKind, opColState, opColError,
	opColPath, opColBytes, opColCreatedAt, opColUpdatedAt,
}

// OperationStore is the journal of orchestrator requests.
type OperationStore struct {
	db  QueryInterceptor
	now func() time.Time
}

func NewOperationStore(db QueryInterceptor) *OperationStore {
	return &OperationStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Create journals op. A missing ID is generated and both timestamps are set.
func (s *OperationStore) Create(ctx context.Context, op *models.Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.State == "" {
		op.State = models.OperationStatePending
	}
	op.CreatedAt = s.now()
	op.UpdatedAt = op.CreatedAt

	query, args, err := sq.Insert(operationsTableName).
		Columns(`"id"`, `"label"`, `"kind"`, `"state"`, `"error"`, `"path"`, `"bytes"`, `"created_at"`, `"updated_at"`).
		Values(op.ID, op.Label, op.Kind.Value(), op.State.Value(), errString(op.Error), nullable(op.Path), op.Bytes, op.CreatedAt, op.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert for operation %s: %w", op.ID, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting operation %s: %w", op.ID, err)
	}
	return nil
}

// Update stores the state, error and byte count of op and bumps its
// update time.
func (s *OperationStore) Update(ctx context.Context, op *models.Operation) error {
	op.UpdatedAt = s.now()

	query, args, err := sq.Update(operationsTableName).
		Set(`"state"`, op.State.Value()).
		Set(`"error"`, errString(op.Error)).
		Set(`"bytes"`, op.Bytes).
		Set(`"updated_at"`, op.UpdatedAt).
		Where(sq.Eq{`"id"`: op.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update for operation %s: %w", op.ID, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating operation %s: %w", op.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return srvErrors.NewOperationNotFoundError(op.ID)
	}
	return nil
}

// Get returns the operation with the given ID.
func (s *OperationStore) Get(ctx context.Context, id string) (*models.Operation, error) {
	query, args, err := sq.Select(operationColumns...).
		From(operationsTable).
		Where(sq.Eq{opColID: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query for operation %s: %w", id, err)
	}

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewOperationNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning operation %s: %w", id, err)
	}
	return op, nil
}

// List returns operations matching the filter, newest first unless the
// filter orders them otherwise. A nil filter returns everything.
func (s *OperationStore) List(ctx context.Context, filter *OperationQueryFilter) ([]models.Operation, error) {
	builder := sq.Select(operationColumns...).From(operationsTable)
	if filter != nil {
		builder = filter.Apply(builder)
	}
	builder = builder.OrderBy(opColCreatedAt+" DESC", opColID)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list query: %w", err)
	}
	defer rows.Close()

	ops := []models.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operation rows: %w", err)
	}
	return ops, nil
}

// Count returns the number of operations matching the filter's conditions.
// Limit and offset are ignored.
func (s *OperationStore) Count(ctx context.Context, filter *OperationQueryFilter) (int, error) {
	builder := sq.Select("COUNT(*)").From(operationsTable)
	if filter != nil {
		builder = filter.ApplyConditions(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting operations: %w", err)
	}
	return count, nil
}

// FailUnfinished moves every pending or running operation to error. It is
// called at startup: work from a previous process cannot still be running.
func (s *OperationStore) FailUnfinished(ctx context.Context, reason string) (int64, error) {
	query, args, err := sq.Update(operationsTableName).
		Set(`"state"`, models.OperationStateError.Value()).
		Set(`"error"`, reason).
		Set(`"updated_at"`, s.now()).
		Where(sq.Eq{`"state"`: []string{models.OperationStatePending.Value(), models.OperationStateRunning.Value()}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building recovery query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failing unfinished operations: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (*models.Operation, error) {
	var (
		op          models.Operation
		kind, state string
		errStr      sql.NullString
		path        sql.NullString
	)
	if err := row.Scan(&op.ID, &op.Label, &kind, &state, &errStr, &path, &op.Bytes, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return nil, err
	}
	op.Kind = models.OperationKind(kind)
	op.State = models.OperationState(state)
	op.Path = path.String
	if errStr.Valid {
		op.Error = errors.New(errStr.String)
	}
	return &op, nil
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
