package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/internal/store"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/filter"
)

const operationsSheet = "Operations"

// OperationQuery selects journal entries. Empty fields do not filter.
type OperationQuery struct {
	// Filter is an expression over the journal fields, see pkg/filter.
	Filter string
	Labels []string
	Kinds  []models.OperationKind
	States []models.OperationState
	Since  time.Time
	Limit  int
	Offset int
}

func (q OperationQuery) toFilter() (*store.OperationQueryFilter, error) {
	f := store.NewOperationQueryFilter().
		ByLabels(q.Labels...).
		ByKinds(q.Kinds...).
		ByStates(q.States...).
		Since(q.Since)

	if q.Filter != "" {
		cond, err := filter.Compile(q.Filter)
		if err != nil {
			return nil, srvErrors.NewInvalidArgumentError("filter", err.Error())
		}
		f = f.ByExpression(cond)
	}

	return f, nil
}

// Operation returns a journal entry by ID.
func (m *MachineryService) Operation(ctx context.Context, id string) (*models.Operation, error) {
	return m.store.Operations().Get(ctx, id)
}

// Operations returns one page of journal entries, newest first, and the
// number of entries matching the query.
func (m *MachineryService) Operations(ctx context.Context, q OperationQuery) ([]models.Operation, int, error) {
	f, err := q.toFilter()
	if err != nil {
		return nil, 0, err
	}

	total, err := m.store.Operations().Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	ops, err := m.store.Operations().List(ctx, f.Limit(q.Limit).Offset(q.Offset))
	if err != nil {
		return nil, 0, err
	}

	return ops, total, nil
}

// ExportOperations writes the journal entries matching q to w as an XLSX
// workbook. Paging fields are ignored.
func (m *MachineryService) ExportOperations(ctx context.Context, w io.Writer, q OperationQuery) error {
	f, err := q.toFilter()
	if err != nil {
		return err
	}

	ops, err := m.store.Operations().List(ctx, f)
	if err != nil {
		return err
	}

	book, err := operationsWorkbook(ops)
	if err != nil {
		return err
	}
	defer func() { _ = book.Close() }()

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write operations workbook: %w", err)
	}
	return nil
}

var operationsHeader = []any{"ID", "Machine", "Kind", "State", "Error", "Path", "Bytes", "Created", "Updated"}

func operationsWorkbook(ops []models.Operation) (*excelize.File, error) {
	book := excelize.NewFile()

	if err := book.SetSheetName("Sheet1", operationsSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	style, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := book.SetSheetRow(operationsSheet, "A1", &operationsHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := book.SetRowStyle(operationsSheet, 1, 1, style); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, op := range ops {
		errMsg := ""
		if op.Error != nil {
			errMsg = op.Error.Error()
		}
		row := []any{
			op.ID,
			op.Label,
			op.Kind.Value(),
			op.State.Value(),
			errMsg,
			op.Path,
			op.Bytes,
			op.CreatedAt.UTC().Format(time.RFC3339),
			op.UpdatedAt.UTC().Format(time.RFC3339),
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := book.SetSheetRow(operationsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write operation %s: %w", op.ID, err)
		}
	}

	if err := book.SetColWidth(operationsSheet, "A", "A", 38); err != nil {
		return nil, err
	}
	if err := book.SetColWidth(operationsSheet, "E", "F", 40); err != nil {
		return nil, err
	}

	return book, nil
}
