package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

const (
	machinesTable         = "machines"
	machineColLabel       = `"label"`
	machineColSnapshot    = `"snapshot"`
	machineColDescription = `"description"`
)

// MachineStore holds the registry of analysis machines.
type MachineStore struct {
	db QueryInterceptor
}

func NewMachineStore(db QueryInterceptor) *MachineStore {
	return &MachineStore{db: db}
}

// Get returns the registry entry for label.
func (s *MachineStore) Get(ctx context.Context, label string) (*models.Machine, error) {
	query, args, err := sq.Select(machineColLabel, machineColSnapshot, machineColDescription).
		From(machinesTable).
		Where(sq.Eq{machineColLabel: label}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query for machine %s: %w", label, err)
	}

	var (
		m    models.Machine
		desc sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&m.Label, &m.Snapshot, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewMachineNotFoundError(label)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning machine %s: %w", label, err)
	}
	m.Description = desc.String
	return &m, nil
}

// List returns every registered machine ordered by label.
func (s *MachineStore) List(ctx context.Context) ([]models.Machine, error) {
	query, args, err := sq.Select(machineColLabel, machineColSnapshot, machineColDescription).
		From(machinesTable).
		OrderBy(machineColLabel).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing list query: %w", err)
	}
	defer rows.Close()

	machines := []models.Machine{}
	for rows.Next() {
		var (
			m    models.Machine
			desc sql.NullString
		)
		if err := rows.Scan(&m.Label, &m.Snapshot, &desc); err != nil {
			return nil, fmt.Errorf("scanning machine row: %w", err)
		}
		m.Description = desc.String
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating machine rows: %w", err)
	}
	return machines, nil
}

// Save inserts or updates the given machines.
func (s *MachineStore) Save(ctx context.Context, machines ...models.Machine) error {
	if len(machines) == 0 {
		return nil
	}

	builder := sq.Insert(machinesTable).
		Columns(machineColLabel, machineColSnapshot, machineColDescription)
	for _, m := range machines {
		builder = builder.Values(m.Label, m.Snapshot, nullable(m.Description))
	}

	query, args, err := builder.
		Suffix("ON CONFLICT (" + machineColLabel + ") DO UPDATE SET " +
			machineColSnapshot + " = EXCLUDED." + machineColSnapshot + ", " +
			machineColDescription + " = EXCLUDED." + machineColDescription).
		ToSql()
	if err != nil {
		return fmt.Errorf("building save query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving %d machines: %w", len(machines), err)
	}
	return nil
}

// Replace makes machines the whole registry.
func (s *MachineStore) Replace(ctx context.Context, machines []models.Machine) error {
	builder := sq.Delete(machinesTable)
	if len(machines) > 0 {
		labels := make([]string, 0, len(machines))
		for _, m := range machines {
			labels = append(labels, m.Label)
		}
		builder = builder.Where(sq.NotEq{machineColLabel: labels})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("pruning machines: %w", err)
	}

	return s.Save(ctx, machines...)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
