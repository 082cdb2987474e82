package store

import "database/sql"

// Store provides access to all storage repositories.
type Store struct {
	db         *sql.DB
	machines   *MachineStore
	operations *OperationStore
}

func NewStore(db *sql.DB) *Store {
	qi := newQueryInterceptor(db)
	return &Store{
		db:         db,
		machines:   NewMachineStore(qi),
		operations: NewOperationStore(qi),
	}
}

func (s *Store) Machines() *MachineStore {
	return s.machines
}

func (s *Store) Operations() *OperationStore {
	return s.operations
}

func (s *Store) Close() error {
	return s.db.Close()
}
