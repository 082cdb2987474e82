package models

import "time"

// OperationKind is the orchestrator request an operation records.
type OperationKind string

const (
	OperationKindStart OperationKind = "start"
	OperationKindStop  OperationKind = "stop"
	OperationKindDump  OperationKind = "dump"
)

func (k OperationKind) Value() string {
	return string(k)
}

// OperationState represents the current state of an operation.
type OperationState string

const (
	// OperationStatePending - accepted, waiting for a worker
	OperationStatePending OperationState = "pending"
	// OperationStateRunning - the operation is talking to the host
	OperationStateRunning OperationState = "running"
	// OperationStateCompleted - the operation finished
	OperationStateCompleted OperationState = "completed"
	// OperationStateError - the operation failed
	OperationStateError OperationState = "error"
)

func (s OperationState) Value() string {
	return string(s)
}

// Finished reports whether the state is terminal.
func (s OperationState) Finished() bool {
	return s == OperationStateCompleted || s == OperationStateError
}

// Operation is one journaled orchestrator request.
type Operation struct {
	ID        string
	Label     string
	Kind      OperationKind
	State     OperationState
	Error     error
	Path      string
	Bytes     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
