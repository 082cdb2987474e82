// Package v1 holds the request and response types of the machinery REST API.
package v1

import "time"

// MachinePowerState is the power state reported by the host.
type MachinePowerState string

const (
	MachinePowerStatePoweredOn  MachinePowerState = "poweredOn"
	MachinePowerStatePoweredOff MachinePowerState = "poweredOff"
	MachinePowerStateSuspended  MachinePowerState = "suspended"
	MachinePowerStateAborted    MachinePowerState = "aborted"
	MachinePowerStateUnknown    MachinePowerState = "unknown"
)

// Machine defines model for Machine.
type Machine struct {
	Label       string            `json:"label"`
	Snapshot    *string           `json:"snapshot,omitempty"`
	Description *string           `json:"description,omitempty"`
	PowerState  MachinePowerState `json:"powerState"`
	// Registered is true when the machine has a registry entry.
	Registered bool `json:"registered"`
}

// MachineList defines model for MachineList.
type MachineList struct {
	Machines []Machine `json:"machines"`
}

// DumpRequest is the body of POST /machines/{label}/dump.
type DumpRequest struct {
	// Path is the absolute destination of the memory image on the agent host.
	Path string `json:"path" binding:"required"`
}

type OperationKind string

const (
	OperationKindStart OperationKind = "start"
	OperationKindStop  OperationKind = "stop"
	OperationKindDump  OperationKind = "dump"
)

type OperationState string

const (
	OperationStatePending   OperationState = "pending"
	OperationStateRunning   OperationState = "running"
	OperationStateCompleted OperationState = "completed"
	OperationStateError     OperationState = "error"
)

// Operation defines model for Operation.
type Operation struct {
	Id        string         `json:"id"`
	Label     string         `json:"label"`
	Kind      OperationKind  `json:"kind"`
	State     OperationState `json:"state"`
	Error     *string        `json:"error,omitempty"`
	Path      *string        `json:"path,omitempty"`
	Bytes     int64          `json:"bytes"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// OperationListResponse defines model for OperationListResponse.
type OperationListResponse struct {
	Page       int         `json:"page"`
	PageCount  int         `json:"pageCount"`
	Total      int         `json:"total"`
	Operations []Operation `json:"operations"`
}

// ListOperationsParams defines parameters for GET /operations and
// GET /operations/export.
type ListOperationsParams struct {
	Page     *int     `form:"page"`
	PageSize *int     `form:"pageSize"`
	Label    []string `form:"label"`
	Kind     []string `form:"kind"`
	State    []string `form:"state"`
	// Since is an RFC 3339 timestamp.
	Since  string `form:"since"`
	Filter string `form:"filter"`
}

// Error defines model for Error.
type Error struct {
	Error string `json:"error"`
}
