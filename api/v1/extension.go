package v1

import (
	"github.com/kubev2v/vsphere-machinery/internal/models"
)

// NewMachineFromModel converts a models.MachineStatus to an API Machine.
func NewMachineFromModel(m models.MachineStatus) Machine {
	machine := Machine{
		Label:      m.Label,
		PowerState: NewMachinePowerState(m.PowerState),
		Registered: m.Registered,
	}

	if m.Registered {
		snapshot := m.Snapshot
		machine.Snapshot = &snapshot
	}
	if m.Description != "" {
		description := m.Description
		machine.Description = &description
	}

	return machine
}

func NewMachinePowerState(state string) MachinePowerState {
	switch MachinePowerState(state) {
	case MachinePowerStatePoweredOn, MachinePowerStatePoweredOff, MachinePowerStateSuspended, MachinePowerStateAborted:
		return MachinePowerState(state)
	default:
		return MachinePowerStateUnknown
	}
}

// NewOperationFromModel converts a models.Operation to an API Operation.
func NewOperationFromModel(op models.Operation) Operation {
	o := Operation{
		Id:        op.ID,
		Label:     op.Label,
		Kind:      OperationKind(op.Kind),
		Bytes:     op.Bytes,
		CreatedAt: op.CreatedAt,
		UpdatedAt: op.UpdatedAt,
	}

	switch op.State {
	case models.OperationStatePending:
		o.State = OperationStatePending
	case models.OperationStateRunning:
		o.State = OperationStateRunning
	case models.OperationStateCompleted:
		o.State = OperationStateCompleted
	default:
		o.State = OperationStateError
	}

	if op.Error != nil {
		e := op.Error.Error()
		o.Error = &e
	}
	if op.Path != "" {
		p := op.Path
		o.Path = &p
	}

	return o
}
