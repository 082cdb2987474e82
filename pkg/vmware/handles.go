package vmware

import (
	"fmt"

	"github.com/vmware/govmomi/vim25/types"
)

// PowerState is the host-reported power state of a virtual machine.
type PowerState string

const (
	PowerStatePoweredOn  PowerState = "poweredOn"
	PowerStatePoweredOff PowerState = "poweredOff"
	PowerStateSuspended  PowerState = "suspended"
	PowerStateAborted    PowerState = "aborted"
)

// TaskState is the observable state of a host task.
type TaskState string

const (
	TaskStateRunning TaskState = "running"
	TaskStateSuccess TaskState = "success"
	TaskStateError   TaskState = "error"
)

// Machine is a handle to a virtual machine. It is only valid while the
// session that produced it is open.
type Machine struct {
	ref            types.ManagedObjectReference
	label          string
	datacenterPath string
	session        string
}

// NewMachine creates a machine handle owned by the given session.
func NewMachine(sessionID string, ref types.ManagedObjectReference, label, datacenterPath string) *Machine {
	return &Machine{
		ref:            ref,
		label:          label,
		datacenterPath: datacenterPath,
		session:        sessionID,
	}
}

func (m *Machine) Label() string                           { return m.label }
func (m *Machine) Reference() types.ManagedObjectReference { return m.ref }
func (m *Machine) DatacenterPath() string                  { return m.datacenterPath }
func (m *Machine) SessionID() string                       { return m.session }

func (m *Machine) String() string {
	return fmt.Sprintf("machine %s (%s)", m.label, m.ref.Value)
}

// Task is a handle to an asynchronous host operation.
type Task struct {
	ref     types.ManagedObjectReference
	name    string
	session string
}

func NewTask(sessionID string, ref types.ManagedObjectReference, name string) *Task {
	return &Task{ref: ref, name: name, session: sessionID}
}

func (t *Task) Name() string                            { return t.name }
func (t *Task) Reference() types.ManagedObjectReference { return t.ref }
func (t *Task) SessionID() string                       { return t.session }

func (t *Task) String() string {
	return fmt.Sprintf("%s (%s)", t.name, t.ref.Value)
}

// InventoryObject is a node of the host inventory: a folder, a datacenter,
// a virtual machine or any other managed entity.
type InventoryObject struct {
	Ref  types.ManagedObjectReference
	Name string
}

const (
	inventoryTypeFolder         = "Folder"
	inventoryTypeDatacenter     = "Datacenter"
	inventoryTypeVirtualMachine = "VirtualMachine"
)
