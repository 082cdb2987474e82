package vmware

import (
	"context"
	"net/http"

	"github.com/vmware/govmomi/vim25/types"
)

// Conn is a live, authenticated connection to a vSphere host. Every handle a
// Conn returns is bound to it and must not be used once Release was called.
type Conn interface {
	ID() string
	Params() ConnectionParameters
	// Cookie returns the session cookie header used to authenticate datastore downloads.
	Cookie() string
	HTTPClient() *http.Client
	Release(ctx context.Context)

	InventoryRoots(ctx context.Context) ([]InventoryObject, error)
	// InventoryChildren lists the entities of a folder, or the VM folder of a datacenter.
	InventoryChildren(ctx context.Context, obj InventoryObject) ([]InventoryObject, error)

	PowerState(ctx context.Context, vm *Machine) (PowerState, error)
	Snapshots(ctx context.Context, vm *Machine) ([]SnapshotNode, error)
	FileLayout(ctx context.Context, vm *Machine) (*types.VirtualMachineFileLayoutEx, error)
	UserPrivileges(ctx context.Context, vm *Machine, user string) ([]string, error)

	CreateSnapshot(ctx context.Context, vm *Machine, name, description string, memory, quiesce bool) (*Task, error)
	RevertToSnapshot(ctx context.Context, snapshot SnapshotNode) (*Task, error)
	RemoveSnapshot(ctx context.Context, snapshot SnapshotNode, removeChildren bool) (*Task, error)
	PowerOff(ctx context.Context, vm *Machine) (*Task, error)
	TaskInfo(ctx context.Context, task *Task) (TaskState, string, error)
}

// Connector opens a new Conn.
type Connector func(ctx context.Context) (Conn, error)

// NewConnector returns a Connector opening govmomi sessions with the given parameters.
func NewConnector(params ConnectionParameters) Connector {
	return func(ctx context.Context) (Conn, error) {
		return NewSession(ctx, params)
	}
}

// WithSession opens a connection, runs fn and releases the connection on
// every exit path.
func WithSession(ctx context.Context, connect Connector, fn func(Conn) error) error {
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Release(context.WithoutCancel(ctx))

	return fn(conn)
}
