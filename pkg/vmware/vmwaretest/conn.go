package vmwaretest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vmware/govmomi/vim25/types"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
)

// Conn is a session on a fake Host.
type Conn struct {
	host     *Host
	id       string
	released bool
}

var _ vmware.Conn = (*Conn)(nil)

func (c *Conn) ID() string { return c.id }

func (c *Conn) Params() vmware.ConnectionParameters { return c.host.Params() }

func (c *Conn) Cookie() string {
	return fmt.Sprintf("vmware_soap_session=%q", c.id)
}

func (c *Conn) HTTPClient() *http.Client {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	return c.host.httpClient
}

func (c *Conn) Release(_ context.Context) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if c.released {
		return
	}
	c.released = true
	c.host.released++
}

// check must be called with the host lock held.
func (c *Conn) check(method, sessionID, handle string) error {
	if c.released || sessionID != c.id {
		return srvErrors.NewStaleHandleError(handle)
	}
	return c.host.errs[method]
}

func (c *Conn) machine(vm *vmware.Machine) (*Entity, error) {
	e, ok := c.host.entities[vm.Reference()]
	if !ok || e.vm == nil {
		return nil, fmt.Errorf("managed object %s has been deleted", vm.Reference().Value)
	}
	return e, nil
}

func objects(entities []*Entity) []vmware.InventoryObject {
	out := make([]vmware.InventoryObject, 0, len(entities))
	for _, e := range entities {
		out = append(out, vmware.InventoryObject{Ref: e.ref, Name: e.name})
	}
	return out
}

func (c *Conn) InventoryRoots(_ context.Context) ([]vmware.InventoryObject, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("InventoryRoots", c.id, "session"); err != nil {
		return nil, err
	}
	return objects(c.host.roots), nil
}

func (c *Conn) InventoryChildren(_ context.Context, obj vmware.InventoryObject) ([]vmware.InventoryObject, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("InventoryChildren", c.id, "session"); err != nil {
		return nil, err
	}

	e, ok := c.host.entities[obj.Ref]
	if !ok {
		return nil, fmt.Errorf("managed object %s has been deleted", obj.Ref.Value)
	}
	c.host.lookups = append(c.host.lookups, e.name)

	if obj.Ref.Type != KindFolder && obj.Ref.Type != KindDatacenter {
		return nil, nil
	}
	return objects(e.children), nil
}

func (c *Conn) PowerState(_ context.Context, vm *vmware.Machine) (vmware.PowerState, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("PowerState", vm.SessionID(), vm.String()); err != nil {
		return "", err
	}
	e, err := c.machine(vm)
	if err != nil {
		return "", err
	}
	return e.vm.power, nil
}

func (c *Conn) Snapshots(_ context.Context, vm *vmware.Machine) ([]vmware.SnapshotNode, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("Snapshots", vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}
	e, err := c.machine(vm)
	if err != nil {
		return nil, err
	}
	if len(e.vm.snapshots) == 0 {
		return nil, nil
	}
	return vmware.NewSnapshotForest(c.id, cloneTrees(e.vm.snapshots)), nil
}

func (c *Conn) FileLayout(_ context.Context, vm *vmware.Machine) (*types.VirtualMachineFileLayoutEx, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("FileLayout", vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}
	e, err := c.machine(vm)
	if err != nil {
		return nil, err
	}
	layout := types.VirtualMachineFileLayoutEx{
		File:     append([]types.VirtualMachineFileLayoutExFileInfo(nil), e.vm.layout.File...),
		Snapshot: append([]types.VirtualMachineFileLayoutExSnapshotLayout(nil), e.vm.layout.Snapshot...),
	}
	return &layout, nil
}

func (c *Conn) UserPrivileges(_ context.Context, vm *vmware.Machine, _ string) ([]string, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("UserPrivileges", vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}
	e, err := c.machine(vm)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), e.vm.privileges...), nil
}

func (c *Conn) CreateSnapshot(_ context.Context, vm *vmware.Machine, name, _ string, _, _ bool) (*vmware.Task, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check(TaskCreateSnapshot, vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}
	e, err := c.machine(vm)
	if err != nil {
		return nil, err
	}

	c.host.calls = append(c.host.calls, fmt.Sprintf("%s %s %s", TaskCreateSnapshot, e.name, name))
	return c.newTask(TaskCreateSnapshot, func() {
		c.host.addSnapshot(e, "", name, e.vm.power)
	}), nil
}

func (c *Conn) snapshotOwner(ref types.ManagedObjectReference) (*Entity, *types.VirtualMachineSnapshotTree) {
	for _, e := range c.host.entities {
		if e.vm == nil {
			continue
		}
		if t := findTreeByRef(e.vm.snapshots, ref); t != nil {
			return e, t
		}
	}
	return nil, nil
}

func (c *Conn) RevertToSnapshot(_ context.Context, snapshot vmware.SnapshotNode) (*vmware.Task, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check(TaskRevertToSnapshot, snapshot.SessionID(), "snapshot "+snapshot.Name); err != nil {
		return nil, err
	}
	e, t := c.snapshotOwner(snapshot.Ref)
	if e == nil {
		return nil, fmt.Errorf("managed object %s has been deleted", snapshot.Ref.Value)
	}

	state := vmware.PowerState(t.State)
	c.host.calls = append(c.host.calls, fmt.Sprintf("%s %s %s", TaskRevertToSnapshot, e.name, snapshot.Name))
	return c.newTask(TaskRevertToSnapshot, func() {
		e.vm.power = state
	}), nil
}

func (c *Conn) RemoveSnapshot(_ context.Context, snapshot vmware.SnapshotNode, _ bool) (*vmware.Task, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check(TaskRemoveSnapshot, snapshot.SessionID(), "snapshot "+snapshot.Name); err != nil {
		return nil, err
	}
	e, _ := c.snapshotOwner(snapshot.Ref)
	if e == nil {
		return nil, fmt.Errorf("managed object %s has been deleted", snapshot.Ref.Value)
	}

	c.host.calls = append(c.host.calls, fmt.Sprintf("%s %s %s", TaskRemoveSnapshot, e.name, snapshot.Name))
	return c.newTask(TaskRemoveSnapshot, func() {
		removeTree(&e.vm.snapshots, snapshot.Ref)
	}), nil
}

func (c *Conn) PowerOff(_ context.Context, vm *vmware.Machine) (*vmware.Task, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check(TaskPowerOff, vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}
	e, err := c.machine(vm)
	if err != nil {
		return nil, err
	}

	c.host.calls = append(c.host.calls, fmt.Sprintf("%s %s", TaskPowerOff, e.name))
	return c.newTask(TaskPowerOff, func() {
		e.vm.power = vmware.PowerStatePoweredOff
	}), nil
}

// newTask must be called with the host lock held.
func (c *Conn) newTask(kind string, apply func()) *vmware.Task {
	ref := c.host.nextRef("Task")
	c.host.tasks[ref] = &fakeTask{kind: kind, script: c.host.scripts[kind], apply: apply}
	return vmware.NewTask(c.id, ref, kind)
}

func (c *Conn) TaskInfo(_ context.Context, task *vmware.Task) (vmware.TaskState, string, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()

	if err := c.check("TaskInfo", task.SessionID(), "task "+task.String()); err != nil {
		return "", "", err
	}

	t, ok := c.host.tasks[task.Reference()]
	if !ok {
		return "", "", fmt.Errorf("managed object %s has been deleted", task.Reference().Value)
	}

	if t.done {
		if t.script.Fail {
			return vmware.TaskStateError, t.script.Message, nil
		}
		return vmware.TaskStateSuccess, "", nil
	}

	if t.script.Hang || t.polls < t.script.RunningPolls {
		t.polls++
		return vmware.TaskStateRunning, "", nil
	}

	t.done = true
	if t.script.Fail {
		return vmware.TaskStateError, t.script.Message, nil
	}
	t.apply()
	return vmware.TaskStateSuccess, "", nil
}

func cloneTrees(list []types.VirtualMachineSnapshotTree) []types.VirtualMachineSnapshotTree {
	out := make([]types.VirtualMachineSnapshotTree, len(list))
	for i, t := range list {
		out[i] = t
		out[i].ChildSnapshotList = cloneTrees(t.ChildSnapshotList)
	}
	return out
}
