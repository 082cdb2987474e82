package vmware

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

func (s *Session) collector() *property.Collector {
	return property.DefaultCollector(s.client.Client)
}

// InventoryRoots lists the children of the root folder.
func (s *Session) InventoryRoots(ctx context.Context) ([]InventoryObject, error) {
	if err := s.owns(s.id, "session "+s.id); err != nil {
		return nil, err
	}
	return s.folderChildren(ctx, s.client.ServiceContent.RootFolder)
}

// InventoryChildren lists the children of a folder. For a datacenter it lists
// the children of its VM folder. Any other entity has no children.
func (s *Session) InventoryChildren(ctx context.Context, obj InventoryObject) ([]InventoryObject, error) {
	if err := s.owns(s.id, "session "+s.id); err != nil {
		return nil, err
	}

	switch obj.Ref.Type {
	case inventoryTypeFolder:
		return s.folderChildren(ctx, obj.Ref)
	case inventoryTypeDatacenter:
		var dc mo.Datacenter
		if err := s.collector().RetrieveOne(ctx, obj.Ref, []string{"vmFolder"}, &dc); err != nil {
			return nil, fmt.Errorf("failed to retrieve VM folder of datacenter %s: %w", obj.Name, err)
		}
		return s.folderChildren(ctx, dc.VmFolder)
	default:
		return nil, nil
	}
}

// folderChildren returns the folder entities in the order the host reports them.
func (s *Session) folderChildren(ctx context.Context, ref types.ManagedObjectReference) ([]InventoryObject, error) {
	pc := s.collector()

	var folder mo.Folder
	if err := pc.RetrieveOne(ctx, ref, []string{"childEntity"}, &folder); err != nil {
		return nil, fmt.Errorf("failed to retrieve children of %s: %w", ref.Value, err)
	}

	if len(folder.ChildEntity) == 0 {
		return nil, nil
	}

	var content []types.ObjectContent
	if err := pc.Retrieve(ctx, folder.ChildEntity, []string{"name"}, &content); err != nil {
		return nil, fmt.Errorf("failed to retrieve entity names under %s: %w", ref.Value, err)
	}

	names := make(map[types.ManagedObjectReference]string, len(content))
	for _, c := range content {
		for _, p := range c.PropSet {
			if name, ok := p.Val.(string); ok && p.Name == "name" {
				names[c.Obj] = name
			}
		}
	}

	children := make([]InventoryObject, 0, len(folder.ChildEntity))
	for _, child := range folder.ChildEntity {
		children = append(children, InventoryObject{Ref: child, Name: names[child]})
	}

	return children, nil
}

func (s *Session) retrieveVM(ctx context.Context, vm *Machine, props ...string) (*mo.VirtualMachine, error) {
	if err := s.owns(vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}

	var mvm mo.VirtualMachine
	if err := s.collector().RetrieveOne(ctx, vm.Reference(), props, &mvm); err != nil {
		return nil, fmt.Errorf("failed to retrieve %v of %s: %w", props, vm, err)
	}
	return &mvm, nil
}

func (s *Session) PowerState(ctx context.Context, vm *Machine) (PowerState, error) {
	mvm, err := s.retrieveVM(ctx, vm, "runtime.powerState")
	if err != nil {
		return "", err
	}
	return PowerState(mvm.Runtime.PowerState), nil
}

func (s *Session) Snapshots(ctx context.Context, vm *Machine) ([]SnapshotNode, error) {
	mvm, err := s.retrieveVM(ctx, vm, "snapshot")
	if err != nil {
		return nil, err
	}
	if mvm.Snapshot == nil {
		return nil, nil
	}
	return NewSnapshotForest(s.id, mvm.Snapshot.RootSnapshotList), nil
}

func (s *Session) FileLayout(ctx context.Context, vm *Machine) (*types.VirtualMachineFileLayoutEx, error) {
	mvm, err := s.retrieveVM(ctx, vm, "layoutEx")
	if err != nil {
		return nil, err
	}
	return mvm.LayoutEx, nil
}

func (s *Session) CreateSnapshot(ctx context.Context, vm *Machine, name, description string, memory, quiesce bool) (*Task, error) {
	if err := s.owns(vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}

	task, err := object.NewVirtualMachine(s.client.Client, vm.Reference()).CreateSnapshot(ctx, name, description, memory, quiesce)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot task: %w", err)
	}
	return NewTask(s.id, task.Reference(), "CreateSnapshot"), nil
}

func (s *Session) RevertToSnapshot(ctx context.Context, snapshot SnapshotNode) (*Task, error) {
	if err := s.owns(snapshot.SessionID(), "snapshot "+snapshot.Name); err != nil {
		return nil, err
	}

	res, err := methods.RevertToSnapshot_Task(ctx, s.client.Client, &types.RevertToSnapshot_Task{
		This: snapshot.Ref,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate revert snapshot task: %w", err)
	}
	return NewTask(s.id, res.Returnval, "RevertToSnapshot"), nil
}

func (s *Session) RemoveSnapshot(ctx context.Context, snapshot SnapshotNode, removeChildren bool) (*Task, error) {
	if err := s.owns(snapshot.SessionID(), "snapshot "+snapshot.Name); err != nil {
		return nil, err
	}

	res, err := methods.RemoveSnapshot_Task(ctx, s.client.Client, &types.RemoveSnapshot_Task{
		This:           snapshot.Ref,
		RemoveChildren: removeChildren,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate delete snapshot task: %w", err)
	}
	return NewTask(s.id, res.Returnval, "RemoveSnapshot"), nil
}

func (s *Session) PowerOff(ctx context.Context, vm *Machine) (*Task, error) {
	if err := s.owns(vm.SessionID(), vm.String()); err != nil {
		return nil, err
	}

	task, err := object.NewVirtualMachine(s.client.Client, vm.Reference()).PowerOff(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate power off task: %w", err)
	}
	return NewTask(s.id, task.Reference(), "PowerOffVM"), nil
}

// TaskInfo returns the task state and, for failed tasks, the host's error message.
func (s *Session) TaskInfo(ctx context.Context, task *Task) (TaskState, string, error) {
	if err := s.owns(task.SessionID(), "task "+task.String()); err != nil {
		return "", "", err
	}

	var t mo.Task
	if err := s.collector().RetrieveOne(ctx, task.Reference(), []string{"info"}, &t); err != nil {
		return "", "", fmt.Errorf("failed to retrieve info of task %s: %w", task, err)
	}

	switch t.Info.State {
	case types.TaskInfoStateSuccess:
		return TaskStateSuccess, "", nil
	case types.TaskInfoStateError:
		msg := ""
		if t.Info.Error != nil {
			msg = t.Info.Error.LocalizedMessage
		}
		return TaskStateError, msg, nil
	default:
		return TaskStateRunning, "", nil
	}
}

var _ Conn = (*Session)(nil)
