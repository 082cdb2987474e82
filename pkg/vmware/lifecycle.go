package vmware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
)

const SnapshotDescription = "Created by vsphere-machinery"

// SnapshotLifecycle drives snapshot and power operations on a machine and
// waits for the resulting host tasks.
//
// Create and Revert failures are returned to the caller. Delete and PowerOff
// only return errors raised before the host task exists. A failed or timed out
// task is logged and otherwise ignored.
type SnapshotLifecycle struct {
	waiter *TaskWaiter
}

func NewSnapshotLifecycle(waiter *TaskWaiter) *SnapshotLifecycle {
	return &SnapshotLifecycle{waiter: waiter}
}

// Create takes a memory snapshot of the machine without quiescing the guest.
func (l *SnapshotLifecycle) Create(ctx context.Context, conn Conn, vm *Machine, name string) error {
	zap.S().Named("vmware").Infow("creating snapshot", "snapshot", name, "machine", vm.Label())

	task, err := conn.CreateSnapshot(ctx, vm, name, SnapshotDescription, true, false)
	if err != nil {
		return fmt.Errorf("CreateSnapshot: %w", err)
	}

	if err := l.waiter.Wait(ctx, conn, task); err != nil {
		return fmt.Errorf("CreateSnapshot: %w", err)
	}

	return nil
}

// Revert reverts the machine to the named snapshot. No host request is made
// when the snapshot does not exist.
func (l *SnapshotLifecycle) Revert(ctx context.Context, conn Conn, vm *Machine, name string) error {
	snapshot, err := l.find(ctx, conn, vm, name)
	if err != nil {
		return err
	}

	zap.S().Named("vmware").Infow("reverting machine to snapshot", "machine", vm.Label(), "snapshot", name)

	task, err := conn.RevertToSnapshot(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("RevertToSnapshot: %w", err)
	}

	if err := l.waiter.Wait(ctx, conn, task); err != nil {
		return fmt.Errorf("RevertToSnapshot: %w", err)
	}

	return nil
}

// Delete removes the named snapshot together with its children.
func (l *SnapshotLifecycle) Delete(ctx context.Context, conn Conn, vm *Machine, name string) error {
	snapshot, err := l.find(ctx, conn, vm, name)
	if err != nil {
		return err
	}

	zap.S().Named("vmware").Infow("removing snapshot", "snapshot", name, "machine", vm.Label())

	task, err := conn.RemoveSnapshot(ctx, snapshot, true)
	if err != nil {
		return fmt.Errorf("RemoveSnapshot: %w", err)
	}

	if err := l.waiter.Wait(ctx, conn, task); err != nil {
		zap.S().Named("vmware").Errorw("RemoveSnapshot", "machine", vm.Label(), "snapshot", name, "error", err)
	}

	return nil
}

// PowerOff powers the machine off.
func (l *SnapshotLifecycle) PowerOff(ctx context.Context, conn Conn, vm *Machine) error {
	zap.S().Named("vmware").Infow("powering off machine", "machine", vm.Label())

	task, err := conn.PowerOff(ctx, vm)
	if err != nil {
		return fmt.Errorf("PowerOffVM: %w", err)
	}

	if err := l.waiter.Wait(ctx, conn, task); err != nil {
		zap.S().Named("vmware").Errorw("PowerOffVM", "machine", vm.Label(), "error", err)
	}

	return nil
}

// SnapshotPowerState returns the power state the machine was in when the
// named snapshot was taken.
func (l *SnapshotLifecycle) SnapshotPowerState(ctx context.Context, conn Conn, vm *Machine, name string) (PowerState, error) {
	snapshot, err := l.find(ctx, conn, vm, name)
	if err != nil {
		return "", err
	}
	return snapshot.State, nil
}

func (l *SnapshotLifecycle) find(ctx context.Context, conn Conn, vm *Machine, name string) (SnapshotNode, error) {
	roots, err := conn.Snapshots(ctx, vm)
	if err != nil {
		return SnapshotNode{}, fmt.Errorf("failed to list snapshots of %s: %w", vm.Label(), err)
	}

	snapshot, ok := FindSnapshot(roots, name)
	if !ok {
		return SnapshotNode{}, fmt.Errorf("machine %s: %w", vm.Label(), srvErrors.NewSnapshotNotFoundError(name))
	}
	return snapshot, nil
}
