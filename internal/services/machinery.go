package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/keymutex"

	"github.com/kubev2v/vsphere-machinery/internal/models"
	"github.com/kubev2v/vsphere-machinery/internal/store"
	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/metrics"
	"github.com/kubev2v/vsphere-machinery/pkg/scheduler"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
)

const interruptedReason = "interrupted by agent restart"

// MachineryService runs the orchestrator operations against the vSphere host.
// Every operation opens its own session and resolves the machine again.
type MachineryService struct {
	connect   vmware.Connector
	store     *store.Store
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	lifecycle *vmware.SnapshotLifecycle
	dumper    *vmware.MemoryDumper
	locks     keymutex.KeyMutex

	privilegeUser string
	dumpFolder    string

	// lifetime of the asynchronous dumps
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMachineryService creates a MachineryService. Host tasks are waited for
// at most taskTimeout.
func NewMachineryService(connect vmware.Connector, st *store.Store, s *scheduler.Scheduler, m *metrics.Metrics, taskTimeout time.Duration) *MachineryService {
	waiter := vmware.NewTaskWaiter(taskTimeout)
	waiter.OnDone = func(task *vmware.Task, elapsed time.Duration, err error) {
		m.ObserveTask(task.Name(), elapsed, err)
	}
	lifecycle := vmware.NewSnapshotLifecycle(waiter)

	ctx, cancel := context.WithCancel(context.Background())

	return &MachineryService{
		connect:   connect,
		store:     st,
		scheduler: s,
		metrics:   m,
		lifecycle: lifecycle,
		dumper:    vmware.NewMemoryDumper(lifecycle),
		locks:     newLabelLocks(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithPrivilegeCheck makes Check verify that user holds the privileges the
// machinery needs on every registered machine.
func (m *MachineryService) WithPrivilegeCheck(user string) *MachineryService {
	m.privilegeUser = user
	return m
}

// WithDumpFolder confines asynchronous dumps to folder, an absolute path.
// Relative request paths are resolved inside it.
func (m *MachineryService) WithDumpFolder(folder string) *MachineryService {
	m.dumpFolder = filepath.Clean(folder)
	return m
}

// Start reverts the machine to its baseline snapshot.
func (m *MachineryService) Start(ctx context.Context, label string) error {
	op := &models.Operation{Label: label, Kind: models.OperationKindStart}

	return m.exec(ctx, op, func(ctx context.Context) error {
		machine, err := m.store.Machines().Get(ctx, label)
		if err != nil {
			return err
		}
		if machine.Snapshot == "" {
			return srvErrors.NewConfigurationError("snapshot name not specified for machine %s", label)
		}

		return m.withMachine(ctx, label, func(conn vmware.Conn, vm *vmware.Machine) error {
			zap.S().Named("machinery_service").Infow("starting machine", "machine", label, "snapshot", machine.Snapshot)
			if err := m.lifecycle.Revert(ctx, conn, vm, machine.Snapshot); err != nil {
				return fmt.Errorf("failed to revert machine %s to snapshot %s: %w", label, machine.Snapshot, err)
			}
			return nil
		})
	})
}

// Stop powers the machine off. A failed power off task is only logged.
func (m *MachineryService) Stop(ctx context.Context, label string) error {
	op := &models.Operation{Label: label, Kind: models.OperationKindStop}

	return m.exec(ctx, op, func(ctx context.Context) error {
		return m.withMachine(ctx, label, func(conn vmware.Conn, vm *vmware.Machine) error {
			zap.S().Named("machinery_service").Infow("stopping machine", "machine", label)
			return m.lifecycle.PowerOff(ctx, conn, vm)
		})
	})
}

// DumpMemory writes the memory image of the machine to path and returns the
// number of bytes written.
func (m *MachineryService) DumpMemory(ctx context.Context, label, path string) (int64, error) {
	if err := validateDumpPath(path); err != nil {
		return 0, err
	}

	op := &models.Operation{Label: label, Kind: models.OperationKindDump, Path: path}
	err := m.exec(ctx, op, func(ctx context.Context) error {
		return m.dump(ctx, op)
	})
	return op.Bytes, err
}

// DumpMemoryAsync journals a pending dump and runs it on the scheduler. The
// returned operation can be polled until it reaches a finished state.
func (m *MachineryService) DumpMemoryAsync(ctx context.Context, label, path string) (models.Operation, error) {
	path, err := m.resolveDumpPath(path)
	if err != nil {
		return models.Operation{}, err
	}

	op := &models.Operation{Label: label, Kind: models.OperationKindDump, Path: path, State: models.OperationStatePending}
	if err := m.store.Operations().Create(ctx, op); err != nil {
		return models.Operation{}, fmt.Errorf("failed to journal dump of %s: %w", label, err)
	}
	accepted := *op

	zap.S().Named("machinery_service").Infow("memory dump accepted", "operation", op.ID, "machine", label, "path", path)

	m.wg.Add(1)
	go m.runAsync(op)

	return accepted, nil
}

// runAsync hands the dump to a worker and records the outcome.
func (m *MachineryService) runAsync(op *models.Operation) {
	defer m.wg.Done()

	future := m.scheduler.AddWork(func(ctx context.Context) (any, error) {
		err := m.exec(ctx, op, func(ctx context.Context) error {
			return m.dump(ctx, op)
		})
		return op.Bytes, err
	})

	select {
	case <-m.ctx.Done():
		future.Stop()
		// the worker records the cancellation, if it picked the work up
		<-future.C()
		if !op.State.Finished() {
			m.finish(m.ctx, op, m.ctx.Err())
		}
	case result := <-future.C():
		if result.Err != nil {
			zap.S().Named("machinery_service").Errorw("memory dump failed", "operation", op.ID, "machine", op.Label, "error", result.Err)
			return
		}
		zap.S().Named("machinery_service").Infow("memory dump completed", "operation", op.ID, "machine", op.Label, "bytes", result.Data)
	}
}

func (m *MachineryService) dump(ctx context.Context, op *models.Operation) error {
	return m.withMachine(ctx, op.Label, func(conn vmware.Conn, vm *vmware.Machine) error {
		n, err := m.dumper.Dump(ctx, conn, vm, op.Path)
		op.Bytes = n
		m.metrics.AddDownloadedBytes(n)
		return err
	})
}

// Status returns the power state of the machine.
func (m *MachineryService) Status(ctx context.Context, label string) (state vmware.PowerState, err error) {
	done := m.metrics.Track("status")
	defer func() { done(err) }()

	err = m.withMachine(ctx, label, func(conn vmware.Conn, vm *vmware.Machine) error {
		state, err = conn.PowerState(ctx, vm)
		return err
	})
	return state, err
}

// List returns the names of all machines in host order.
func (m *MachineryService) List(ctx context.Context) (labels []string, err error) {
	done := m.metrics.Track("list")
	defer func() { done(err) }()

	err = vmware.WithSession(ctx, m.connect, func(conn vmware.Conn) error {
		for vm, err := range vmware.NewInventoryWalker(conn).AllMachines(ctx) {
			if err != nil {
				return err
			}
			labels = append(labels, vm.Label())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []string{}
	}
	return labels, nil
}

// Machines returns every machine on the host with its power state, joined
// with the registry.
func (m *MachineryService) Machines(ctx context.Context) ([]models.MachineStatus, error) {
	registered, err := m.registryIndex(ctx)
	if err != nil {
		return nil, err
	}

	var result []models.MachineStatus
	err = vmware.WithSession(ctx, m.connect, func(conn vmware.Conn) error {
		for vm, err := range vmware.NewInventoryWalker(conn).AllMachines(ctx) {
			if err != nil {
				return err
			}
			state, err := conn.PowerState(ctx, vm)
			if err != nil {
				return fmt.Errorf("failed to read power state of %s: %w", vm.Label(), err)
			}

			status := models.MachineStatus{Machine: models.Machine{Label: vm.Label()}, PowerState: string(state)}
			if rec, ok := registered[vm.Label()]; ok {
				status.Machine = rec
				status.Registered = true
			}
			result = append(result, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = []models.MachineStatus{}
	}
	return result, nil
}

// Machine returns a single machine with its power state.
func (m *MachineryService) Machine(ctx context.Context, label string) (*models.MachineStatus, error) {
	state, err := m.Status(ctx, label)
	if err != nil {
		return nil, err
	}

	status := &models.MachineStatus{Machine: models.Machine{Label: label}, PowerState: string(state)}

	rec, err := m.store.Machines().Get(ctx, label)
	switch {
	case err == nil:
		status.Machine = *rec
		status.Registered = true
	case !srvErrors.IsResourceNotFoundError(err):
		return nil, err
	}

	return status, nil
}

// Check validates every registered machine: its snapshot name is set, the
// machine exists on the host, the snapshot exists and was taken while the
// machine was powered on. All problems are returned together as
// configuration errors. Host failures are returned as they are.
func (m *MachineryService) Check(ctx context.Context) (err error) {
	done := m.metrics.Track("check")
	defer func() { done(err) }()

	machines, err := m.store.Machines().List(ctx)
	if err != nil {
		return err
	}

	var problems []error
	err = vmware.WithSession(ctx, m.connect, func(conn vmware.Conn) error {
		found := make(map[string]*vmware.Machine)
		for vm, err := range vmware.NewInventoryWalker(conn).AllMachines(ctx) {
			if err != nil {
				return err
			}
			if _, dup := found[vm.Label()]; !dup {
				found[vm.Label()] = vm
			}
		}

		for _, machine := range machines {
			problem, err := m.checkMachine(ctx, conn, found[machine.Label], machine)
			if err != nil {
				return err
			}
			if problem != nil {
				zap.S().Named("machinery_service").Errorw("machine check failed", "machine", machine.Label, "error", problem)
				problems = append(problems, problem)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.S().Named("machinery_service").Infow("machines checked", "count", len(machines), "problems", len(problems))

	return errors.Join(problems...)
}

func (m *MachineryService) checkMachine(ctx context.Context, conn vmware.Conn, vm *vmware.Machine, machine models.Machine) (problem error, err error) {
	if machine.Snapshot == "" {
		return srvErrors.NewConfigurationError("snapshot name not specified for machine %s", machine.Label), nil
	}
	if vm == nil {
		return srvErrors.NewConfigurationError("unable to find machine %s on vSphere host", machine.Label), nil
	}

	state, err := m.lifecycle.SnapshotPowerState(ctx, conn, vm, machine.Snapshot)
	switch {
	case srvErrors.IsResourceNotFoundError(err):
		return srvErrors.NewConfigurationError("unable to find snapshot %s for machine %s", machine.Snapshot, machine.Label), nil
	case err != nil:
		return nil, err
	case state != vmware.PowerStatePoweredOn:
		return srvErrors.NewConfigurationError("snapshot %s for machine %s not in powered-on state", machine.Snapshot, machine.Label), nil
	}

	if m.privilegeUser != "" {
		if err := vmware.ValidatePrivileges(ctx, conn, vm, vmware.RequiredPrivileges, m.privilegeUser); err != nil {
			return srvErrors.NewConfigurationError("%v", err), nil
		}
	}

	return nil, nil
}

// RecoverJournal marks operations left unfinished by a previous run as failed.
func (m *MachineryService) RecoverJournal(ctx context.Context) error {
	n, err := m.store.Operations().FailUnfinished(ctx, interruptedReason)
	if err != nil {
		return fmt.Errorf("failed to recover operation journal: %w", err)
	}
	if n > 0 {
		zap.S().Named("machinery_service").Warnw("unfinished operations marked as failed", "count", n)
	}
	return nil
}

// Close cancels the asynchronous dumps and waits for them to be recorded.
func (m *MachineryService) Close() {
	m.cancel()
	m.wg.Wait()
}

// exec journals op, serializes it with other mutating operations on the
// same label and records its outcome in the journal and the metrics.
func (m *MachineryService) exec(ctx context.Context, op *models.Operation, fn func(ctx context.Context) error) (err error) {
	done := m.metrics.Track(op.Kind.Value())
	defer func() { done(err) }()

	if op.ID == "" {
		op.State = models.OperationStateRunning
		if err := m.store.Operations().Create(ctx, op); err != nil {
			return fmt.Errorf("failed to journal %s of %s: %w", op.Kind, op.Label, err)
		}
	}

	m.locks.LockKey(op.Label)
	defer func() { _ = m.locks.UnlockKey(op.Label) }()

	if op.State != models.OperationStateRunning {
		op.State = models.OperationStateRunning
		m.update(ctx, op)
	}

	if err = ctx.Err(); err == nil {
		err = fn(ctx)
	}
	m.finish(ctx, op, err)

	return err
}

func (m *MachineryService) finish(ctx context.Context, op *models.Operation, err error) {
	op.State = models.OperationStateCompleted
	op.Error = nil
	if err != nil {
		op.State = models.OperationStateError
		op.Error = err
	}
	m.update(ctx, op)
}

// update writes op to the journal. A failed journal write does not fail the
// operation.
func (m *MachineryService) update(ctx context.Context, op *models.Operation) {
	if err := m.store.Operations().Update(context.WithoutCancel(ctx), op); err != nil {
		zap.S().Named("machinery_service").Errorw("failed to update operation journal", "operation", op.ID, "state", op.State, "error", err)
	}
}

// withMachine opens a session, resolves label and calls fn with the handle.
func (m *MachineryService) withMachine(ctx context.Context, label string, fn func(conn vmware.Conn, vm *vmware.Machine) error) error {
	return vmware.WithSession(ctx, m.connect, func(conn vmware.Conn) error {
		vm, ok, err := vmware.NewInventoryWalker(conn).FindByLabel(ctx, label)
		if err != nil {
			return fmt.Errorf("failed to look up machine %s: %w", label, err)
		}
		if !ok {
			return srvErrors.NewMachineNotFoundError(label)
		}
		return fn(conn, vm)
	})
}

func (m *MachineryService) registryIndex(ctx context.Context) (map[string]models.Machine, error) {
	machines, err := m.store.Machines().List(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.Machine, len(machines))
	for _, machine := range machines {
		index[machine.Label] = machine
	}
	return index, nil
}

// resolveDumpPath returns path as a file inside the dump folder.
func (m *MachineryService) resolveDumpPath(path string) (string, error) {
	if m.dumpFolder == "" {
		return "", srvErrors.NewConfigurationError("dump-folder must be set")
	}
	if path == "" {
		return "", srvErrors.NewInvalidArgumentError("path", "must not be empty")
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(m.dumpFolder, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(m.dumpFolder, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", srvErrors.NewInvalidArgumentError("path", "must be inside the dump folder "+m.dumpFolder)
	}
	return target, nil
}

func validateDumpPath(path string) error {
	if path == "" {
		return srvErrors.NewInvalidArgumentError("path", "must not be empty")
	}
	if !filepath.IsAbs(path) {
		return srvErrors.NewInvalidArgumentError("path", "must be absolute")
	}
	return nil
}
