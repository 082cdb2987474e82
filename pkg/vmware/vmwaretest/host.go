// Package vmwaretest provides an in-memory vSphere host implementing
// vmware.Conn for tests.
package vmwaretest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/vmware/govmomi/vim25/types"

	srvErrors "github.com/kubev2v/vsphere-machinery/pkg/errors"
	"github.com/kubev2v/vsphere-machinery/pkg/vmware"
)

const (
	TaskCreateSnapshot   = "CreateSnapshot"
	TaskRevertToSnapshot = "RevertToSnapshot"
	TaskRemoveSnapshot   = "RemoveSnapshot"
	TaskPowerOff         = "PowerOffVM"

	KindFolder         = "Folder"
	KindDatacenter     = "Datacenter"
	KindVirtualMachine = "VirtualMachine"
	KindVirtualApp     = "VirtualApp"
)

// TaskScript controls how tasks of one kind progress.
type TaskScript struct {
	// RunningPolls is the number of polls reporting running before the task ends.
	RunningPolls int
	// Fail ends the task in the error state with Message.
	Fail    bool
	Message string
	// Hang keeps the task running forever.
	Hang bool
}

// Entity is a node of the fake inventory.
type Entity struct {
	ref      types.ManagedObjectReference
	name     string
	children []*Entity
	vm       *vmState
}

func (e *Entity) Name() string                      { return e.name }
func (e *Entity) Ref() types.ManagedObjectReference { return e.ref }

type vmState struct {
	power      vmware.PowerState
	snapshots  []types.VirtualMachineSnapshotTree
	layout     types.VirtualMachineFileLayoutEx
	privileges []string
	memoryFile string
	memoryType string
}

type fakeTask struct {
	kind   string
	script TaskScript
	polls  int
	apply  func()
	done   bool
}

// Host is a fake vSphere host. All methods are safe for concurrent use.
type Host struct {
	mu sync.Mutex

	params     vmware.ConnectionParameters
	httpClient *http.Client

	roots    []*Entity
	entities map[types.ManagedObjectReference]*Entity
	seq      int

	tasks   map[types.ManagedObjectReference]*fakeTask
	scripts map[string]TaskScript
	errs    map[string]error

	connectErr error
	opened     int
	released   int

	calls   []string
	lookups []string
}

func NewHost() *Host {
	return &Host{
		params: vmware.ConnectionParameters{
			Host:     "esxi.example.com",
			Port:     443,
			Username: "root",
			Password: "secret",
		},
		httpClient: http.DefaultClient,
		entities:   make(map[types.ManagedObjectReference]*Entity),
		tasks:      make(map[types.ManagedObjectReference]*fakeTask),
		scripts:    make(map[string]TaskScript),
		errs:       make(map[string]error),
	}
}

func (h *Host) nextRef(kind string) types.ManagedObjectReference {
	h.seq++
	return types.ManagedObjectReference{Type: kind, Value: fmt.Sprintf("%s-%d", kind, h.seq)}
}

func (h *Host) add(parent *Entity, kind, name string) *Entity {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &Entity{ref: h.nextRef(kind), name: name}
	h.entities[e.ref] = e
	if parent == nil {
		h.roots = append(h.roots, e)
	} else {
		parent.children = append(parent.children, e)
	}
	return e
}

// Folder adds a folder. A nil parent places it under the root folder.
func (h *Host) Folder(parent *Entity, name string) *Entity {
	return h.add(parent, KindFolder, name)
}

// Datacenter adds a datacenter. Its children are the content of its VM folder.
func (h *Host) Datacenter(parent *Entity, name string) *Entity {
	return h.add(parent, KindDatacenter, name)
}

// VirtualApp adds an entity the machinery does not descend into.
func (h *Host) VirtualApp(parent *Entity, name string) *Entity {
	return h.add(parent, KindVirtualApp, name)
}

// VM adds a powered on virtual machine.
func (h *Host) VM(parent *Entity, name string) *Entity {
	e := h.add(parent, KindVirtualMachine, name)

	h.mu.Lock()
	defer h.mu.Unlock()
	e.vm = &vmState{power: vmware.PowerStatePoweredOn, privileges: append([]string(nil), vmware.RequiredPrivileges...)}
	return e
}

// AddSnapshot adds a snapshot under the named parent, or as a root when
// parent is empty.
func (h *Host) AddSnapshot(vm *Entity, parent, name string, state vmware.PowerState) types.ManagedObjectReference {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addSnapshot(vm, parent, name, state)
}

func (h *Host) addSnapshot(vm *Entity, parent, name string, state vmware.PowerState) types.ManagedObjectReference {
	ref := h.nextRef("VirtualMachineSnapshot")
	node := types.VirtualMachineSnapshotTree{
		Name:     name,
		Snapshot: ref,
		State:    types.VirtualMachinePowerState(state),
	}

	if parent == "" {
		vm.vm.snapshots = append(vm.vm.snapshots, node)
	} else if p := findTree(&vm.vm.snapshots, parent); p != nil {
		p.ChildSnapshotList = append(p.ChildSnapshotList, node)
	} else {
		panic(fmt.Sprintf("parent snapshot %s not found", parent))
	}

	memKey := int32(h.seq * 10)
	dataKey := memKey + 1

	memName := vm.vm.memoryFile
	if memName == "" {
		memName = fmt.Sprintf("[datastore1] %s/%s-%s.vmem", vm.name, vm.name, ref.Value)
	}
	memType := vm.vm.memoryType
	if memType == "" {
		memType = "snapshotMemory"
	}

	vm.vm.layout.Snapshot = append(vm.vm.layout.Snapshot, types.VirtualMachineFileLayoutExSnapshotLayout{
		Key:       ref,
		DataKey:   dataKey,
		MemoryKey: memKey,
	})
	vm.vm.layout.File = append(vm.vm.layout.File,
		types.VirtualMachineFileLayoutExFileInfo{Key: dataKey, Name: fmt.Sprintf("[datastore1] %s/%s-%s.vmsn", vm.name, vm.name, ref.Value), Type: "snapshotData"},
		types.VirtualMachineFileLayoutExFileInfo{Key: memKey, Name: memName, Type: memType},
	)

	return ref
}

// SetMemoryFile overrides the name and type of the memory file recorded for
// snapshots created afterwards.
func (h *Host) SetMemoryFile(vm *Entity, spec, fileType string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vm.vm.memoryFile = spec
	vm.vm.memoryType = fileType
}

func (h *Host) SetPowerState(vm *Entity, state vmware.PowerState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vm.vm.power = state
}

func (h *Host) SetPrivileges(vm *Entity, privileges ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vm.vm.privileges = privileges
}

// Script sets how tasks of the given kind behave from now on.
func (h *Host) Script(kind string, script TaskScript) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts[kind] = script
}

// FailRequest makes the named Conn method return err.
func (h *Host) FailRequest(method string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs[method] = err
}

// FailConnect makes the connector fail with err.
func (h *Host) FailConnect(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectErr = err
}

// ServeDownloads points the host datastore endpoint at the given server.
func (h *Host) ServeDownloads(ts *httptest.Server) {
	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())

	h.mu.Lock()
	defer h.mu.Unlock()
	h.params.Host = u.Hostname()
	h.params.Port = port
	h.httpClient = ts.Client()
}

func (h *Host) Params() vmware.ConnectionParameters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params
}

// Snapshots returns the names of the machine's snapshots in pre-order.
func (h *Host) Snapshots(vm *Entity) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var names []string
	var walk func([]types.VirtualMachineSnapshotTree)
	walk = func(list []types.VirtualMachineSnapshotTree) {
		for _, n := range list {
			names = append(names, n.Name)
			walk(n.ChildSnapshotList)
		}
	}
	walk(vm.vm.snapshots)
	return names
}

func (h *Host) PowerState(vm *Entity) vmware.PowerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return vm.vm.power
}

// Calls returns the mutating requests received, as "<task kind> <machine> [<snapshot>]".
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Lookups returns the names of the entities whose children were listed.
func (h *Host) Lookups() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lookups...)
}

func (h *Host) Opened() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened
}

func (h *Host) Released() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Connector returns a vmware.Connector opening fake sessions on this host.
func (h *Host) Connector() vmware.Connector {
	return func(ctx context.Context) (vmware.Conn, error) {
		c, err := h.Connect(ctx)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (h *Host) Connect(_ context.Context) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connectErr != nil {
		return nil, srvErrors.NewConnectivityError(h.connectErr)
	}
	h.opened++
	return &Conn{host: h, id: uuid.NewString()}, nil
}

func findTree(list *[]types.VirtualMachineSnapshotTree, name string) *types.VirtualMachineSnapshotTree {
	for i := range *list {
		if (*list)[i].Name == name {
			return &(*list)[i]
		}
		if p := findTree(&(*list)[i].ChildSnapshotList, name); p != nil {
			return p
		}
	}
	return nil
}

func findTreeByRef(list []types.VirtualMachineSnapshotTree, ref types.ManagedObjectReference) *types.VirtualMachineSnapshotTree {
	for i := range list {
		if list[i].Snapshot == ref {
			return &list[i]
		}
		if p := findTreeByRef(list[i].ChildSnapshotList, ref); p != nil {
			return p
		}
	}
	return nil
}

func removeTree(list *[]types.VirtualMachineSnapshotTree, ref types.ManagedObjectReference) bool {
	for i := range *list {
		if (*list)[i].Snapshot == ref {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
		if removeTree(&(*list)[i].ChildSnapshotList, ref) {
			return true
		}
	}
	return false
}
