package vmware

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// DefaultDatacenterPath is what a standalone ESXi host calls its only datacenter.
const DefaultDatacenterPath = "ha-datacenter"

// InventoryWalker enumerates the virtual machines of a host and remembers the
// datacenter path each machine was found under.
type InventoryWalker struct {
	conn Conn

	mu    sync.Mutex
	paths map[string]string
}

func NewInventoryWalker(conn Conn) *InventoryWalker {
	return &InventoryWalker{
		conn:  conn,
		paths: make(map[string]string),
	}
}

type inventoryFrame struct {
	obj        InventoryObject
	path       string
	inVMFolder bool
}

// AllMachines walks the inventory depth-first and yields every virtual machine
// in the order the host lists them. Above datacenters, folder names are
// accumulated into the datacenter path. Below a datacenter, only its VM folder
// is followed and nested folders do not change the path.
//
// The datacenter path index is reset when a new walk starts. A walk stopped
// early only indexes the machines it yielded.
func (w *InventoryWalker) AllMachines(ctx context.Context) iter.Seq2[*Machine, error] {
	return func(yield func(*Machine, error) bool) {
		w.mu.Lock()
		w.paths = make(map[string]string)
		w.mu.Unlock()

		roots, err := w.conn.InventoryRoots(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("failed to list inventory root: %w", err))
			return
		}

		frames := make([]inventoryFrame, 0, len(roots))
		for _, r := range roots {
			frames = append(frames, inventoryFrame{obj: r})
		}

		for f, err := range preOrder(frames, w.children(ctx)) {
			if err != nil {
				yield(nil, err)
				return
			}

			if !f.inVMFolder || f.obj.Ref.Type != inventoryTypeVirtualMachine {
				continue
			}

			w.mu.Lock()
			w.paths[f.obj.Name] = f.path
			w.mu.Unlock()

			if !yield(NewMachine(w.conn.ID(), f.obj.Ref, f.obj.Name, f.path), nil) {
				return
			}
		}
	}
}

func (w *InventoryWalker) children(ctx context.Context) func(inventoryFrame) ([]inventoryFrame, error) {
	return func(f inventoryFrame) ([]inventoryFrame, error) {
		var (
			path       string
			inVMFolder bool
		)

		switch {
		case f.inVMFolder && f.obj.Ref.Type == inventoryTypeFolder:
			path, inVMFolder = f.path, true
		case !f.inVMFolder && f.obj.Ref.Type == inventoryTypeFolder:
			path = f.path + f.obj.Name + "/"
		case !f.inVMFolder && f.obj.Ref.Type == inventoryTypeDatacenter:
			path, inVMFolder = f.path+f.obj.Name, true
		default:
			return nil, nil
		}

		kids, err := w.conn.InventoryChildren(ctx, f.obj)
		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", f.obj.Name, err)
		}

		frames := make([]inventoryFrame, 0, len(kids))
		for _, k := range kids {
			frames = append(frames, inventoryFrame{obj: k, path: path, inVMFolder: inVMFolder})
		}
		return frames, nil
	}
}

// FindByLabel returns the first machine named label. A missing machine is
// reported through ok, not as an error.
func (w *InventoryWalker) FindByLabel(ctx context.Context, label string) (*Machine, bool, error) {
	for m, err := range w.AllMachines(ctx) {
		if err != nil {
			return nil, false, err
		}
		if m.Label() == label {
			return m, true, nil
		}
	}
	return nil, false, nil
}

// DatacenterPath returns the path recorded for label during the last walk,
// or DefaultDatacenterPath.
func (w *InventoryWalker) DatacenterPath(label string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.paths[label]; ok {
		return p
	}
	return DefaultDatacenterPath
}
