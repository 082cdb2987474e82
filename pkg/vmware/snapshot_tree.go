package vmware

import (
	"iter"

	"github.com/vmware/govmomi/vim25/types"
)

// SnapshotNode is one snapshot of a machine's snapshot forest.
type SnapshotNode struct {
	Name     string
	Ref      types.ManagedObjectReference
	State    PowerState
	Children []SnapshotNode

	session string
}

func (n SnapshotNode) SessionID() string { return n.session }

// NewSnapshotForest converts the host snapshot trees into SnapshotNodes bound
// to the given session.
func NewSnapshotForest(sessionID string, roots []types.VirtualMachineSnapshotTree) []SnapshotNode {
	children := func(t *types.VirtualMachineSnapshotTree) []*types.VirtualMachineSnapshotTree {
		kids := make([]*types.VirtualMachineSnapshotTree, 0, len(t.ChildSnapshotList))
		for i := range t.ChildSnapshotList {
			kids = append(kids, &t.ChildSnapshotList[i])
		}
		return kids
	}

	rootPtrs := make([]*types.VirtualMachineSnapshotTree, 0, len(roots))
	for i := range roots {
		rootPtrs = append(rootPtrs, &roots[i])
	}

	// children are always converted before their parent
	built := make(map[*types.VirtualMachineSnapshotTree]SnapshotNode)
	for t := range postOrder(rootPtrs, children) {
		node := SnapshotNode{
			Name:    t.Name,
			Ref:     t.Snapshot,
			State:   PowerState(t.State),
			session: sessionID,
		}
		for _, c := range children(t) {
			node.Children = append(node.Children, built[c])
			delete(built, c)
		}
		built[t] = node
	}

	forest := make([]SnapshotNode, 0, len(rootPtrs))
	for _, r := range rootPtrs {
		forest = append(forest, built[r])
	}
	return forest
}

// FlattenSnapshots yields every snapshot of the forest, children before their
// parent, roots in the order given.
func FlattenSnapshots(roots []SnapshotNode) iter.Seq[SnapshotNode] {
	return postOrder(roots, func(n SnapshotNode) []SnapshotNode {
		return n.Children
	})
}

// FindSnapshot returns the first snapshot named name in FlattenSnapshots order.
func FindSnapshot(roots []SnapshotNode, name string) (SnapshotNode, bool) {
	for n := range FlattenSnapshots(roots) {
		if n.Name == name {
			return n, true
		}
	}
	return SnapshotNode{}, false
}
