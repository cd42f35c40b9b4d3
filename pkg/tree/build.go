package tree

import (
	"github.com/srodi/procwatch/pkg/types"
)

// Tree is the parent -> children adjacency of one snapshot.
type Tree struct {
	Children map[uint32][]uint32
	Entries  map[uint32]types.Entry
	// Order is the snapshot order of distinct pids.
	Order []uint32
}

// Build groups entries under their parent. A parent that is unknown, not
// present in the snapshot, or the process itself is replaced by the synthetic
// root so no process is dropped.
func Build(entries []types.Entry) Tree {
	t := Tree{
		Children: make(map[uint32][]uint32),
		Entries:  make(map[uint32]types.Entry, len(entries)),
		Order:    make([]uint32, 0, len(entries)),
	}
	for _, e := range entries {
		if _, dup := t.Entries[e.PID]; dup {
			continue
		}
		t.Entries[e.PID] = e
		t.Order = append(t.Order, e.PID)
	}
	for _, pid := range t.Order {
		if pid == types.RootPID {
			continue
		}
		parent := t.Entries[pid].PPID
		if _, ok := t.Entries[parent]; !ok || parent == pid {
			parent = types.RootPID
		}
		t.Children[parent] = append(t.Children[parent], pid)
	}
	return t
}
