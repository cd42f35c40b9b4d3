package tree

import (
	"fmt"
	"strings"

	"github.com/aquilax/truncate"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/srodi/procwatch/pkg/types"
)

// SystemName labels the synthetic root row.
const SystemName = "[System]"

// nameWidths holds the name column width per depth so the columns after the
// name stay aligned while the indentation grows. Deeper rows use the last width.
var nameWidths = [...]int{44, 42, 40, 38, 36, 34, 32}

func nameWidth(depth int) int {
	if depth < 0 {
		depth = 0
	}
	if depth >= len(nameWidths) {
		depth = len(nameWidths) - 1
	}
	return nameWidths[depth]
}

type frame struct {
	pid   uint32
	depth int
}

// Render walks the tree depth-first in pre-order from the synthetic root and
// returns one row per visited process. The walk uses an explicit stack, so
// depth is unbounded, and a visited set, so a malformed parent cycle cannot
// loop forever. Processes only reachable through a cycle are appended as
// children of the root.
func Render(t Tree, lookup func(types.Entry) types.Metadata) []types.Row {
	rows := make([]types.Row, 0, len(t.Entries)+1)
	visited := mapset.NewThreadUnsafeSet[uint32]()

	if root, ok := t.Entries[types.RootPID]; ok {
		rows = append(rows, types.Row{Depth: 0, Entry: root, Meta: lookup(root)})
	} else {
		rows = append(rows, types.Row{Depth: 0, Synthetic: true, Meta: types.Metadata{Name: SystemName}})
	}
	visited.Add(types.RootPID)

	walk := func(start []uint32, depth int) {
		stack := make([]frame, 0, len(start))
		for i := len(start) - 1; i >= 0; i-- {
			stack = append(stack, frame{pid: start[i], depth: depth})
		}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !visited.Add(top.pid) {
				continue
			}
			entry := t.Entries[top.pid]
			rows = append(rows, types.Row{Depth: top.depth, Entry: entry, Meta: lookup(entry)})

			children := t.Children[top.pid]
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, frame{pid: children[i], depth: top.depth + 1})
			}
		}
	}

	walk(t.Children[types.RootPID], 1)
	for _, pid := range t.Order {
		if !visited.Contains(pid) {
			walk([]uint32{pid}, 1)
		}
	}
	return rows
}

// Lines formats rendered rows: a column header, then one line per row
// indented two spaces per level.
func Lines(rows []types.Row) []string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, fmt.Sprintf("  %-*s %-7s %-10s %-15s %-17s %s",
		nameWidth(0)+2, "NAME", "PID", "CPU(%)", "MEM(KB)", "USER", "EXE"))
	for _, row := range rows {
		lines = append(lines, formatRow(row))
	}
	return lines
}

func formatRow(row types.Row) string {
	indent := strings.Repeat("  ", row.Depth)
	if row.Synthetic {
		return fmt.Sprintf("  %s- %s (PID: %d)", indent, row.Meta.Name, row.Entry.PID)
	}
	width := nameWidth(row.Depth)
	name := truncate.Truncate(row.Meta.Name, width, "~", truncate.PositionEnd)
	line := fmt.Sprintf("  %s- %-*s %-7d %-10.2f %-15d %-17s %s",
		indent, width, name, row.Entry.PID, row.Entry.CPUPercent, row.Entry.MemoryKB, row.Meta.Owner, row.Meta.Exe)
	return strings.TrimRight(line, " ")
}
