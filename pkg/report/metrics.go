package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/srodi/procwatch/pkg/types"
)

// Dedup drops repeated records of the same pid; the first occurrence wins.
func Dedup(entries []types.Entry) []types.Entry {
	seen := make(map[uint32]struct{}, len(entries))
	result := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.PID]; ok {
			continue
		}
		seen[e.PID] = struct{}{}
		result = append(result, e)
	}
	return result
}

// Totals sums CPU and resident memory over the deduplicated entries. CPU is
// not capped: on multi-core hosts the total may exceed 100%.
func Totals(entries []types.Entry) (cpu float64, memKB uint64) {
	for _, e := range Dedup(entries) {
		cpu += e.CPUPercent
		memKB += e.MemoryKB
	}
	return cpu, memKB
}

// Header renders the totals block shown above both views.
func Header(r types.Report) []string {
	lines := []string{
		fmt.Sprintf("  Total CPU used: %.2f%%", r.TotalCPU),
		fmt.Sprintf("  Total memory used: %d KB (%s)", r.TotalMemoryKB, humanize.IBytes(r.TotalMemoryKB*1024)),
	}
	if r.SystemUsedKB > 0 {
		lines = append(lines, fmt.Sprintf("  System memory used: %d KB (%s)", r.SystemUsedKB, humanize.IBytes(r.SystemUsedKB*1024)))
	}
	lines = append(lines, fmt.Sprintf("  Processes: %d", r.ProcessCount))
	if focus := SelectFocusCandidate(r.Rows); focus != nil {
		lines = append(lines, fmt.Sprintf("  Busiest: %s (pid %d) - %s", focus.Meta.Name, focus.Entry.PID, FocusSummary(*focus)))
	}
	return lines
}

// SelectFocusCandidate picks the row using the most CPU, breaking ties by
// memory. Synthetic rows and idle processes are never picked.
func SelectFocusCandidate(rows []types.Row) *types.Row {
	var best *types.Row
	for i := range rows {
		row := &rows[i]
		if row.Synthetic || (row.Entry.CPUPercent == 0 && row.Entry.MemoryKB == 0) {
			continue
		}
		if best == nil ||
			row.Entry.CPUPercent > best.Entry.CPUPercent ||
			(row.Entry.CPUPercent == best.Entry.CPUPercent && row.Entry.MemoryKB > best.Entry.MemoryKB) {
			best = row
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

// FocusSummary returns a short explanation string for the status line.
func FocusSummary(row types.Row) string {
	return fmt.Sprintf("%.1f%% CPU, %s RSS, owner %s",
		row.Entry.CPUPercent, humanize.IBytes(row.Entry.MemoryKB*1024), row.Meta.Owner)
}

// FilterConfig controls which processes appear in the views.
type FilterConfig struct {
	HideKernel bool
	NameFilter string // case-insensitive substring on the process name
}

// FilterEntries applies kernel/name filters. Metadata is looked up only when a filter needs it.
func FilterEntries(entries []types.Entry, lookup func(types.Entry) types.Metadata, cfg FilterConfig) []types.Entry {
	if !cfg.HideKernel && cfg.NameFilter == "" {
		return entries
	}
	needle := strings.ToLower(strings.TrimSpace(cfg.NameFilter))
	filtered := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		meta := lookup(e)
		if cfg.HideKernel && isKernelThread(e, meta) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(meta.Name), needle) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func isKernelThread(e types.Entry, meta types.Metadata) bool {
	if e.PID == 0 {
		return true
	}
	name := strings.ToLower(meta.Name)
	switch {
	case strings.HasPrefix(name, "kworker"), strings.HasPrefix(name, "ksoftirqd"), strings.HasPrefix(name, "kthreadd"),
		strings.HasPrefix(name, "migration"), strings.HasPrefix(name, "watchdog"), strings.HasPrefix(name, "rcu"),
		strings.HasPrefix(name, "irq/"):
		return true
	}
	return false
}
