package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/srodi/procwatch/pkg/types"
)

// SortBy orders the flat list.
type SortBy string

const (
	SortCPU SortBy = "cpu"
	SortMem SortBy = "mem"
	SortPID SortBy = "pid"
)

// ParseSortBy validates a sort key.
func ParseSortBy(name string) (SortBy, error) {
	switch s := SortBy(strings.ToLower(strings.TrimSpace(name))); s {
	case SortCPU, SortMem, SortPID:
		return s, nil
	case "":
		return SortCPU, nil
	}
	return "", fmt.Errorf("unknown sort key %q", name)
}

// ListRows resolves metadata for each distinct pid and orders the rows.
func ListRows(entries []types.Entry, lookup func(types.Entry) types.Metadata, by SortBy) []types.Row {
	unique := Dedup(entries)
	rows := make([]types.Row, 0, len(unique))
	for _, e := range unique {
		rows = append(rows, types.Row{Entry: e, Meta: lookup(e)})
	}
	switch by {
	case SortMem:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Entry.MemoryKB > rows[j].Entry.MemoryKB })
	case SortPID:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Entry.PID < rows[j].Entry.PID })
	default:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Entry.CPUPercent > rows[j].Entry.CPUPercent })
	}
	return rows
}

// ListLines renders the column header and one line per row.
func ListLines(rows []types.Row) []string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PID\tNAME\tCPU(%)\tMEM(KB)\tUSER\tEXE")
	for _, row := range rows {
		fmt.Fprintf(tw, "  %d\t%s\t%.2f\t%d\t%s\t%s\n",
			row.Entry.PID, row.Meta.Name, row.Entry.CPUPercent, row.Entry.MemoryKB, row.Meta.Owner, row.Meta.Exe)
	}
	tw.Flush()
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}
