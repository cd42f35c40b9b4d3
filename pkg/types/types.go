package types

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRefreshInterval is the minimum time between two recomputations of a view.
const DefaultRefreshInterval = 5 * time.Second

// RootPID is the synthetic anchor for processes without a live parent.
const RootPID uint32 = 0

// Entry is the transient, per-snapshot view of one process.
type Entry struct {
	PID        uint32  `yaml:"pid"`
	PPID       uint32  `yaml:"ppid"`
	CPUPercent float64 `yaml:"cpuPercent"`
	MemoryKB   uint64  `yaml:"memoryKB"`
	// StartTime is the creation time in ms since epoch, 0 when the OS did not report one.
	StartTime int64 `yaml:"-"`
}

// Key identifies the process lifetime an entry belongs to.
func (e Entry) Key() ProcessKey {
	return ProcessKey{PID: e.PID, StartTime: e.StartTime}
}

// Snapshot is one point-in-time read of the process table.
type Snapshot struct {
	Entries      []Entry
	SystemUsedKB uint64
	TakenAt      time.Time
}

// ProcessKey keys cached metadata. Pairing the pid with its start time keeps a
// reused pid from inheriting metadata of the process that held it before.
type ProcessKey struct {
	PID       uint32
	StartTime int64
}

// Metadata holds the slow-changing attributes of a process.
type Metadata struct {
	Name  string `yaml:"name"`
	Exe   string `yaml:"exe"`
	Owner string `yaml:"owner"`
}

// View selects how the report is rendered.
type View int

const (
	ViewNone View = iota
	ViewList
	ViewTree
)

func (v View) String() string {
	switch v {
	case ViewList:
		return "list"
	case ViewTree:
		return "tree"
	default:
		return "none"
	}
}

// ParseView maps a view name to a View.
func ParseView(name string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "list":
		return ViewList, nil
	case "tree":
		return ViewTree, nil
	case "none", "home", "":
		return ViewNone, nil
	}
	return ViewNone, fmt.Errorf("unknown view %q", name)
}

// MarshalYAML renders the view by name.
func (v View) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

// Row is one rendered process line before text formatting.
type Row struct {
	Depth     int      `yaml:"depth,omitempty"`
	Synthetic bool     `yaml:"synthetic,omitempty"`
	Entry     Entry    `yaml:",inline"`
	Meta      Metadata `yaml:",inline"`
}

// Report is the only artifact handed to the display layer.
type Report struct {
	View          View      `yaml:"view"`
	GeneratedAt   time.Time `yaml:"generatedAt"`
	TotalCPU      float64   `yaml:"totalCPU"`
	TotalMemoryKB uint64    `yaml:"totalMemoryKB"`
	SystemUsedKB  uint64    `yaml:"systemUsedKB"`
	ProcessCount  int       `yaml:"processCount"`
	Rows          []Row     `yaml:"rows"`
	Lines         []string  `yaml:"-"`
}
