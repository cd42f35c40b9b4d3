package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/srodi/procwatch/pkg/types"
)

// ErrProcessTable is returned when the process table itself cannot be listed.
var ErrProcessTable = errors.New("process table unavailable")

// Stubbed by tests.
var (
	listProcesses = process.ProcessesWithContext
	newProcess    = process.NewProcessWithContext
	virtualMemory = mem.VirtualMemoryWithContext
)

// Source reads the OS process table through gopsutil. It keeps one handle per
// live process so CPU usage is measured between consecutive snapshots.
type Source struct {
	mu      sync.Mutex
	handles map[int32]*tracked
}

type tracked struct {
	proc      *process.Process
	startTime int64
}

// NewSource returns an empty source; the first Acquire reports zero CPU for
// every process unless Prime was called before.
func NewSource() *Source {
	return &Source{handles: make(map[int32]*tracked)}
}

// Prime records a CPU baseline for every live process.
func (s *Source) Prime(ctx context.Context) error {
	_, err := s.Acquire(ctx)
	return err
}

// Acquire returns the current set of live processes. Processes that vanish or
// cannot be read mid-scan are left out.
func (s *Source) Acquire(ctx context.Context) (types.Snapshot, error) {
	procs, err := listProcesses(ctx)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: %w", ErrProcessTable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := types.Snapshot{
		Entries: make([]types.Entry, 0, len(procs)),
		TakenAt: time.Now(),
	}
	live := make(map[int32]*tracked, len(procs))
	skipped := 0
	for _, p := range procs {
		if _, dup := live[p.Pid]; dup {
			continue
		}
		t := s.reuse(ctx, p)
		entry, err := readEntry(ctx, t)
		if err != nil {
			skipped++
			continue
		}
		live[p.Pid] = t
		snap.Entries = append(snap.Entries, entry)
	}
	s.handles = live

	if vm, err := virtualMemory(ctx); err == nil {
		snap.SystemUsedKB = vm.Used / 1024
	} else {
		logger.L().Debug("system memory unavailable", helpers.Error(err))
	}

	logger.L().Debug("process snapshot acquired",
		helpers.Int("processes", len(snap.Entries)),
		helpers.Int("skipped", skipped))
	return snap, nil
}

// reuse returns the handle kept from the previous snapshot when it still
// refers to the same process lifetime.
func (s *Source) reuse(ctx context.Context, p *process.Process) *tracked {
	start, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		start = 0
	}
	if prev, ok := s.handles[p.Pid]; ok && prev.startTime == start {
		return prev
	}
	return &tracked{proc: p, startTime: start}
}

func readEntry(ctx context.Context, t *tracked) (types.Entry, error) {
	p := t.proc
	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return types.Entry{}, err
	}
	cpu, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		return types.Entry{}, err
	}
	entry := types.Entry{
		PID:        uint32(p.Pid),
		CPUPercent: cpu,
		MemoryKB:   memInfo.RSS / 1024,
		StartTime:  t.startTime,
	}
	// A missing parent is not fatal; the tree treats it as unknown.
	if ppid, err := p.PpidWithContext(ctx); err == nil && ppid > 0 {
		entry.PPID = uint32(ppid)
	}
	return entry, nil
}

// Describe reads the display name and executable path of pid. The name falls
// back to pid-<n> and the path to "" when they cannot be read.
func (s *Source) Describe(ctx context.Context, pid uint32) (string, string) {
	p := s.handle(ctx, pid)
	if p == nil {
		return fallbackName(pid), ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil || name == "" {
		name = fallbackName(pid)
	}
	exe, err := p.ExeWithContext(ctx)
	if err != nil {
		exe = ""
	}
	return name, exe
}

func (s *Source) handle(ctx context.Context, pid uint32) *process.Process {
	s.mu.Lock()
	t, ok := s.handles[int32(pid)]
	s.mu.Unlock()
	if ok {
		return t.proc
	}
	p, err := newProcess(ctx, int32(pid))
	if err != nil {
		return nil
	}
	return p
}

func fallbackName(pid uint32) string {
	if pid == 0 {
		return "idle"
	}
	return fmt.Sprintf("pid-%d", pid)
}
