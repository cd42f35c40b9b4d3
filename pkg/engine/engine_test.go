package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/procwatch/pkg/metadata"
	"github.com/srodi/procwatch/pkg/report"
	"github.com/srodi/procwatch/pkg/types"
)

type fakeSource struct {
	mu    sync.Mutex
	snaps []types.Snapshot
	errs  map[int]error
	calls atomic.Int32
}

func (f *fakeSource) Acquire(context.Context) (types.Snapshot, error) {
	n := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[n]; ok {
		return types.Snapshot{}, err
	}
	if n >= len(f.snaps) {
		n = len(f.snaps) - 1
	}
	return f.snaps[n], nil
}

type fakeDescriber struct{}

func (fakeDescriber) Describe(_ context.Context, pid uint32) (string, string) {
	names := map[uint32]string{1: "init", 2: "sh", 3: "kworker/0:1"}
	if name, ok := names[pid]; ok {
		return name, "/bin/" + name
	}
	return fmt.Sprintf("pid-%d", pid), ""
}

type countingResolver struct {
	mu    sync.Mutex
	calls map[uint32]int
}

func (r *countingResolver) ResolveOwner(pid uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[uint32]int)
	}
	r.calls[pid]++
	if pid == 2 {
		return "", false
	}
	return "root", true
}

func twoProcesses() types.Snapshot {
	return types.Snapshot{Entries: []types.Entry{
		{PID: 1, PPID: 0, CPUPercent: 10.0, MemoryKB: 1000},
		{PID: 2, PPID: 1, CPUPercent: 5.0, MemoryKB: 500},
	}}
}

func newEngine(src *fakeSource, opts Options) (*Engine, *countingResolver, *metadata.Cache) {
	res := &countingResolver{}
	cache := metadata.NewCache(fakeDescriber{}, res)
	return New(src, cache, opts), res, cache
}

func lineFor(t *testing.T, lines []string, marker string) string {
	t.Helper()
	for _, l := range lines {
		if strings.Contains(l, marker) {
			return l
		}
	}
	t.Fatalf("no line contains %q in %q", marker, lines)
	return ""
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}

func TestTreeViewEndToEnd(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{})
	t0 := time.Unix(1_700_000_000, 0)

	r, err := eng.RequestView(context.Background(), types.ViewTree, t0)
	require.NoError(t, err)

	assert.Equal(t, types.ViewTree, r.View)
	assert.InDelta(t, 15.0, r.TotalCPU, 1e-9)
	assert.EqualValues(t, 1500, r.TotalMemoryKB)
	assert.Equal(t, 2, r.ProcessCount)
	assert.Equal(t, "  Total CPU used: 15.00%", r.Lines[0])
	assert.Contains(t, r.Lines[1], "1500 KB")

	parent := lineFor(t, r.Lines, "- init")
	child := lineFor(t, r.Lines, "- sh")
	assert.Equal(t, indentOf(parent)+2, indentOf(child))
	assert.Contains(t, child, "Unknown")
	assert.Equal(t, r, eng.CurrentReport())
}

func TestListViewEndToEnd(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{})

	r, err := eng.RequestView(context.Background(), types.ViewList, time.Now())
	require.NoError(t, err)
	require.Len(t, r.Rows, 2)
	assert.EqualValues(t, 1, r.Rows[0].Entry.PID, "sorted by cpu")
	assert.Equal(t, "root", r.Rows[0].Meta.Owner)
	lineFor(t, r.Lines, "/bin/sh")
}

func TestRefreshIfDueThrottles(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{Interval: 5 * time.Second})
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	first, err := eng.RequestView(ctx, types.ViewList, t0)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())

	same, err := eng.RefreshIfDue(ctx, t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, first.GeneratedAt, same.GeneratedAt)

	next, err := eng.RefreshIfDue(ctx, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
	assert.Equal(t, t0.Add(5*time.Second), next.GeneratedAt)
}

func TestViewSwitchForcesRefresh(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{})
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	_, err := eng.RequestView(ctx, types.ViewList, t0)
	require.NoError(t, err)
	r, err := eng.RequestView(ctx, types.ViewTree, t0.Add(time.Second))
	require.NoError(t, err)

	assert.EqualValues(t, 2, src.calls.Load())
	assert.Equal(t, types.ViewTree, r.View)
	assert.Equal(t, types.ViewTree, eng.View())
}

func TestHomeViewNeverRefreshes(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{})
	ctx := context.Background()

	r, err := eng.RefreshIfDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, r.Lines)

	_, err = eng.RequestView(ctx, types.ViewList, time.Now())
	require.NoError(t, err)
	r, err = eng.RequestView(ctx, types.ViewNone, time.Now())
	require.NoError(t, err)
	assert.Equal(t, types.ViewNone, r.View)
	assert.Empty(t, r.Rows)

	_, err = eng.RefreshIfDue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestOwnerResolvedOncePerProcess(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, res, _ := newEngine(src, Options{Interval: time.Second})
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	_, err := eng.RequestView(ctx, types.ViewTree, t0)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := eng.RefreshIfDue(ctx, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	_, err = eng.RequestView(ctx, types.ViewList, t0.Add(6*time.Second))
	require.NoError(t, err)

	assert.EqualValues(t, 7, src.calls.Load())
	assert.Equal(t, map[uint32]int{1: 1, 2: 1}, res.calls)
}

func TestAcquireFailureKeepsPreviousReport(t *testing.T) {
	boom := errors.New("proc not mounted")
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}, errs: map[int]error{1: boom}}
	eng, _, _ := newEngine(src, Options{})
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	good, err := eng.RequestView(ctx, types.ViewList, t0)
	require.NoError(t, err)

	r, err := eng.RefreshIfDue(ctx, t0.Add(10*time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "acquire snapshot")
	assert.Equal(t, good, r)
	assert.Equal(t, good, eng.CurrentReport())

	recovered, err := eng.RefreshIfDue(ctx, t0.Add(20*time.Second))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(20*time.Second), recovered.GeneratedAt)
}

func TestConcurrentTicksRefreshOnce(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{})
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	_, err := eng.RequestView(ctx, types.ViewList, t0)
	require.NoError(t, err)

	tick := t0.Add(5 * time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = eng.RefreshIfDue(ctx, tick)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 2, src.calls.Load())
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) Acquire(ctx context.Context) (types.Snapshot, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return types.Snapshot{}, ctx.Err()
	}
	return twoProcesses(), nil
}

func TestHomeSwitchDuringRefreshWins(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	eng := New(src, metadata.NewCache(fakeDescriber{}, &countingResolver{}), Options{})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	listDone := make(chan struct{})
	go func() {
		defer close(listDone)
		_, _ = eng.RequestView(ctx, types.ViewList, now)
	}()
	<-src.started

	homeDone := make(chan struct{})
	go func() {
		defer close(homeDone)
		_, _ = eng.RequestView(ctx, types.ViewNone, now)
	}()
	select {
	case <-homeDone:
		t.Fatal("home view published while a refresh was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.release)
	<-listDone
	<-homeDone

	assert.Equal(t, types.ViewNone, eng.View())
	assert.Equal(t, types.ViewNone, eng.CurrentReport().View)
	assert.Empty(t, eng.CurrentReport().Rows)
}

func TestEvictExitedPrunesCache(t *testing.T) {
	after := types.Snapshot{Entries: []types.Entry{{PID: 1, CPUPercent: 1, MemoryKB: 10}}}
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses(), after}}
	eng, _, cache := newEngine(src, Options{EvictExited: true})
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	_, err := eng.RequestView(ctx, types.ViewList, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	_, err = eng.RefreshIfDue(ctx, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestHideKernelKeepsTotals(t *testing.T) {
	snap := twoProcesses()
	snap.Entries = append(snap.Entries, types.Entry{PID: 3, PPID: 0, CPUPercent: 1, MemoryKB: 0})
	src := &fakeSource{snaps: []types.Snapshot{snap}}
	eng, _, _ := newEngine(src, Options{Filter: report.FilterConfig{HideKernel: true}})

	r, err := eng.RequestView(context.Background(), types.ViewTree, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 16.0, r.TotalCPU, 1e-9)
	assert.Equal(t, 3, r.ProcessCount)
	for _, row := range r.Rows {
		assert.NotEqual(t, uint32(3), row.Entry.PID)
	}
}

func TestDuplicateRecordsCountedOnce(t *testing.T) {
	snap := twoProcesses()
	snap.Entries = append(snap.Entries, types.Entry{PID: 2, PPID: 1, CPUPercent: 5.0, MemoryKB: 500})
	src := &fakeSource{snaps: []types.Snapshot{snap}}
	eng, _, _ := newEngine(src, Options{})

	r, err := eng.RequestView(context.Background(), types.ViewList, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 15.0, r.TotalCPU, 1e-9)
	assert.EqualValues(t, 1500, r.TotalMemoryKB)
	assert.Len(t, r.Rows, 2)
}

func TestCloseResetsReport(t *testing.T) {
	src := &fakeSource{snaps: []types.Snapshot{twoProcesses()}}
	eng, _, _ := newEngine(src, Options{})
	_, err := eng.RequestView(context.Background(), types.ViewList, time.Now())
	require.NoError(t, err)
	require.NoError(t, eng.Close())
	assert.Empty(t, eng.CurrentReport().Lines)
}
