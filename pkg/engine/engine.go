package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"

	"github.com/srodi/procwatch/pkg/report"
	"github.com/srodi/procwatch/pkg/schedule"
	"github.com/srodi/procwatch/pkg/tree"
	"github.com/srodi/procwatch/pkg/types"
)

// SnapshotSource returns the live process table.
type SnapshotSource interface {
	Acquire(ctx context.Context) (types.Snapshot, error)
}

// MetadataCache resolves per-process metadata once per process lifetime.
type MetadataCache interface {
	GetOrCompute(ctx context.Context, entry types.Entry) types.Metadata
	Prune(live mapset.Set[types.ProcessKey]) int
}

// Options tune what a refresh computes.
type Options struct {
	Interval    time.Duration
	SortBy      report.SortBy
	Filter      report.FilterConfig
	EvictExited bool
}

// Engine owns the monitoring state: active view, scheduler, metadata cache and
// the last published report. All methods are safe for concurrent use; at most
// one refresh runs at a time.
type Engine struct {
	source SnapshotSource
	cache  MetadataCache
	sched  *schedule.Scheduler
	opts   Options

	refreshMu sync.Mutex
	viewMu    sync.RWMutex
	view      types.View
	current   atomic.Pointer[types.Report]
}

// New creates an engine showing no view.
func New(source SnapshotSource, cache MetadataCache, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = types.DefaultRefreshInterval
	}
	if opts.SortBy == "" {
		opts.SortBy = report.SortCPU
	}
	e := &Engine{
		source: source,
		cache:  cache,
		sched:  schedule.New(opts.Interval),
		opts:   opts,
	}
	e.current.Store(&types.Report{})
	return e
}

// View returns the active view.
func (e *Engine) View() types.View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

// RequestView switches the active view and refreshes immediately.
func (e *Engine) RequestView(ctx context.Context, view types.View, now time.Time) (types.Report, error) {
	e.viewMu.Lock()
	e.view = view
	e.viewMu.Unlock()

	if view == types.ViewNone {
		// wait out a running refresh so its report cannot replace this one
		e.refreshMu.Lock()
		defer e.refreshMu.Unlock()
		empty := &types.Report{View: types.ViewNone, GeneratedAt: now}
		e.current.Store(empty)
		return *empty, nil
	}
	e.sched.Force()
	return e.RefreshIfDue(ctx, now)
}

// RefreshIfDue recomputes the report when the refresh interval elapsed, a
// refresh was forced, or the published report belongs to another view. It
// returns the current report either way. On error the previous report stays
// published.
func (e *Engine) RefreshIfDue(ctx context.Context, now time.Time) (types.Report, error) {
	if !e.due(now) {
		return e.CurrentReport(), nil
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()
	// a refresh that held the lock may have made this one unnecessary
	if !e.due(now) {
		return e.CurrentReport(), nil
	}

	view := e.View()
	started := time.Now()
	r, err := e.compute(ctx, view, now)
	e.sched.Mark(now)
	if err != nil {
		logger.L().Warning("refresh failed", helpers.String("view", view.String()), helpers.Error(err))
		return e.CurrentReport(), err
	}
	e.current.Store(&r)

	logger.L().Debug("refresh complete",
		helpers.String("view", view.String()),
		helpers.Int("processes", r.ProcessCount),
		helpers.String("took", time.Since(started).String()))
	return r, nil
}

func (e *Engine) due(now time.Time) bool {
	view := e.View()
	if view == types.ViewNone {
		return false
	}
	return e.sched.Due(now) || e.CurrentReport().View != view
}

// CurrentReport returns the last published report.
func (e *Engine) CurrentReport() types.Report {
	return *e.current.Load()
}

// Close drops the published report. The engine must not be used afterwards.
func (e *Engine) Close() error {
	e.current.Store(&types.Report{})
	return nil
}

func (e *Engine) compute(ctx context.Context, view types.View, now time.Time) (types.Report, error) {
	snap, err := e.source.Acquire(ctx)
	if err != nil {
		return types.Report{}, fmt.Errorf("engine: acquire snapshot: %w", err)
	}

	lookup := func(entry types.Entry) types.Metadata {
		return e.cache.GetOrCompute(ctx, entry)
	}

	unique := report.Dedup(snap.Entries)
	cpu, mem := report.Totals(unique)
	r := types.Report{
		View:          view,
		GeneratedAt:   now,
		TotalCPU:      cpu,
		TotalMemoryKB: mem,
		SystemUsedKB:  snap.SystemUsedKB,
		ProcessCount:  len(unique),
	}

	visible := report.FilterEntries(unique, lookup, e.opts.Filter)
	var body []string
	switch view {
	case types.ViewTree:
		r.Rows = tree.Render(tree.Build(visible), lookup)
		body = tree.Lines(r.Rows)
	default:
		r.Rows = report.ListRows(visible, lookup, e.opts.SortBy)
		body = report.ListLines(r.Rows)
	}
	r.Lines = append(report.Header(r), body...)

	if e.opts.EvictExited {
		live := mapset.NewThreadUnsafeSetWithSize[types.ProcessKey](len(unique))
		for _, entry := range unique {
			live.Add(entry.Key())
		}
		if n := e.cache.Prune(live); n > 0 {
			logger.L().Debug("evicted metadata of exited processes", helpers.Int("evicted", n))
		}
	}
	return r, nil
}
