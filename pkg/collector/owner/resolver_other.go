//go:build !linux
// +build !linux

package owner

import (
	"context"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultProcRoot is ignored outside linux.
const DefaultProcRoot = ""

// Resolver asks gopsutil for the real uid on platforms without procfs.
type Resolver struct{}

// NewResolver never fails outside linux.
func NewResolver(string) (*Resolver, error) {
	return &Resolver{}, nil
}

// ResolveOwner returns the owner account of pid, or false when it cannot be determined.
func (r *Resolver) ResolveOwner(pid uint32) (string, bool) {
	ctx := context.Background()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", false
	}
	uids, err := p.UidsWithContext(ctx)
	if err != nil || len(uids) == 0 {
		logger.L().Debug("owner: uid unreadable", helpers.Int("pid", int(pid)))
		return "", false
	}
	return nameForUID(uint64(uids[0]))
}
