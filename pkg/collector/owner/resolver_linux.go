//go:build linux
// +build linux

package owner

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/prometheus/procfs"
)

// DefaultProcRoot is where procfs is normally mounted.
const DefaultProcRoot = "/proc"

// Resolver reads the real uid from /proc/PID/status and maps it to an account name.
type Resolver struct {
	fs   procfs.FS
	root string
}

// Stubbed by tests.
var readStatus = os.ReadFile

// NewResolver opens procfs at root.
func NewResolver(root string) (*Resolver, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("opening procfs at %s: %w", root, err)
	}
	return &Resolver{fs: fs, root: root}, nil
}

// ResolveOwner returns the owner account of pid, or false when the process is
// gone, its status is unreadable or the uid has no account.
func (r *Resolver) ResolveOwner(pid uint32) (string, bool) {
	proc, err := r.fs.Proc(int(pid))
	if err != nil {
		logger.L().Debug("owner: process gone", helpers.Int("pid", int(pid)), helpers.Error(err))
		return "", false
	}
	status, err := proc.NewStatus()
	if err != nil {
		logger.L().Debug("owner: status unreadable", helpers.Int("pid", int(pid)), helpers.Error(err))
		return "", false
	}
	// procfs leaves UIDs zeroed when the Uid line is missing, which would read as root
	if !r.hasUIDField(pid) {
		logger.L().Debug("owner: status has no Uid field", helpers.Int("pid", int(pid)))
		return "", false
	}
	name, ok := nameForUID(status.UIDs[0])
	if !ok {
		logger.L().Debug("owner: uid has no account", helpers.Int("pid", int(pid)),
			helpers.String("uid", fmt.Sprintf("%d", status.UIDs[0])))
	}
	return name, ok
}

func (r *Resolver) hasUIDField(pid uint32) bool {
	data, err := readStatus(filepath.Join(r.root, strconv.FormatUint(uint64(pid), 10), "status"))
	if err != nil {
		return false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if rest, ok := bytes.CutPrefix(sc.Bytes(), []byte("Uid:")); ok {
			return len(bytes.Fields(rest)) > 0
		}
	}
	return false
}
