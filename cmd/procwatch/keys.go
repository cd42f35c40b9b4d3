//go:build linux

package main

import (
	"context"
	"io"

	"github.com/srodi/procwatch/pkg/types"
)

type keyAction int

const (
	keyIgnored keyAction = iota
	keyView
	keyQuit
)

// decodeKey maps a key press to what the driver should do with it.
func decodeKey(b byte) (keyAction, types.View) {
	switch b {
	case 'l', 'L':
		return keyView, types.ViewList
	case 't', 'T':
		return keyView, types.ViewTree
	case 'h', 'H':
		return keyView, types.ViewNone
	case 'q', 'Q', 3: // 3 is Ctrl+C
		return keyQuit, types.ViewNone
	}
	return keyIgnored, types.ViewNone
}

// readKeys forwards single bytes from r until it fails or ctx is done.
func readKeys(ctx context.Context, r io.Reader) <-chan byte {
	keys := make(chan byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := r.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			select {
			case keys <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys
}
