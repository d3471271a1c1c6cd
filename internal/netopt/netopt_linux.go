//go:build linux

// Package netopt applies Linux socket tuning to validator sessions, the
// one latency-sensitive transport in the system: metric frames are small
// and frequent, and their send latency must stay below the scrape
// cadence.
package netopt

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// TuneValidatorSession disables Nagle's algorithm and enables TCP_QUICKACK
// on a freshly accepted validator connection, so small MetricSample/Action
// frames are not held back waiting to coalesce with a full segment.
func TuneValidatorSession(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(true); err != nil {
		return err
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
	if err != nil {
		return err
	}
	// TCP_QUICKACK is a best-effort hint; older kernels may reject it.
	_ = sockErr
	return nil
}
