//go:build !linux

package netopt

import "net"

// TuneValidatorSession is a no-op on non-Linux platforms.
func TuneValidatorSession(conn net.Conn) error {
	return nil
}
