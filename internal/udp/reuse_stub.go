//go:build !linux

package udp

import "syscall"

// Address reuse is only configured on Linux; elsewhere a second receiver on
// the same port fails to bind.
func reuseAddr(network, address string, rc syscall.RawConn) error {
	return nil
}
