//go:build !linux

package loop

import "net"

// enableBroadcast is a no-op outside Linux; P-OSPF targets Linux routers
// (spec.md's kernel RIB integration already requires it via netlink).
func enableBroadcast(conn *net.UDPConn) error { return nil }
