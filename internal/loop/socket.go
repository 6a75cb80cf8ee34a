// Package loop implements spec.md §4.8's PacketLoop (C8): one UDP socket
// per admin-active interface, a unified timer wheel, ordered drain, and
// SPF debounce. The socket wrapper is grounded directly on the teacher's
// `internal/liveness/udp.go` UDPConn (ipv4.PacketConn with per-packet
// interface/dst control messages), adapted from a single shared listener
// to one broadcast-capable socket per interface.
package loop

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// socket is one admin-active interface's UDP endpoint: bound to the
// interface's own IPv4 for receive, broadcast-enabled for send.
type socket struct {
	ifaceName string
	raw       *net.UDPConn
	pc        *ipv4.PacketConn
	broadcast *net.UDPAddr
}

func newSocket(ifaceName string, localIP net.IP, broadcastIP net.IP, port int) (*socket, error) {
	laddr := &net.UDPAddr{IP: localIP, Port: port}
	raw, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("loop: listen %s: %w", ifaceName, err)
	}
	if err := enableBroadcast(raw); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("loop: enable broadcast on %s: %w", ifaceName, err)
	}

	pc := ipv4.NewPacketConn(raw)
	if err := pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst|ipv4.FlagSrc, true); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("loop: set control message on %s: %w", ifaceName, err)
	}

	return &socket{
		ifaceName: ifaceName,
		raw:       raw,
		pc:        pc,
		broadcast: &net.UDPAddr{IP: broadcastIP, Port: port},
	}, nil
}

// readFrom blocks for the next datagram, returning its payload and the
// sender's IPv4 address (spec.md §4.8 step 1's "drain ready sockets").
func (s *socket) readFrom(buf []byte) (n int, srcIPv4 string, err error) {
	n, _, raddr, err := s.pc.ReadFrom(buf)
	if err != nil {
		return 0, "", err
	}
	ua, _ := raddr.(*net.UDPAddr)
	if ua == nil {
		return n, "", nil
	}
	return n, ua.IP.String(), nil
}

// sendUnicast implements flood.Sender: iface is ignored (this socket is
// already pinned to one interface), dest is the peer's IPv4 address.
func (s *socket) sendUnicast(destIPv4 string, port int, frame []byte) error {
	_, err := s.raw.WriteToUDP(frame, &net.UDPAddr{IP: net.ParseIP(destIPv4), Port: port})
	return err
}

// sendBroadcast sends frame to this interface's broadcast address, used
// for HELLO (spec.md §4.8's initial-state broadcast).
func (s *socket) sendBroadcast(frame []byte) error {
	_, err := s.raw.WriteToUDP(frame, s.broadcast)
	return err
}

func (s *socket) close() error { return s.raw.Close() }
