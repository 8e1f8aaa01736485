package udp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// SenderOptions controls send-side multicast socket options.
type SenderOptions struct {
	// TTL is the multicast hop limit. Zero keeps the kernel default (1).
	TTL int
	// Loopback delivers our own datagrams to listeners on this host. Off
	// for normal operation so a co-located receiver does not see them.
	Loopback bool
}

// Sender writes datagrams to a single multicast destination.
type Sender struct {
	dest string
	conn udpConn
}

func NewSender(dest string, opts SenderOptions) (*Sender, error) {
	return newSender(dest, opts, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newSender(dest string, opts SenderOptions, resolve resolveFunc, dial dialFunc) (*Sender, error) {
	addr, err := resolve("udp4", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	if err := setSendOptions(conn, opts); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Sender{dest: addr.String(), conn: conn}, nil
}

var setSendOptions = func(c udpConn, opts SenderOptions) error {
	uc, ok := c.(*net.UDPConn)
	if !ok {
		return nil
	}
	pc := ipv4.NewPacketConn(uc)
	if err := pc.SetMulticastLoopback(opts.Loopback); err != nil {
		return fmt.Errorf("set multicast loopback=%t: %w", opts.Loopback, err)
	}
	if opts.TTL > 0 {
		if err := pc.SetMulticastTTL(opts.TTL); err != nil {
			return fmt.Errorf("set multicast ttl=%d: %w", opts.TTL, err)
		}
	}
	return nil
}

func (s *Sender) Dest() string { return s.dest }

func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := s.conn.Write(payload)
	return err
}

func (s *Sender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
