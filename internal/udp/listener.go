package udp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/ipv4"
)

// Listener receives datagrams addressed to an IPv4 multicast group.
type Listener struct {
	conn  *net.UDPConn
	pc    *ipv4.PacketConn
	group *net.UDPAddr
	ifi   *net.Interface
}

// Listen binds port on all addresses with address reuse, so several
// receivers on one host can share the group, and joins group on ifname (the
// system default interface when empty).
func Listen(ctx context.Context, group net.IP, port int, ifname string) (*Listener, error) {
	if group.To4() == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("group %v is not an IPv4 multicast address", group)
	}

	var ifi *net.Interface
	if ifname != "" {
		i, err := net.InterfaceByName(ifname)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", ifname, err)
		}
		ifi = i
	}

	lc := net.ListenConfig{Control: reuseAddr}
	c, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("bind port=%d: %w", port, err)
	}
	conn := c.(*net.UDPConn)

	pc := ipv4.NewPacketConn(conn)
	gaddr := &net.UDPAddr{IP: group}
	if err := pc.JoinGroup(ifi, gaddr); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join group=%s: %w", group, err)
	}

	return &Listener{conn: conn, pc: pc, group: gaddr, ifi: ifi}, nil
}

func (l *Listener) ReadFrom(p []byte) (int, net.Addr, error) {
	return l.conn.ReadFrom(p)
}

func (l *Listener) SetReadDeadline(t time.Time) error {
	return l.conn.SetReadDeadline(t)
}

func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Listener) Close() error {
	if l == nil || l.conn == nil {
		return nil
	}
	_ = l.pc.LeaveGroup(l.ifi, l.group)
	return l.conn.Close()
}
