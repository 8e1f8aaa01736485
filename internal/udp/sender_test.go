package udp

import (
	"context"
	"errors"
	"net"
	"testing"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

func TestNewSender_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	resolve := func(network, address string) (*net.UDPAddr, error) {
		return net.ResolveUDPAddr(network, address)
	}

	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	s, err := newSender("224.1.1.43:9001", SenderOptions{}, resolve, dial)
	if err != nil {
		t.Fatalf("newSender() error: %v", err)
	}
	defer s.Close()

	if gotNetwork != "udp4" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp4")
	}
	if gotRaddr == nil || gotRaddr.Port != 9001 || !gotRaddr.IP.Equal(net.IPv4(224, 1, 1, 43)) {
		t.Fatalf("raddr=%v want 224.1.1.43:9001", gotRaddr)
	}
	if s.Dest() != "224.1.1.43:9001" {
		t.Fatalf("dest=%q", s.Dest())
	}
}

func TestNewSender_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newSender("bad:addr", SenderOptions{}, resolve, dial)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestNewSender_OptionFailureClosesConn(t *testing.T) {
	optErr := errors.New("no loopback for you")
	old := setSendOptions
	setSendOptions = func(c udpConn, opts SenderOptions) error { return optErr }
	t.Cleanup(func() { setSendOptions = old })

	fc := &fakeConn{}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return fc, nil
	}

	_, err := newSender("224.1.1.43:9001", SenderOptions{}, net.ResolveUDPAddr, dial)
	if !errors.Is(err, optErr) {
		t.Fatalf("err=%v want %v", err, optErr)
	}
	if !fc.closed {
		t.Fatalf("expected conn closed after option failure")
	}
}

func TestSender_Send_EmptyNoWrite(t *testing.T) {
	fc := &fakeConn{}
	s := &Sender{dest: "x", conn: fc}

	if err := s.Send(nil); err != nil {
		t.Fatalf("Send(nil) error: %v", err)
	}
	if err := s.Send([]byte{}); err != nil {
		t.Fatalf("Send(empty) error: %v", err)
	}
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes, got %d", fc.writeHits)
	}
}

func TestSender_Send_WritesPayload(t *testing.T) {
	fc := &fakeConn{}
	s := &Sender{dest: "x", conn: fc}

	p := []byte{0x02, 0x01, 0x02, 0x03}
	if err := s.Send(p); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(fc.writes) != 1 || string(fc.writes[0]) != string(p) {
		t.Fatalf("writes=%v want [%v]", fc.writes, p)
	}
}

func TestSender_Send_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	s := &Sender{dest: "x", conn: &fakeConn{writeErr: wantErr}}

	err := s.Send([]byte{0x01})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
}

func TestSender_Close_NilConnNoPanic(t *testing.T) {
	s := &Sender{}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestListen_RejectsUnicastGroup(t *testing.T) {
	_, err := Listen(context.Background(), net.IPv4(10, 0, 0, 1), 0, "")
	if err == nil {
		t.Fatalf("expected error for unicast group")
	}
}
