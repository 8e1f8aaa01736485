package gps

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"raspifpv/internal/wire"
)

func TestService_ConsumeAndPosition(t *testing.T) {
	s := New(Config{Enable: true})
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if _, ok := s.Position(); ok {
		t.Fatalf("position before fix must be unavailable")
	}

	input := strings.Join([]string{
		"garbage",
		nmeaLine(ggaPayload),
		"$GPRMC,bad*00",
		nmeaLine(rmcPayload),
	}, "\r\n")
	err := s.consume(context.Background(), strings.NewReader(input), &nmeaState{device: "test"})
	if err == nil {
		t.Fatalf("expected EOF")
	}

	p, ok := s.Position()
	if !ok {
		t.Fatalf("expected position, snapshot=%+v", s.Snapshot())
	}
	if p.Altitude != 545.4 || p.Bearing != 84.4 {
		t.Fatalf("position=%+v", p)
	}
	var _ wire.Sample = p
}

func TestService_StaleFix(t *testing.T) {
	s := New(Config{Enable: true, StaleAfter: time.Second})
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.consume(context.Background(), strings.NewReader(nmeaLine(rmcPayload)), &nmeaState{})
	if _, ok := s.Position(); !ok {
		t.Fatalf("fresh fix must be available")
	}

	now = now.Add(2 * time.Second)
	if _, ok := s.Position(); ok {
		t.Fatalf("stale fix must be unavailable")
	}
	if !s.Snapshot().Stale {
		t.Fatalf("snapshot should report stale")
	}
}

func TestService_ParseErrorRecorded(t *testing.T) {
	s := New(Config{Enable: true})
	_ = s.consume(context.Background(), strings.NewReader("$GPRMC,x*00"), &nmeaState{})
	if got := s.Snapshot().LastError; !strings.Contains(got, "checksum mismatch") {
		t.Fatalf("last_error=%q", got)
	}
}

func TestService_DisabledStartIsNoop(t *testing.T) {
	s := New(Config{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Close()
}

func TestService_UnknownSource(t *testing.T) {
	s := New(Config{Enable: true, Source: "carrier-pigeon"})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_StartNMEAOverPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()

	orig := openSerialFunc
	openSerialFunc = func(path string, baud int) (*os.File, error) {
		if path != "/dev/ttyTEST" || baud != DefaultBaud {
			t.Errorf("path=%s baud=%d", path, baud)
		}
		return r, nil
	}
	defer func() { openSerialFunc = orig }()

	s := New(Config{Enable: true, Device: "/dev/ttyTEST"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := w.WriteString(nmeaLine(rmcPayload) + "\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Position(); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := s.Position(); !ok {
		t.Fatalf("no position from pipe, snapshot=%+v", s.Snapshot())
	}
	s.Close()
}
