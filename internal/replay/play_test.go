package replay

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeSleeper struct {
	slept []time.Duration
	err   error
}

func (fs *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	fs.slept = append(fs.slept, d)
	return fs.err
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	var got [][]byte
	fs := &fakeSleeper{}

	recs := []Record{
		{At: 1 * time.Second},
		{At: 1 * time.Second, Datagram: []byte{0xAA}},
		{At: 1*time.Second + 100*time.Nanosecond, Datagram: []byte{0xBB}},
		{At: 2 * time.Second},
		{At: 2*time.Second + 50*time.Nanosecond, Datagram: []byte{0xCC}},
	}

	err := Play(context.Background(), recs, 1.0, false, fs, func(b []byte) error {
		got = append(got, append([]byte(nil), b...))
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	want := [][]byte{{0xAA}, {0xBB}, {0xCC}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("datagrams = %x, want %x", got, want)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Datagram: []byte{0x01}},
		{At: 100 * time.Nanosecond, Datagram: []byte{0x02}},
	}
	if err := Play(context.Background(), recs, 2.0, false, fs, func([]byte) error { return nil }); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidArgs(t *testing.T) {
	recs := []Record{{At: 0, Datagram: []byte{0x01}}}
	nop := func([]byte) error { return nil }
	if err := Play(context.Background(), recs, 0, false, nil, nop); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := Play(context.Background(), recs, 1, false, nil, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
	if err := Play(context.Background(), nil, 1, false, nil, nop); err == nil {
		t.Fatalf("expected error for no records")
	}
}

func TestPlay_LoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recs := []Record{{Datagram: []byte{0x01}}}
	sent := 0
	err := Play(ctx, recs, 1, true, &fakeSleeper{}, func([]byte) error {
		sent++
		if sent == 5 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if sent != 5 {
		t.Fatalf("sent=%d want 5", sent)
	}
}

func TestPlay_SleepErrorStops(t *testing.T) {
	boom := errors.New("boom")
	recs := []Record{
		{At: 0, Datagram: []byte{0x01}},
		{At: time.Second, Datagram: []byte{0x02}},
	}
	sent := 0
	err := Play(context.Background(), recs, 1, false, &fakeSleeper{err: boom}, func([]byte) error { sent++; return nil })
	if !errors.Is(err, boom) || sent != 1 {
		t.Fatalf("err=%v sent=%d", err, sent)
	}
}

func TestRealSleeper_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (realSleeper{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
