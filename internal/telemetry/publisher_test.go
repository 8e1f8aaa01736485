package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspifpv/internal/udp"
	"raspifpv/internal/wire"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func (f *fakeSender) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) datagrams() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func newTestPublisher(t *testing.T, src Sources, opts PublisherOptions, fs *fakeSender) *Publisher {
	t.Helper()
	p, err := NewPublisher(DefaultMulticastAddress, DefaultTelemetryPort, src, opts)
	require.NoError(t, err)
	p.dial = func(dest string, o udp.SenderOptions) (datagramSender, error) {
		assert.Equal(t, "224.1.1.43:9001", dest)
		return fs, nil
	}
	t.Cleanup(p.Stop)
	return p
}

func TestNewPublisher_InvalidAddress(t *testing.T) {
	_, err := NewPublisher("192.168.1.20", DefaultTelemetryPort, Sources{}, PublisherOptions{})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NewPublisher("bogus", DefaultTelemetryPort, Sources{}, PublisherOptions{})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNewPublisher_DefaultInterval(t *testing.T) {
	p, err := NewPublisher(DefaultMulticastAddress, DefaultTelemetryPort, Sources{}, PublisherOptions{})
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, p.opts.Interval)
	assert.Equal(t, "224.1.1.43:9001", p.Dest())
}

func TestPublisher_TickOrderAndAvailability(t *testing.T) {
	fs := &fakeSender{}
	src := Sources{
		Power:    PowerFunc(func() (wire.Power, bool) { return wire.Power{Voltage: 12.6, Current: 3.2}, true }),
		Signal:   SignalFunc(func() (wire.Signal, bool) { return wire.Signal{}, false }),
		Position: PositionFunc(func() (wire.Position, bool) { return wire.Position{Latitude: 1, Longitude: 2}, true }),
	}
	p := newTestPublisher(t, src, PublisherOptions{}, fs)

	p.tick(fs)

	got := fs.datagrams()
	require.Len(t, got, 2)
	assert.Equal(t, wire.Encode(wire.Power{Voltage: 12.6, Current: 3.2}), got[0])
	assert.Equal(t, wire.Encode(wire.Position{Latitude: 1, Longitude: 2}), got[1])
	assert.Equal(t, uint64(2), p.Stats().Sent)
}

func TestPublisher_NilSourcesSendNothing(t *testing.T) {
	fs := &fakeSender{}
	ticks := 0
	p := newTestPublisher(t, Sources{}, PublisherOptions{OnTick: func(sent int) {
		ticks++
		assert.Equal(t, 0, sent)
	}}, fs)

	p.tick(fs)
	assert.Empty(t, fs.datagrams())
	assert.Equal(t, 1, ticks)
}

func TestPublisher_SendErrorIsCountedAndSkipped(t *testing.T) {
	fs := &fakeSender{sendErr: errors.New("network unreachable")}
	polled := 0
	src := Sources{
		Power:  PowerFunc(func() (wire.Power, bool) { polled++; return wire.Power{Voltage: 1}, true }),
		Signal: SignalFunc(func() (wire.Signal, bool) { polled++; return wire.Signal{RSSI: -1}, true }),
	}
	p := newTestPublisher(t, src, PublisherOptions{}, fs)

	p.tick(fs)
	p.tick(fs)

	st := p.Stats()
	assert.Equal(t, 4, polled)
	assert.Equal(t, uint64(4), st.SendErrors)
	assert.Equal(t, uint64(0), st.Sent)
	assert.Contains(t, st.LastError, "network unreachable")
}

func TestPublisher_RunsOnCadence(t *testing.T) {
	fs := &fakeSender{}
	var mu sync.Mutex
	ticks := 0
	src := Sources{Signal: SignalFunc(func() (wire.Signal, bool) { return wire.Signal{RSSI: -4}, true })}
	p := newTestPublisher(t, src, PublisherOptions{
		Interval: 5 * time.Millisecond,
		OnTick: func(int) {
			mu.Lock()
			ticks++
			mu.Unlock()
		},
	}, fs)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)

	waitFor(t, "3 ticks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 3
	})
	p.Stop()

	assert.False(t, p.Running())
	assert.GreaterOrEqual(t, len(fs.datagrams()), 3)
	fs.mu.Lock()
	assert.True(t, fs.closed)
	fs.mu.Unlock()
}

func TestPublisher_RestartsAfterParentCancel(t *testing.T) {
	first := &fakeSender{}
	second := &fakeSender{}
	dials := 0
	p, err := NewPublisher(DefaultMulticastAddress, DefaultTelemetryPort, Sources{}, PublisherOptions{Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	p.dial = func(string, udp.SenderOptions) (datagramSender, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	}
	t.Cleanup(p.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	waitFor(t, "loop exit", func() bool { return !p.Running() })
	waitFor(t, "first sender closed", func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		return first.closed
	})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.Equal(t, 2, dials)

	p.Stop()
	second.mu.Lock()
	assert.True(t, second.closed)
	second.mu.Unlock()
}

func TestPublisher_SetupFailure(t *testing.T) {
	p, err := NewPublisher(DefaultMulticastAddress, DefaultTelemetryPort, Sources{}, PublisherOptions{})
	require.NoError(t, err)
	p.dial = func(string, udp.SenderOptions) (datagramSender, error) {
		return nil, errors.New("no route")
	}

	err = p.Start(context.Background())
	assert.ErrorIs(t, err, ErrSocketSetup)
	assert.False(t, p.Running())
}

func TestPublisher_PassesSocketOptions(t *testing.T) {
	p, err := NewPublisher(DefaultMulticastAddress, DefaultTelemetryPort, Sources{}, PublisherOptions{TTL: 4})
	require.NoError(t, err)
	var got udp.SenderOptions
	p.dial = func(dest string, o udp.SenderOptions) (datagramSender, error) {
		got = o
		return &fakeSender{}, nil
	}
	require.NoError(t, p.Start(context.Background()))
	p.Stop()

	assert.Equal(t, udp.SenderOptions{TTL: 4, Loopback: false}, got)
}

func TestPublisher_SendErrorLogThrottle(t *testing.T) {
	p, err := NewPublisher(DefaultMulticastAddress, DefaultTelemetryPort, Sources{}, PublisherOptions{})
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	p.logSendError(wire.TagPower, errors.New("x"))
	first := p.lastLoggedAt

	now = now.Add(500 * time.Millisecond)
	p.logSendError(wire.TagPower, errors.New("x"))
	assert.Equal(t, first, p.lastLoggedAt)

	now = now.Add(600 * time.Millisecond)
	p.logSendError(wire.TagPower, errors.New("x"))
	assert.Equal(t, now, p.lastLoggedAt)
}
