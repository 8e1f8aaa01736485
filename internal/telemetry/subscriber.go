package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"raspifpv/internal/udp"
	"raspifpv/internal/wire"
)

// DefaultReadTimeout bounds each blocking receive so a stop request is seen
// promptly even if closing the socket does not wake the reader.
const DefaultReadTimeout = 50 * time.Millisecond

// Observer is called on the listener goroutine with every decoded sample,
// after the snapshot has been updated. It must return quickly: the next
// datagram is not read until it does.
type Observer func(sample wire.Sample)

type packetConn interface {
	ReadFrom(p []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type listenFunc func(ctx context.Context, group net.IP, port int, ifname string) (packetConn, error)

func listenMulticast(ctx context.Context, group net.IP, port int, ifname string) (packetConn, error) {
	l, err := udp.Listen(ctx, group, port, ifname)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// SubscriberStats counts listener activity since construction.
type SubscriberStats struct {
	Running   bool   `json:"running"`
	Received  uint64 `json:"received"`
	Dropped   uint64 `json:"dropped"`
	LastError string `json:"last_error,omitempty"`
	LastRxUTC string `json:"last_rx_utc,omitempty"`
}

// Subscriber receives telemetry datagrams from a multicast group and keeps
// the latest Snapshot.
type Subscriber struct {
	group       net.IP
	port        int
	iface       string
	readTimeout time.Duration
	listen      listenFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closer packetConn

	last     atomic.Value // Snapshot
	observer atomic.Pointer[Observer]
	running  atomic.Bool

	received atomic.Uint64
	dropped  atomic.Uint64
	lastRx   atomic.Int64
	lastErr  atomic.Value // string
}

func NewSubscriber(address string, port int) (*Subscriber, error) {
	ip, err := parseEndpoint(address, port)
	if err != nil {
		return nil, err
	}
	s := &Subscriber{
		group:       ip,
		port:        port,
		readTimeout: DefaultReadTimeout,
		listen:      listenMulticast,
	}
	s.last.Store(Snapshot{})
	s.lastErr.Store("")
	return s, nil
}

// SetInterface joins the group on the named interface instead of the system
// default. It takes effect on the next Start.
func (s *Subscriber) SetInterface(name string) {
	s.mu.Lock()
	s.iface = name
	s.mu.Unlock()
}

// SetObserver registers fn, replacing any previous observer. nil removes it.
func (s *Subscriber) SetObserver(fn Observer) {
	if fn == nil {
		s.observer.Store(nil)
		return
	}
	s.observer.Store(&fn)
}

func (s *Subscriber) Addr() string {
	return net.JoinHostPort(s.group.String(), fmt.Sprint(s.port))
}

// Start opens the socket, joins the group and launches the listener. Socket
// errors are returned wrapped in ErrSocketSetup and leave the subscriber
// stopped.
func (s *Subscriber) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		if s.running.Load() {
			return ErrAlreadyRunning
		}
		// The previous listener died on a socket error; reap it.
		s.cancel()
		s.cancel = nil
		s.closer = nil
		s.wg.Wait()
	}

	conn, err := s.listen(ctx, s.group, s.port, s.iface)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSocketSetup, err)
		s.lastErr.Store(err.Error())
		log.Printf("telemetry rx setup failed group=%s port=%d: %v", s.group, s.port, err)
		return err
	}
	s.closer = conn

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		defer func() { _ = conn.Close() }()

		log.Printf("telemetry rx listening group=%s port=%d", s.group, s.port)
		s.loop(childCtx, conn)
	}()
	return nil
}

func (s *Subscriber) loop(ctx context.Context, conn packetConn) {
	var buf [wire.MaxDatagramLen]byte
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		n, _, err := conn.ReadFrom(buf[:])
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
				continue
			}
			s.lastErr.Store(fmt.Sprintf("read failed: %v", err))
			log.Printf("telemetry rx read failed group=%s port=%d: %v", s.group, s.port, err)
			return
		}

		sample, err := wire.Decode(buf[:n])
		if err != nil {
			s.dropped.Add(1)
			continue
		}
		s.apply(sample)

		if obs := s.observer.Load(); obs != nil {
			(*obs)(sample)
		}
	}
}

func (s *Subscriber) apply(sample wire.Sample) {
	// Only the listener goroutine writes, so load-modify-store is safe.
	s.last.Store(s.Snapshot().Apply(sample))
	s.received.Add(1)
	s.lastRx.Store(time.Now().UnixNano())
}

// Stop signals the listener and waits for it to exit. It is a no-op when not
// running.
func (s *Subscriber) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

// Running reports whether the listener goroutine is alive. It turns false on
// its own if the socket fails after Start.
func (s *Subscriber) Running() bool { return s.running.Load() }

// Snapshot returns a consistent copy of the latest telemetry.
func (s *Subscriber) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Subscriber) Stats() SubscriberStats {
	st := SubscriberStats{
		Running:   s.running.Load(),
		Received:  s.received.Load(),
		Dropped:   s.dropped.Load(),
		LastError: s.lastErr.Load().(string),
	}
	if ns := s.lastRx.Load(); ns != 0 {
		st.LastRxUTC = time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
	}
	return st
}
