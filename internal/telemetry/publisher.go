package telemetry

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"raspifpv/internal/udp"
	"raspifpv/internal/wire"
)

// DefaultInterval is the sensor polling cadence.
const DefaultInterval = 100 * time.Millisecond

type datagramSender interface {
	Send(p []byte) error
	Close() error
}

type dialSenderFunc func(dest string, opts udp.SenderOptions) (datagramSender, error)

func dialMulticast(dest string, opts udp.SenderOptions) (datagramSender, error) {
	s, err := udp.NewSender(dest, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PublisherOptions tunes the send loop. The zero value is the normal
// configuration.
type PublisherOptions struct {
	// Interval defaults to DefaultInterval.
	Interval time.Duration
	TTL      int
	// Loopback keeps multicast loopback enabled. Only useful when a receiver
	// on the same host must see the traffic.
	Loopback bool
	// OnTick is called after each tick with the number of datagrams sent.
	OnTick func(sent int)
}

type PublisherStats struct {
	Running    bool   `json:"running"`
	Ticks      uint64 `json:"ticks"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
	LastError  string `json:"last_error,omitempty"`
}

// Publisher polls its Sources on a fixed cadence and sends every available
// sample to the multicast group. Delivery is best effort: a failed send is
// logged and the sample is dropped.
type Publisher struct {
	dest    string
	sources Sources
	opts    PublisherOptions
	dial    dialSenderFunc
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	running    atomic.Bool
	ticks      atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	lastErr    atomic.Value // string

	// Owned by the send goroutine.
	lastLogged   string
	lastLoggedAt time.Time
}

func NewPublisher(address string, port int, sources Sources, opts PublisherOptions) (*Publisher, error) {
	ip, err := parseEndpoint(address, port)
	if err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	p := &Publisher{
		dest:    net.JoinHostPort(ip.String(), strconv.Itoa(port)),
		sources: sources,
		opts:    opts,
		dial:    dialMulticast,
		now:     time.Now,
	}
	p.lastErr.Store("")
	return p, nil
}

func (p *Publisher) Dest() string { return p.dest }

func (p *Publisher) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		if p.running.Load() {
			return ErrAlreadyRunning
		}
		// The parent context ended the previous run; reap it.
		p.cancel()
		p.cancel = nil
		p.wg.Wait()
	}

	conn, err := p.dial(p.dest, udp.SenderOptions{TTL: p.opts.TTL, Loopback: p.opts.Loopback})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSocketSetup, err)
		p.lastErr.Store(err.Error())
		log.Printf("telemetry tx setup failed dest=%s: %v", p.dest, err)
		return err
	}
	childCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		defer func() { _ = conn.Close() }()

		log.Printf("telemetry tx sending dest=%s interval=%s", p.dest, p.opts.Interval)

		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		for {
			p.tick(conn)
			select {
			case <-childCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (p *Publisher) tick(conn datagramSender) {
	var buf [wire.MaxDatagramLen]byte
	sent := 0
	send := func(s wire.Sample) {
		if err := conn.Send(wire.AppendEncode(buf[:0], s)); err != nil {
			p.sendErrors.Add(1)
			p.logSendError(s.Tag(), err)
			return
		}
		sent++
	}

	if src := p.sources.Power; src != nil {
		if v, ok := src.Power(); ok {
			send(v)
		}
	}
	if src := p.sources.Signal; src != nil {
		if v, ok := src.Signal(); ok {
			send(v)
		}
	}
	if src := p.sources.Position; src != nil {
		if v, ok := src.Position(); ok {
			send(v)
		}
	}

	p.ticks.Add(1)
	p.sent.Add(uint64(sent))
	if p.opts.OnTick != nil {
		p.opts.OnTick(sent)
	}
}

// logSendError logs at most once per second unless the message changes; a
// dead link would otherwise log every tick.
func (p *Publisher) logSendError(tag wire.Tag, err error) {
	msg := fmt.Sprintf("send %s failed: %v", tag, err)
	p.lastErr.Store(msg)
	now := p.now()
	if msg == p.lastLogged && now.Sub(p.lastLoggedAt) < time.Second {
		return
	}
	p.lastLogged = msg
	p.lastLoggedAt = now
	log.Printf("telemetry tx %s dest=%s", msg, p.dest)
}

// Stop halts the send loop and waits for it to exit.
func (p *Publisher) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Publisher) Running() bool { return p.running.Load() }

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Running:    p.running.Load(),
		Ticks:      p.ticks.Load(),
		Sent:       p.sent.Load(),
		SendErrors: p.sendErrors.Load(),
		LastError:  p.lastErr.Load().(string),
	}
}
