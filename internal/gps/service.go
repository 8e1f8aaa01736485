package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"raspifpv/internal/wire"
)

const (
	SourceNMEA = "nmea"
	SourceGPSD = "gpsd"

	DefaultBaud       = 9600
	DefaultStaleAfter = 5 * time.Second
)

// Config controls the GPS reader. Device may be empty to auto-detect the
// first /dev/ttyACM* or /dev/ttyUSB* node.
type Config struct {
	Enable bool

	// Source is SourceNMEA (direct serial, the default) or SourceGPSD.
	Source   string
	GPSDAddr string

	Device string
	Baud   int

	// StaleAfter bounds how old a fix may be before Position stops
	// reporting it. Zero means DefaultStaleAfter.
	StaleAfter time.Duration
}

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`
	Stale   bool `json:"stale"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	LatDeg     float64  `json:"lat_deg,omitempty"`
	LonDeg     float64  `json:"lon_deg,omitempty"`
	AltM       *float64 `json:"alt_m,omitempty"`
	SpeedMS    *float64 `json:"speed_ms,omitempty"`
	CourseDeg  *float64 `json:"course_deg,omitempty"`
	FixQuality *int     `json:"fix_quality,omitempty"`
	FixMode    *int     `json:"fix_mode,omitempty"`
	Satellites *int     `json:"satellites,omitempty"`
	HDOP       *float64 `json:"hdop,omitempty"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`

	fixAt time.Time
}

// lineState is the per-connection parser for one ingest path.
type lineState interface {
	applyLine(nowUTC time.Time, line string) (bool, error)
	snapshot() Snapshot
}

var (
	openSerialFunc = openSerial
	dialGPSDFunc   = dialGPSD
)

type Service struct {
	cfg        Config
	source     string
	staleAfter time.Duration
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config) *Service {
	src := strings.ToLower(strings.TrimSpace(cfg.Source))
	if src == "" {
		src = SourceNMEA
	}
	stale := cfg.StaleAfter
	if stale <= 0 {
		stale = DefaultStaleAfter
	}
	s := &Service{cfg: cfg, source: src, staleAfter: stale, now: time.Now}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: src, GPSDAddr: strings.TrimSpace(cfg.GPSDAddr), Device: cfg.Device, Baud: cfg.Baud})
	return s
}

// Start launches the reader. It is a no-op when disabled or already started.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch s.source {
	case SourceGPSD:
		return s.startGPSDLocked(ctx)
	case SourceNMEA:
		return s.startNMEALocked(ctx)
	default:
		return fmt.Errorf("gps source %q unsupported", s.source)
	}
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}
	baud := s.cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}

	f, err := openSerialFunc(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return fmt.Errorf("gps open %s: %w", device, err)
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.last.Store(Snapshot{Enabled: true, Source: SourceNMEA, Device: device, Baud: baud})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = f.Close() }()

		log.Printf("gps enabled source=nmea device=%s baud=%d", device, baud)
		err := s.consume(childCtx, f, &nmeaState{device: device, baud: baud})
		if childCtx.Err() == nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()
	return nil
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.last.Store(Snapshot{Enabled: true, Source: SourceGPSD, GPSDAddr: addr, Device: "gpsd"})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=gpsd addr=%s", addr)
		const minBackoff, maxBackoff = 250 * time.Millisecond, 10 * time.Second
		backoff := minBackoff
		st := newGPSDState(addr)

		for childCtx.Err() == nil {
			conn, err := dialGPSDFunc(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				select {
				case <-childCtx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = minBackoff

			s.mu.Lock()
			s.closer = conn
			s.mu.Unlock()

			if err := gpsdWatch(conn); err != nil {
				s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
			} else if err := s.consume(childCtx, conn, st); childCtx.Err() == nil {
				s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
			}
			_ = conn.Close()
		}
	}()
	return nil
}

// consume feeds lines from r into st until r fails or ctx is done.
func (s *Service) consume(ctx context.Context, r io.Reader, st lineState) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 256*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		updated, err := st.applyLine(s.now().UTC(), line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		if updated {
			s.last.Store(st.snapshot())
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *Service) Close() {
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

// Snapshot returns the latest receiver state with Stale evaluated now.
func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	snap := v.(Snapshot)
	snap.Stale = snap.Valid && s.now().Sub(snap.fixAt) > s.staleAfter
	return snap
}

// Position implements telemetry.PositionSource. It reports no data until a
// valid fix arrives and again once that fix goes stale.
func (s *Service) Position() (wire.Position, bool) {
	snap := s.Snapshot()
	if !snap.Valid || snap.Stale {
		return wire.Position{}, false
	}
	p := wire.Position{Latitude: snap.LatDeg, Longitude: snap.LonDeg}
	if snap.AltM != nil {
		p.Altitude = *snap.AltM
	}
	if snap.CourseDeg != nil {
		p.Bearing = *snap.CourseDeg
	}
	return p, true
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur, _ := s.last.Load().(Snapshot)
	cur.LastError = msg
	s.last.Store(cur)
}

func autoDetectDevice() string {
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			p := fmt.Sprintf("%s%d", prefix, i)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
