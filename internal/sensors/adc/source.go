// Package adc turns MCP3008 readings into power and RSSI telemetry.
package adc

import (
	"fmt"
	"io"
	"log"
	"sync"

	"raspifpv/internal/sensors/mcp3008"
	"raspifpv/internal/spi"
	"raspifpv/internal/wire"
)

const (
	DefaultVoltageMax = 51.8
	DefaultCurrentMax = 89.4
	DefaultRSSIMin    = -20.0
	DefaultRSSIMax    = 0.0
)

// Config maps ADC channels to sensors. Each Max is the physical value at a
// full-scale reading.
type Config struct {
	Bus    int
	Device int

	VoltageChannel int
	VoltageMax     float64

	CurrentChannel int
	CurrentMax     float64

	RSSIChannel int
	RSSIMin     float64
	RSSIMax     float64
}

type channelReader interface {
	Normalized(channel int) (float64, error)
}

type openFunc func(bus, device int) (channelReader, io.Closer, error)

func openMCP3008(bus, device int) (channelReader, io.Closer, error) {
	dev, err := spi.Open(bus, device)
	if err != nil {
		return nil, nil, err
	}
	adc, err := mcp3008.New(dev)
	if err != nil {
		_ = dev.Close()
		return nil, nil, err
	}
	return adc, dev, nil
}

// Source implements telemetry.PowerSource and telemetry.SignalSource.
//
// The SPI device is opened on first use. If that fails the ADC is disabled
// for the life of the Source and both readings report no data.
type Source struct {
	cfg  Config
	open openFunc

	mu       sync.Mutex
	adc      channelReader
	closer   io.Closer
	disabled bool
	lastErr  string
}

func New(cfg Config) *Source {
	return &Source{cfg: cfg, open: openMCP3008}
}

func (s *Source) reader() channelReader {
	if s.adc != nil || s.disabled {
		return s.adc
	}
	adc, closer, err := s.open(s.cfg.Bus, s.cfg.Device)
	if err != nil {
		s.disabled = true
		log.Printf("adc open failed device=%s: %v (power and rssi telemetry disabled)", spi.Path(s.cfg.Bus, s.cfg.Device), err)
		return nil
	}
	s.adc, s.closer = adc, closer
	log.Printf("adc enabled device=%s", spi.Path(s.cfg.Bus, s.cfg.Device))
	return adc
}

func (s *Source) read(r channelReader, channel int) (float64, bool) {
	v, err := r.Normalized(channel)
	if err != nil {
		if msg := err.Error(); msg != s.lastErr {
			s.lastErr = msg
			log.Printf("adc read failed channel=%d: %v", channel, err)
		}
		return 0, false
	}
	s.lastErr = ""
	return v, true
}

// Power reports voltage and current, or no data while both read zero.
func (s *Source) Power() (wire.Power, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.reader()
	if r == nil {
		return wire.Power{}, false
	}
	vn, okV := s.read(r, s.cfg.VoltageChannel)
	an, okA := s.read(r, s.cfg.CurrentChannel)
	if !okV && !okA {
		return wire.Power{}, false
	}
	p := wire.Power{Voltage: vn * s.cfg.VoltageMax, Current: an * s.cfg.CurrentMax}
	if p.Voltage <= 0 && p.Current <= 0 {
		return wire.Power{}, false
	}
	return p, true
}

// Signal maps the RSSI channel linearly onto [RSSIMin, RSSIMax] dB.
func (s *Source) Signal() (wire.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.reader()
	if r == nil {
		return wire.Signal{}, false
	}
	n, ok := s.read(r, s.cfg.RSSIChannel)
	if !ok {
		return wire.Signal{}, false
	}
	return wire.Signal{RSSI: s.cfg.RSSIMin + n*(s.cfg.RSSIMax-s.cfg.RSSIMin)}, true
}

// Available reports whether the ADC has been opened successfully.
func (s *Source) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adc != nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.adc, s.closer = nil, nil
	if err != nil {
		return fmt.Errorf("adc close: %w", err)
	}
	return nil
}
