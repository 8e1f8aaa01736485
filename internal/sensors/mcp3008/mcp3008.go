package mcp3008

import (
	"fmt"

	"raspifpv/internal/spi"
)

// Minimal MCP3008 driver: 8 channel, 10-bit ADC, single-ended reads only.

const (
	Channels = 8
	MaxValue = 1023

	startBit    = 0x01
	singleEnded = 0x08
)

type Device struct {
	dev xfer
}

type xfer interface {
	Tx(w, r []byte) error
}

func New(dev *spi.Device) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mcp3008: dev is nil")
	}
	return newWithXfer(dev)
}

func newWithXfer(dev xfer) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mcp3008: dev is nil")
	}
	return &Device{dev: dev}, nil
}

// Read returns the raw conversion for channel in [0, MaxValue].
func (d *Device) Read(channel int) (int, error) {
	if channel < 0 || channel >= Channels {
		return 0, fmt.Errorf("mcp3008: channel %d out of range", channel)
	}

	// Start bit, then SGL/DIFF=1 and the channel in the high nibble. The
	// result's top two bits arrive in rx[1], the low byte in rx[2].
	w := []byte{startBit, byte(singleEnded+channel) << 4, 0x00}
	r := make([]byte, len(w))
	if err := d.dev.Tx(w, r); err != nil {
		return 0, fmt.Errorf("mcp3008: read channel %d: %w", channel, err)
	}
	return int(r[1]&0x03)<<8 | int(r[2]), nil
}

// Normalized returns the conversion scaled into [0, 1].
func (d *Device) Normalized(channel int) (float64, error) {
	v, err := d.Read(channel)
	if err != nil {
		return 0, err
	}
	return float64(v) / MaxValue, nil
}
