//go:build !linux

package spi

import "fmt"

type Device struct{}

func Open(bus, device int) (*Device, error) {
	return nil, fmt.Errorf("spi: unsupported OS (need linux)")
}

func (d *Device) Path() string         { return "" }
func (d *Device) SpeedHz() uint32      { return 0 }
func (d *Device) BitsPerWord() int     { return 0 }
func (d *Device) Close() error         { return nil }
func (d *Device) Tx(w, r []byte) error { return fmt.Errorf("spi: unsupported OS") }
