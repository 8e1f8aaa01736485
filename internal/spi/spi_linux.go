//go:build linux

package spi

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal Linux spidev implementation.
//
// The bus is used with whatever word size and clock the kernel driver is
// already configured for; we only read those settings back so each transfer
// can name them explicitly.

const (
	spiIOCRdBitsPerWord = 0x80016B03 // _IOR('k', 3, __u8)
	spiIOCRdMaxSpeedHz  = 0x80046B04 // _IOR('k', 4, __u32)
	spiIOCMessage1      = 0x40206B00 // _IOW('k', 0, struct spi_ioc_transfer[1])
)

// Mirrors struct spi_ioc_transfer (32 bytes).
type iocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Device is an opened spidev node. It is not safe for concurrent transfers.
type Device struct {
	f           *os.File
	path        string
	bitsPerWord uint8
	speedHz     uint32
}

func Open(bus, device int) (*Device, error) {
	path := Path(bus, device)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{f: f, path: path}

	if err := ioctlPtr(f.Fd(), spiIOCRdBitsPerWord, unsafe.Pointer(&d.bitsPerWord)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi %s: read bits per word: %w", path, err)
	}
	if err := ioctlPtr(f.Fd(), spiIOCRdMaxSpeedHz, unsafe.Pointer(&d.speedHz)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi %s: read max speed: %w", path, err)
	}
	return d, nil
}

func (d *Device) Path() string     { return d.path }
func (d *Device) SpeedHz() uint32  { return d.speedHz }
func (d *Device) BitsPerWord() int { return int(d.bitsPerWord) }

func (d *Device) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Tx clocks w out while reading the same number of bytes into r.
func (d *Device) Tx(w, r []byte) error {
	if d == nil || d.f == nil {
		return errors.New("spi device is closed")
	}
	if len(w) != len(r) {
		return fmt.Errorf("spi: tx len=%d rx len=%d", len(w), len(r))
	}
	if len(w) == 0 {
		return nil
	}

	xfer := iocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&r[0]))),
		len:         uint32(len(w)),
		speedHz:     d.speedHz,
		bitsPerWord: d.bitsPerWord,
	}
	err := ioctlPtr(d.f.Fd(), spiIOCMessage1, unsafe.Pointer(&xfer))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	return err
}

func ioctlPtr(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
