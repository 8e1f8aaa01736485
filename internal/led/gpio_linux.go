//go:build linux

package led

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIO drives the BCM pin as a digital output through the GPIO character
// device. The line is looked up by its "GPIO<n>" name on the preferred chip
// first, then on every other chip; if no chip names its lines, the pin is
// used as an offset on the preferred chip.
func openGPIO(chipName string, pin int) (outputLine, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("invalid gpio pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	preferred := chipName
	if preferred != "" && !strings.HasPrefix(preferred, "/") {
		preferred = filepath.Join("/dev", preferred)
	}
	var candidates []string
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		p := filepath.Join("/dev", e.Name())
		if strings.HasPrefix(e.Name(), "gpiochip") && p != preferred {
			candidates = append(candidates, p)
		}
	}

	for _, chipPath := range candidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		if l, err := requestOutput(chip, offset); err == nil {
			return l, nil
		}
	}

	if preferred == "" {
		return nil, fmt.Errorf("gpio line %q not found", lineName)
	}
	chip, err := gpiocdev.NewChip(preferred)
	if err != nil {
		return nil, fmt.Errorf("gpio line %q not found: %w", lineName, err)
	}
	l, err := requestOutput(chip, pin)
	if err != nil {
		return nil, fmt.Errorf("gpio line %q: %w", lineName, err)
	}
	return l, nil
}

// requestOutput takes ownership of chip; it is closed on failure.
func requestOutput(chip *gpiocdev.Chip, offset int) (outputLine, error) {
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("raspifpv-led"))
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	return &gpioLine{chip: chip, line: line}, nil
}

var openGPIOFn = openGPIO

type gpioLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpioLine) SetValue(v int) error { return g.line.SetValue(v) }

func (g *gpioLine) Close() error {
	_ = g.line.SetValue(0)
	err := g.line.Close()
	_ = g.chip.Close()
	return err
}
