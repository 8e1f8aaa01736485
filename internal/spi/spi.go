package spi

import "fmt"

// Path returns the spidev node for bus and chip select.
func Path(bus, device int) string {
	return fmt.Sprintf("/dev/spidev%d.%d", bus, device)
}
