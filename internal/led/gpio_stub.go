//go:build !linux

package led

import "errors"

func openGPIO(chip string, pin int) (outputLine, error) {
	return nil, errors.New("gpio LED requires linux")
}

var openGPIOFn = openGPIO
