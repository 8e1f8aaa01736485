//go:build !linux

package gps

import (
	"fmt"
	"os"
	"runtime"
)

func openSerial(path string, _ int) (*os.File, error) {
	return nil, fmt.Errorf("serial gps %s: unsupported on %s", path, runtime.GOOS)
}
