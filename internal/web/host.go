package web

import (
	"os"
	"strconv"
	"strings"
)

var cpuTempPath = "/sys/class/thermal/thermal_zone0/temp"

// parseCPUTempC accepts millidegrees (52345) or whole degrees (52).
func parseCPUTempC(s string) (float64, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	if n > 1000 {
		return float64(n) / 1000.0, true
	}
	return float64(n), true
}

// hostCPUTempC reports the SoC temperature of the ground station, nil when
// the thermal zone is unreadable.
func hostCPUTempC() *float64 {
	b, err := os.ReadFile(cpuTempPath)
	if err != nil {
		return nil
	}
	v, ok := parseCPUTempC(string(b))
	if !ok {
		return nil
	}
	return &v
}
