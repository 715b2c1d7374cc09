// Package sysinfo is the ambient system-info probe: CPU count, load
// average, CPU model, and an optional thermal-zone temperature read.
// It has no dependency on, and is not imported by, any playout
// component.
package sysinfo

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// Info is the response body for GET /api/v1/system/info.
type Info struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Arch     string   `json:"arch"`
	CPUModel string   `json:"cpu_model"`
	CPUCores int      `json:"cpu_cores"`
	Load1m   float64  `json:"load_1m"`
	Load5m   float64  `json:"load_5m"`
	Load15m  float64  `json:"load_15m"`
	TempC    *float64 `json:"temp_c"`
	Hostname string   `json:"hostname"`
}

// Collect gathers a fresh snapshot.
func Collect(version string) Info {
	hostname, _ := os.Hostname()
	l1, l5, l15 := loadAverage()
	return Info{
		Name:     "StudioCommand Playout",
		Version:  version,
		Arch:     runtime.GOARCH,
		CPUModel: cpuModel(),
		CPUCores: runtime.NumCPU(),
		Load1m:   l1,
		Load5m:   l5,
		Load15m:  l15,
		TempC:    readTempC(),
		Hostname: hostname,
	}
}

// cpuModel reads the brand string of the first logical CPU from
// /proc/cpuinfo, falling back to "unknown" when unavailable (non-Linux,
// containerized, or restricted /proc).
func cpuModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			if _, v, ok := strings.Cut(line, ":"); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return "unknown"
}

func loadAverage() (one, five, fifteen float64) {
	var la syscall.Sysinfo_t
	if err := syscall.Sysinfo(&la); err != nil {
		return 0, 0, 0
	}
	const scale = 1 << 16
	return float64(la.Loads[0]) / scale,
		float64(la.Loads[1]) / scale,
		float64(la.Loads[2]) / scale
}

var thermalPaths = []string{
	"/sys/class/thermal/thermal_zone0/temp",
	"/sys/class/hwmon/hwmon0/temp1_input",
}

func readTempC() *float64 {
	for _, p := range thermalPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil {
			continue
		}
		if v > 1000 {
			v /= 1000
		}
		return &v
	}
	return nil
}
