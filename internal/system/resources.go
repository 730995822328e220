package system

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Resources is a cheap snapshot of host load, served on the local
// status endpoint next to the agent's own liveness.
type Resources struct {
	UptimeSec  int64   `json:"uptime_sec"`
	Load1      float64 `json:"load_1"`
	RAMTotalMB int64   `json:"ram_total_mb"`
	RAMUsedMB  int64   `json:"ram_used_mb"`
}

// ReadResources reads /proc under procRoot ("/proc" when empty). Fields
// that cannot be read stay zero.
func ReadResources(procRoot string) (Resources, error) {
	if procRoot == "" {
		procRoot = "/proc"
	}

	var res Resources
	uptime, err := readUptime(filepath.Join(procRoot, "uptime"))
	if err != nil {
		return res, err
	}
	res.UptimeSec = uptime

	if load, err := readLoad1(filepath.Join(procRoot, "loadavg")); err == nil {
		res.Load1 = load
	}
	if total, used, err := readMemInfo(filepath.Join(procRoot, "meminfo")); err == nil {
		res.RAMTotalMB = total
		res.RAMUsedMB = used
	}
	return res, nil
}

func readUptime(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	parts := strings.Fields(string(b))
	if len(parts) == 0 {
		return 0, errors.New("uptime parse error")
	}
	seconds, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	return int64(seconds), nil
}

func readLoad1(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	parts := strings.Fields(string(b))
	if len(parts) < 1 {
		return 0, errors.New("loadavg parse error")
	}
	return strconv.ParseFloat(parts[0], 64)
}

func readMemInfo(path string) (totalMB int64, usedMB int64, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var totalKB, availableKB int64
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMemValue(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availableKB = parseMemValue(line)
		}
	}
	if totalKB == 0 {
		return 0, 0, errors.New("meminfo missing")
	}
	return totalKB / 1024, (totalKB - availableKB) / 1024, nil
}

func parseMemValue(line string) int64 {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0
	}
	v, _ := strconv.ParseInt(parts[1], 10, 64)
	return v
}
