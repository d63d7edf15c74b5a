package amdgpu

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	gpuBusyFilename   = "gpu_busy_percent"
	ppDpmSclkFilename = "pp_dpm_sclk"
	vramUsedFilename  = "mem_info_vram_used"
)

var errNoActiveLevel = errors.New("no active clock level")

func readPercent(path string) (float64, error) {
	value, err := readFloatValue(path)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("negative percent %v", value)
	}
	if value > 100 {
		// Some kernels report busy % scaled by 100.
		value = min(value/100, 100)
	}
	return value, nil
}

// readCurrentClock returns the DPM level marked with '*' in a pp_dpm_* file.
func readCurrentClock(path string) (float64, error) {
	// #nosec G304 -- path is built from the configured sysfs root.
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "*") {
			continue
		}
		if clock, ok := extractClockMHz(line); ok {
			return clock, nil
		}
	}
	return 0, errNoActiveLevel
}

func readUint(path string) (uint64, error) {
	// #nosec G304 -- path is built from the configured sysfs root.
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	valueStr := strings.TrimSpace(string(data))
	if valueStr == "" {
		return 0, fmt.Errorf("empty value in %s", path)
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse uint: %w", err)
	}
	return value, nil
}

func readFloatValue(path string) (float64, error) {
	// #nosec G304 -- path is built from the configured sysfs root.
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	valueStr := strings.TrimSpace(string(data))
	if valueStr == "" {
		return 0, fmt.Errorf("empty value in %s", path)
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return value, nil
}

func extractClockMHz(line string) (float64, bool) {
	for _, field := range strings.Fields(line) {
		field = strings.ToLower(strings.TrimSuffix(field, "*"))
		if !strings.HasSuffix(field, "mhz") {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSuffix(field, "mhz"), 64)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}
