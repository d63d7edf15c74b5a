package amdgpu

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

type fdMetrics struct {
	VRAMBytes uint64
	HasMemory bool
	ClientID  int
}

// VRAM keys in order of preference. Older amdgpu kernels only emit
// drm-memory-*, newer ones add the generic drm-resident/total keys.
var vramKeys = []string{"drm-memory-vram", "drm-resident-vram", "drm-total-vram"}

func parseFDInfo(data []byte) fdMetrics {
	var metrics fdMetrics
	found := make(map[string]uint64, len(vramKeys))

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "drm-client-id":
			if id, err := strconv.Atoi(value); err == nil {
				metrics.ClientID = id
			}
		case vramKeys[0], vramKeys[1], vramKeys[2]:
			if bytesValue, ok := parseBytesValue(value); ok {
				found[key] = bytesValue
			}
		}
	}

	for _, key := range vramKeys {
		if value, ok := found[key]; ok {
			metrics.VRAMBytes = value
			metrics.HasMemory = true
			break
		}
	}
	return metrics
}

var bytesValuePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(bytes?|kib|kb|mib|mb|gib|gb|b)?$`)

func parseBytesValue(value string) (uint64, bool) {
	match := bytesValuePattern.FindStringSubmatch(strings.ToLower(value))
	if match == nil {
		return 0, false
	}
	number, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return uint64(number * float64(bytesUnitMultiplier(match[2]))), true
}

func bytesUnitMultiplier(unit string) uint64 {
	switch unit {
	case "kb", "kib":
		return 1024
	case "mb", "mib":
		return 1024 * 1024
	case "gb", "gib":
		return 1024 * 1024 * 1024
	default:
		return 1
	}
}
