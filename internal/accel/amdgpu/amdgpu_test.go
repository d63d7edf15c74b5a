package amdgpu

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/skobkin/perflog/internal/accel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o750); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

// createCard lays out class/drm/<card>/device with an amdgpu uevent.
func createCard(t *testing.T, sysfsRoot, cardID, renderNode, uevent string) string {
	t.Helper()
	devicePath := filepath.Join(sysfsRoot, "class", "drm", cardID, "device")
	writeFile(t, filepath.Join(devicePath, "uevent"), uevent)
	if renderNode != "" {
		mkdir(t, filepath.Join(devicePath, "drm", renderNode))
	}
	return devicePath
}

func createProcess(t *testing.T, procRoot string, pid string, fds map[string]string, fdinfo map[string]string) {
	t.Helper()
	fdDir := filepath.Join(procRoot, pid, "fd")
	mkdir(t, fdDir)
	for fd, target := range fds {
		if err := os.Symlink(target, filepath.Join(fdDir, fd)); err != nil {
			t.Fatalf("symlink fd %s: %v", fd, err)
		}
	}
	for fd, contents := range fdinfo {
		writeFile(t, filepath.Join(procRoot, pid, "fdinfo", fd), contents)
	}
}

func TestDiscoverFiltersAndOrdersCards(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	createCard(t, root, "card1", "renderD129", "DRIVER=amdgpu\nPCI_SLOT_NAME=0000:0b:00.0\nPCI_ID=1002:731F\n")
	createCard(t, root, "card0", "renderD128", "DRIVER=nvidia\nPCI_ID=10DE:2204\n")
	card2 := createCard(t, root, "card2", "", "PCI_SLOT_NAME=0000:0c:00.0\n")
	writeFile(t, filepath.Join(card2, "vendor"), "0x1002\n")
	writeFile(t, filepath.Join(card2, "device"), "0x73df\n")
	writeFile(t, filepath.Join(card2, "product_name"), "AMD Radeon Test Board\n")
	mkdir(t, filepath.Join(root, "class", "drm", "card1-DP-1"))
	mkdir(t, filepath.Join(root, "class", "drm", "renderD128"))

	infos, err := Discover(root, discardLogger())
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 amdgpu cards, got %+v", infos)
	}

	first := infos[0]
	if first.ID != "card1" || first.PCI != "0000:0b:00.0" || first.PCIID != "1002:731f" {
		t.Fatalf("unexpected first card %+v", first)
	}
	if first.RenderNode != "/dev/dri/renderD129" {
		t.Fatalf("unexpected render node %q", first.RenderNode)
	}
	if infos[1].ID != "card2" || infos[1].PCIID != "1002:73df" {
		t.Fatalf("expected vendor/device fallback for card2, got %+v", infos[1])
	}
	if infos[1].Name == "" {
		t.Fatalf("expected a name for card2")
	}
}

func TestDiscoverMissingDRMClass(t *testing.T) {
	t.Parallel()

	infos, err := Discover(t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if infos != nil {
		t.Fatalf("expected nil result without drm class, got %+v", infos)
	}
}

func TestLibraryWithoutSysfsIsUnavailable(t *testing.T) {
	t.Parallel()

	lib := New(Options{SysfsRoot: t.TempDir(), ProcRoot: t.TempDir()}, discardLogger())
	if err := lib.Init(); !errors.Is(err, accel.ErrLibraryUnavailable) {
		t.Fatalf("expected ErrLibraryUnavailable, got %v", err)
	}
	if _, err := lib.DeviceCount(); err == nil {
		t.Fatalf("DeviceCount must fail before a successful Init")
	}
}

func TestDeviceMetrics(t *testing.T) {
	t.Parallel()

	sysfsRoot := t.TempDir()
	procRoot := t.TempDir()
	devicePath := createCard(t, sysfsRoot, "card0", "renderD128", "DRIVER=amdgpu\nPCI_ID=1002:73DF\n")
	writeFile(t, filepath.Join(devicePath, gpuBusyFilename), "37\n")
	writeFile(t, filepath.Join(devicePath, ppDpmSclkFilename), "0: 500Mhz\n1: 1800Mhz *\n2: 2400Mhz\n")
	writeFile(t, filepath.Join(devicePath, vramUsedFilename), "1048576\n")

	createProcess(t, procRoot, "100",
		map[string]string{"3": "/dev/dri/renderD128", "4": "/dev/dri/renderD128", "5": "/dev/null"},
		map[string]string{
			"3": "pos:\t0\ndrm-driver:\tamdgpu\ndrm-client-id:\t7\ndrm-memory-vram:\t2048 KiB\ndrm-memory-gtt:\t512 KiB\n",
			"4": "drm-client-id:\t7\ndrm-memory-vram:\t2048 KiB\n",
		})
	createProcess(t, procRoot, "200",
		map[string]string{"9": "/dev/dri/renderD128"},
		map[string]string{"9": "drm-client-id:\t9\ndrm-total-vram:\t1 MiB\ndrm-resident-vram:\t3 MiB\n"})
	createProcess(t, procRoot, "300",
		map[string]string{"1": "/dev/dri/renderD200"},
		map[string]string{"1": "drm-client-id:\t11\ndrm-memory-vram:\t4 MiB\n"})
	writeFile(t, filepath.Join(procRoot, "meminfo"), "MemTotal: 1 kB\n")

	lib := New(Options{SysfsRoot: sysfsRoot, ProcRoot: procRoot, PID: 100}, discardLogger())
	if err := lib.Init(); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if count, err := lib.DeviceCount(); err != nil || count != 1 {
		t.Fatalf("DeviceCount = %d, %v", count, err)
	}
	dev, err := lib.DeviceByIndex(0)
	if err != nil {
		t.Fatalf("DeviceByIndex returned error: %v", err)
	}
	if _, err := lib.DeviceByIndex(1); err == nil {
		t.Fatalf("expected out-of-range error")
	}

	if clock, err := dev.GraphicsClockMHz(); err != nil || clock != 1800 {
		t.Fatalf("GraphicsClockMHz = %v, %v", clock, err)
	}
	if util, err := dev.UtilizationPercent(); err != nil || util != 37 {
		t.Fatalf("UtilizationPercent = %v, %v", util, err)
	}
	if used, err := dev.MemoryUsedBytes(); err != nil || used != 1048576 {
		t.Fatalf("MemoryUsedBytes = %v, %v", used, err)
	}

	procs, err := dev.ComputeProcesses()
	if err != nil {
		t.Fatalf("ComputeProcesses returned error: %v", err)
	}
	if len(procs) != 1 || procs[0].PID != 100 {
		t.Fatalf("expected only the observed process, got %+v", procs)
	}
	if procs[0].UsedBytes != 2048*1024 {
		t.Fatalf("shared client must be counted once, got %d", procs[0].UsedBytes)
	}

	if got := processVRAM(t, sysfsRoot, procRoot, 200); got[200] != 3*1024*1024 {
		t.Fatalf("expected resident vram preferred over total, got %+v", got)
	}
	if got := processVRAM(t, sysfsRoot, procRoot, 300); len(got) != 0 {
		t.Fatalf("process on another card must not be attributed, got %+v", got)
	}
	if got := processVRAM(t, sysfsRoot, procRoot, 999); len(got) != 0 {
		t.Fatalf("missing process must report nothing, got %+v", got)
	}

	graphics, err := dev.GraphicsProcesses()
	if err != nil || len(graphics) != 0 {
		t.Fatalf("GraphicsProcesses = %+v, %v", graphics, err)
	}

	if err := lib.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if err := lib.Shutdown(); err == nil {
		t.Fatalf("second Shutdown should report not initialised")
	}
}

// processVRAM builds a card0 backend observing pid and returns its
// ComputeProcesses keyed by PID.
func processVRAM(t *testing.T, sysfsRoot, procRoot string, pid int) map[int]uint64 {
	t.Helper()
	lib := New(Options{SysfsRoot: sysfsRoot, ProcRoot: procRoot, PID: pid}, discardLogger())
	if err := lib.Init(); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	t.Cleanup(func() { _ = lib.Shutdown() })
	dev, err := lib.DeviceByIndex(0)
	if err != nil {
		t.Fatalf("DeviceByIndex returned error: %v", err)
	}
	procs, err := dev.ComputeProcesses()
	if err != nil {
		t.Fatalf("ComputeProcesses returned error: %v", err)
	}
	got := make(map[int]uint64, len(procs))
	for _, p := range procs {
		got[p.PID] = p.UsedBytes
	}
	return got
}

func TestProcessVRAMReadsEveryFD(t *testing.T) {
	t.Parallel()

	sysfsRoot := t.TempDir()
	procRoot := t.TempDir()
	createCard(t, sysfsRoot, "card0", "renderD128", "DRIVER=amdgpu\n")

	fds := make(map[string]string, 100)
	for fd := range 99 {
		fds[strconv.Itoa(fd)] = "/dev/null"
	}
	fds["99"] = "/dev/dri/renderD128"
	createProcess(t, procRoot, "9", fds,
		map[string]string{"99": "drm-client-id:\t3\ndrm-memory-vram:\t4 MiB\n"})
	for _, pid := range []string{"10", "11"} {
		createProcess(t, procRoot, pid,
			map[string]string{"3": "/dev/dri/renderD128"},
			map[string]string{"3": "drm-client-id:\t5\ndrm-memory-vram:\t1 MiB\n"})
	}

	got := processVRAM(t, sysfsRoot, procRoot, 9)
	if len(got) != 1 || got[9] != 4*1024*1024 {
		t.Fatalf("expected 4 MiB for pid 9 via fd 99, got %+v", got)
	}
}

func TestDeviceMissingAttributes(t *testing.T) {
	t.Parallel()

	sysfsRoot := t.TempDir()
	devicePath := createCard(t, sysfsRoot, "card0", "", "DRIVER=amdgpu\n")
	writeFile(t, filepath.Join(devicePath, ppDpmSclkFilename), "0: 500Mhz\n1: 1800Mhz\n")

	lib := New(Options{SysfsRoot: sysfsRoot, ProcRoot: t.TempDir()}, discardLogger())
	if err := lib.Init(); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	dev, err := lib.DeviceByIndex(0)
	if err != nil {
		t.Fatalf("DeviceByIndex returned error: %v", err)
	}
	if _, err := dev.GraphicsClockMHz(); !errors.Is(err, errNoActiveLevel) {
		t.Fatalf("expected errNoActiveLevel, got %v", err)
	}
	if _, err := dev.UtilizationPercent(); err == nil {
		t.Fatalf("expected error for missing busy file")
	}
	if _, err := dev.MemoryUsedBytes(); err == nil {
		t.Fatalf("expected error for missing vram file")
	}
}

func TestReadPercentScaled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "busy")
	writeFile(t, path, "4550\n")
	value, err := readPercent(path)
	if err != nil || value != 45.5 {
		t.Fatalf("readPercent = %v, %v", value, err)
	}
}

func TestParseFDInfo(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		data     string
		wantVRAM uint64
		wantMem  bool
		wantID   int
	}{
		{"LegacyKiB", "drm-client-id:\t4\ndrm-memory-vram:\t256 KiB\n", 256 * 1024, true, 4},
		{"BareBytes", "drm-memory-vram: 4096\n", 4096, true, 0},
		{"GiB", "drm-total-vram: 1 GiB\n", 1 << 30, true, 0},
		{"GTTOnly", "drm-client-id: 2\ndrm-memory-gtt: 12 MiB\n", 0, false, 2},
		{"Garbage", "drm-memory-vram: lots\n", 0, false, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := parseFDInfo([]byte(tc.data))
			if metrics.VRAMBytes != tc.wantVRAM || metrics.HasMemory != tc.wantMem || metrics.ClientID != tc.wantID {
				t.Fatalf("parseFDInfo = %+v", metrics)
			}
		})
	}
}
