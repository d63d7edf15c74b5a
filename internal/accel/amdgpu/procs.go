package amdgpu

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skobkin/perflog/internal/accel"
)

// procScanner attributes VRAM on one card to a single observed process. Every
// fd of that process is read.
type procScanner struct {
	procRoot string
	pid      int
	nodes    map[string]struct{}
	logger   *slog.Logger
}

func newProcScanner(procRoot string, pid int, info Info, logger *slog.Logger) *procScanner {
	nodes := make(map[string]struct{}, 2)
	if info.RenderNode != "" {
		nodes[filepath.Base(info.RenderNode)] = struct{}{}
	}
	nodes[info.ID] = struct{}{}
	return &procScanner{
		procRoot: procRoot,
		pid:      pid,
		nodes:    nodes,
		logger:   logger,
	}
}

func (p *procScanner) scan() ([]accel.ProcessMemory, error) {
	root, err := os.OpenRoot(p.procRoot)
	if err != nil {
		return nil, fmt.Errorf("open proc root: %w", err)
	}
	defer root.Close()

	procDir, err := root.OpenRoot(strconv.Itoa(p.pid))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open proc dir for pid %d: %w", p.pid, err)
	}
	defer func() {
		if err := procDir.Close(); err != nil {
			p.logger.Debug("failed to close proc dir", "pid", p.pid, "err", err)
		}
	}()

	vram, ok := p.scanProcess(procDir)
	if !ok {
		return nil, nil
	}
	return []accel.ProcessMemory{{PID: p.pid, UsedBytes: vram}}, nil
}

// scanProcess sums VRAM over the process's DRM clients. Several fds may share
// one client; those are counted once.
func (p *procScanner) scanProcess(procDir *os.Root) (uint64, bool) {
	fdEntries, err := fs.ReadDir(procDir.FS(), "fd")
	if err != nil {
		return 0, false
	}

	var (
		total   uint64
		found   bool
		clients = make(map[int]struct{})
	)
	for _, fdEntry := range fdEntries {
		fdName := fdEntry.Name()
		target, err := procDir.Readlink(filepath.Join("fd", fdName))
		if err != nil {
			continue
		}
		target = strings.TrimSuffix(target, " (deleted)")
		if _, ok := p.nodes[filepath.Base(target)]; !ok {
			continue
		}

		data, err := procDir.ReadFile(filepath.Join("fdinfo", fdName))
		if err != nil {
			continue
		}
		metrics := parseFDInfo(data)
		if !metrics.HasMemory {
			continue
		}
		if metrics.ClientID > 0 {
			if _, seen := clients[metrics.ClientID]; seen {
				continue
			}
			clients[metrics.ClientID] = struct{}{}
		}
		total += metrics.VRAMBytes
		found = true
	}
	return total, found
}
