package display

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// drmBackend enumerates connectors straight from /sys/class/drm. It is
// read-only: mode and primary changes need a randr tool or compositor.
type drmBackend struct {
	sysfs string
}

func newDRMBackend() (Backend, error) {
	const sysfs = "/sys/class/drm"
	if _, err := os.Stat(sysfs); err != nil {
		return nil, fmt.Errorf("DRM sysfs not present: %w", err)
	}
	return &drmBackend{sysfs: sysfs}, nil
}

func (d *drmBackend) ListOutputs() ([]*Monitor, error) {
	entries, err := os.ReadDir(d.sysfs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.sysfs, err)
	}

	var monitors []*Monitor
	var x int32
	for _, entry := range entries {
		// Connectors are named cardN-<connector>, e.g. card0-DP-1
		name := entry.Name()
		idx := strings.Index(name, "-")
		if idx < 0 {
			continue
		}

		status, err := os.ReadFile(filepath.Join(d.sysfs, name, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "connected" {
			continue
		}

		w, h := preferredMode(filepath.Join(d.sysfs, name, "modes"))
		if w == 0 || h == 0 {
			continue
		}

		// sysfs carries no layout information; lay connectors out left
		// to right so the union geometry is still meaningful.
		monitors = append(monitors, &Monitor{
			ID:     fmt.Sprintf("%d", len(monitors)),
			Name:   name[idx+1:],
			X:      x,
			Width:  w,
			Height: h,
			Depth:  32,
		})
		x += w
	}

	ensurePrimary(monitors)
	return monitors, nil
}

// preferredMode reads the first (preferred) mode line, e.g. "1920x1080".
func preferredMode(path string) (w, h int32) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0
	}
	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) == 0 {
		return 0, 0
	}
	if n, _ := fmt.Sscanf(strings.TrimSpace(lines[0]), "%dx%d", &w, &h); n != 2 {
		return 0, 0
	}
	return w, h
}

func (d *drmBackend) SetMode(name string, width, height int32) error {
	return fmt.Errorf("mode changes not supported by the DRM sysfs backend")
}

func (d *drmBackend) SetPrimary(name string) error {
	return fmt.Errorf("primary switching not supported by the DRM sysfs backend")
}

func (d *drmBackend) Close() error {
	return nil
}
