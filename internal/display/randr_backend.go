package display

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/vdisplay/internal/logger"
)

// randrBackend drives display configuration through the randr command
// line tools. wlr-randr is preferred; xrandr covers X11 hosts.
type randrBackend struct {
	tool string // "wlr-randr" or "xrandr"
}

func newRandrBackend() (Backend, error) {
	for _, tool := range []string{"wlr-randr", "xrandr"} {
		if _, err := exec.LookPath(tool); err == nil {
			return &randrBackend{tool: tool}, nil
		}
	}
	return nil, fmt.Errorf("neither wlr-randr nor xrandr found in PATH")
}

func (r *randrBackend) ListOutputs() ([]*Monitor, error) {
	if r.tool == "wlr-randr" {
		return r.listWlr()
	}
	return r.listXrandr()
}

func (r *randrBackend) listWlr() ([]*Monitor, error) {
	output, err := exec.Command(r.tool, "--json").CombinedOutput()
	if err != nil {
		if len(output) > 0 {
			logger.Errorf("wlr-randr --json error: %s", string(output))
		}
		return nil, fmt.Errorf("failed to run wlr-randr: %w", err)
	}

	var outputs []struct {
		Name        string `json:"name"`
		Enabled     bool   `json:"enabled"`
		Primary     bool   `json:"primary"`
		CurrentMode struct {
			Width   int     `json:"width"`
			Height  int     `json:"height"`
			Refresh float64 `json:"refresh"`
		} `json:"current_mode"`
		Position struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"position"`
	}
	if err := json.Unmarshal(output, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse wlr-randr output: %w", err)
	}

	var monitors []*Monitor
	for i, out := range outputs {
		if !out.Enabled {
			continue
		}
		if out.CurrentMode.Width == 0 || out.CurrentMode.Height == 0 {
			logger.Warnf("Skipping output %s with no current mode", out.Name)
			continue
		}
		monitors = append(monitors, &Monitor{
			ID:        fmt.Sprintf("%d", i),
			Name:      out.Name,
			X:         int32(out.Position.X),
			Y:         int32(out.Position.Y),
			Width:     int32(out.CurrentMode.Width),
			Height:    int32(out.CurrentMode.Height),
			RefreshHz: int32(out.CurrentMode.Refresh),
			Depth:     32,
			Primary:   out.Primary,
		})
	}

	ensurePrimary(monitors)
	return monitors, nil
}

func (r *randrBackend) listXrandr() ([]*Monitor, error) {
	output, err := exec.Command(r.tool, "--query").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to run xrandr: %w", err)
	}

	// Connected outputs look like:
	//   DP-1 connected primary 1920x1080+0+0 (normal ...) 527mm x 296mm
	var monitors []*Monitor
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[1] != "connected" {
			continue
		}

		primary := false
		geomField := fields[2]
		if geomField == "primary" {
			primary = true
			if len(fields) < 4 {
				continue
			}
			geomField = fields[3]
		}

		var w, h, x, y int32
		if n, _ := fmt.Sscanf(geomField, "%dx%d+%d+%d", &w, &h, &x, &y); n != 4 {
			// Connected but disabled output, no geometry
			continue
		}

		monitors = append(monitors, &Monitor{
			ID:      fmt.Sprintf("%d", len(monitors)),
			Name:    fields[0],
			X:       x,
			Y:       y,
			Width:   w,
			Height:  h,
			Depth:   32,
			Primary: primary,
		})
	}

	ensurePrimary(monitors)
	return monitors, nil
}

func (r *randrBackend) SetMode(name string, width, height int32) error {
	var cmd *exec.Cmd
	if r.tool == "wlr-randr" {
		cmd = exec.Command(r.tool, "--output", name, "--custom-mode",
			fmt.Sprintf("%dx%d", width, height))
	} else {
		cmd = exec.Command(r.tool, "--output", name, "--mode",
			fmt.Sprintf("%dx%d", width, height))
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		if len(output) > 0 {
			logger.Errorf("%s mode change error: %s", r.tool, string(output))
		}
		return fmt.Errorf("failed to set mode %dx%d on %s: %w", width, height, name, err)
	}
	return nil
}

func (r *randrBackend) SetPrimary(name string) error {
	var cmd *exec.Cmd
	if r.tool == "wlr-randr" {
		// wlr-randr has no primary flag; the output at (0,0) is treated
		// as primary by compositors, so move the target there.
		cmd = exec.Command(r.tool, "--output", name, "--pos", "0,0")
	} else {
		cmd = exec.Command(r.tool, "--output", name, "--primary")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		if len(output) > 0 {
			logger.Errorf("%s primary change error: %s", r.tool, string(output))
		}
		return fmt.Errorf("failed to make %s primary: %w", name, err)
	}
	return nil
}

func (r *randrBackend) Close() error {
	return nil
}

// ensurePrimary marks the output at (0,0) primary when the tool did not
// report one, falling back to the first output.
func ensurePrimary(monitors []*Monitor) {
	for _, m := range monitors {
		if m.Primary {
			return
		}
	}
	for _, m := range monitors {
		if m.X == 0 && m.Y == 0 {
			m.Primary = true
			return
		}
	}
	if len(monitors) > 0 {
		monitors[0].Primary = true
	}
}
