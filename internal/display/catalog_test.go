package display

import (
	"fmt"
	"testing"
)

// stubBackend serves a fixed output list for catalog tests.
type stubBackend struct {
	outputs []*Monitor
	err     error

	modeCalls    []string
	primaryCalls []string
}

func (s *stubBackend) ListOutputs() ([]*Monitor, error) {
	return s.outputs, s.err
}

func (s *stubBackend) SetMode(name string, width, height int32) error {
	s.modeCalls = append(s.modeCalls, fmt.Sprintf("%s:%dx%d", name, width, height))
	for _, m := range s.outputs {
		if m.Name == name {
			m.Width = width
			m.Height = height
			return nil
		}
	}
	return fmt.Errorf("unknown output %s", name)
}

func (s *stubBackend) SetPrimary(name string) error {
	for _, m := range s.outputs {
		if m.Name == name {
			s.primaryCalls = append(s.primaryCalls, name)
			for _, o := range s.outputs {
				o.Primary = o.Name == name
			}
			return nil
		}
	}
	return fmt.Errorf("unknown output %s", name)
}

func (s *stubBackend) Close() error { return nil }

func TestAggregateSpansUnionGeometry(t *testing.T) {
	tests := []struct {
		name     string
		monitors []*Monitor
		want     Monitor
	}{
		{
			name:     "no monitors",
			monitors: nil,
			want:     Monitor{},
		},
		{
			name: "single monitor",
			monitors: []*Monitor{
				{Name: "DP-1", X: 0, Y: 0, Width: 1920, Height: 1080},
			},
			want: Monitor{X: 0, Y: 0, Width: 1920, Height: 1080},
		},
		{
			name: "dual monitors horizontal",
			monitors: []*Monitor{
				{Name: "DP-1", X: 0, Y: 0, Width: 1920, Height: 1080},
				{Name: "DP-2", X: 1920, Y: 0, Width: 1920, Height: 1080},
			},
			want: Monitor{X: 0, Y: 0, Width: 3840, Height: 1080},
		},
		{
			name: "negative origin multi-monitor",
			monitors: []*Monitor{
				{Name: "DP-1", X: 0, Y: 0, Width: 1920, Height: 1080},
				{Name: "DP-2", X: 1920, Y: -200, Width: 2560, Height: 1440},
				{Name: "DP-3", X: -1920, Y: 0, Width: 1920, Height: 1080},
			},
			want: Monitor{X: -1920, Y: -200, Width: 6400, Height: 1440},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog(&stubBackend{outputs: tt.monitors})

			agg := c.FindByName(AggregateName)
			if agg == nil {
				t.Fatal("catalog has no aggregate entry")
			}
			if agg.X != tt.want.X || agg.Y != tt.want.Y ||
				agg.Width != tt.want.Width || agg.Height != tt.want.Height {
				t.Errorf("aggregate = %d,%d %dx%d, want %d,%d %dx%d",
					agg.X, agg.Y, agg.Width, agg.Height,
					tt.want.X, tt.want.Y, tt.want.Width, tt.want.Height)
			}
		})
	}
}

func TestFindByNameAbsentIsNil(t *testing.T) {
	c := NewCatalog(&stubBackend{outputs: []*Monitor{
		{Name: "DP-1", Width: 1920, Height: 1080},
	}})

	if got := c.FindByName("HDMI-9"); got != nil {
		t.Errorf("FindByName(HDMI-9) = %+v, want nil", got)
	}
}

func TestEmptyEnumerationIsNonFatal(t *testing.T) {
	c := NewCatalog(&stubBackend{err: fmt.Errorf("enumeration broke")})

	// The catalog proceeds with a best-effort set: just the aggregate.
	monitors := c.Monitors()
	if len(monitors) != 1 || monitors[0].Name != AggregateName {
		t.Errorf("got %d entries, want aggregate only", len(monitors))
	}
}

func TestChangeResolution(t *testing.T) {
	backend := &stubBackend{outputs: []*Monitor{
		{Name: "DP-1", Width: 1920, Height: 1080, Primary: true},
		{Name: "DP-2", X: 1920, Width: 1920, Height: 1080},
	}}
	c := NewCatalog(backend)

	if err := c.ChangeResolution("DP-2", 1280, 720); err != nil {
		t.Fatalf("ChangeResolution: %v", err)
	}
	if m := c.FindByName("DP-2"); m.Width != 1280 || m.Height != 720 {
		t.Errorf("DP-2 = %dx%d after change, want 1280x720", m.Width, m.Height)
	}

	// Failure on one device must not touch siblings.
	if err := c.ChangeResolution("gone", 640, 480); err == nil {
		t.Fatal("expected error for unknown device")
	}
	if m := c.FindByName("DP-1"); m.Width != 1920 {
		t.Errorf("sibling DP-1 mutated to %dx%d", m.Width, m.Height)
	}
}

func TestSetPrimary(t *testing.T) {
	backend := &stubBackend{outputs: []*Monitor{
		{Name: "DP-1", Width: 1920, Height: 1080, Primary: true},
		{Name: "DP-2", X: 1920, Width: 1920, Height: 1080},
	}}
	c := NewCatalog(backend)

	if err := c.SetPrimary("DP-2"); err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}
	if p := c.Primary(); p == nil || p.Name != "DP-2" {
		t.Errorf("Primary() = %v, want DP-2", p)
	}
}

func TestSnapshotExcludesAggregateAndVirtual(t *testing.T) {
	c := NewCatalog(&stubBackend{outputs: []*Monitor{
		{Name: "DP-1", Width: 1920, Height: 1080, Primary: true},
		{Name: "VDISPLAY1", X: 1920, Width: 1280, Height: 720, Virtual: true},
	}})

	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].Name != "DP-1" {
		t.Errorf("Snapshot() = %+v, want only DP-1", snap)
	}
}
