// Package display maintains the catalog of OS-recognized display surfaces
package display

import (
	"sync"

	"github.com/bnema/vdisplay/internal/logger"
)

// AggregateName is the device name of the synthetic entry spanning the
// union geometry of every active display.
const AggregateName = "all"

// Resolution is a (width, height) pair in pixels.
type Resolution struct {
	Width  int32
	Height int32
}

// Monitor represents one OS-recognized display surface
type Monitor struct {
	ID        string
	Name      string // OS device name
	X         int32  // Position in global coordinate space
	Y         int32
	Width     int32
	Height    int32
	RefreshHz int32
	Depth     int32
	Primary   bool
	Virtual   bool // Backed by a software device rather than hardware
}

// Bounds returns the monitor's boundaries
func (m *Monitor) Bounds() (x1, y1, x2, y2 int32) {
	return m.X, m.Y, m.X + m.Width, m.Y + m.Height
}

// Catalog holds the authoritative snapshot of the current display
// configuration. It is refreshed after every attach or detach so the
// rest of the system reads reconciled geometry.
type Catalog struct {
	mu       sync.RWMutex
	backend  Backend
	monitors []*Monitor
}

// NewCatalog creates a catalog over the given backend and performs an
// initial refresh.
func NewCatalog(backend Backend) *Catalog {
	c := &Catalog{backend: backend}
	c.Refresh()
	return c
}

// Refresh re-enumerates active displays. Enumeration returning nothing
// is non-fatal: the previous best-effort set is replaced by whatever the
// backend reported, and the condition is logged.
func (c *Catalog) Refresh() {
	outputs, err := c.backend.ListOutputs()
	if err != nil {
		logger.Warnf("Display enumeration failed, keeping partial catalog: %v", err)
	}
	if len(outputs) == 0 {
		logger.Warn("Display enumeration returned no entries")
	}

	monitors := make([]*Monitor, 0, len(outputs)+1)
	monitors = append(monitors, outputs...)
	monitors = append(monitors, aggregateOf(outputs))

	c.mu.Lock()
	c.monitors = monitors
	c.mu.Unlock()
}

// aggregateOf builds the synthetic "all displays" entry spanning the
// union of the given monitors.
func aggregateOf(monitors []*Monitor) *Monitor {
	agg := &Monitor{ID: AggregateName, Name: AggregateName}
	if len(monitors) == 0 {
		return agg
	}

	minX, minY, maxX, maxY := monitors[0].Bounds()
	for _, m := range monitors[1:] {
		x1, y1, x2, y2 := m.Bounds()
		if x1 < minX {
			minX = x1
		}
		if y1 < minY {
			minY = y1
		}
		if x2 > maxX {
			maxX = x2
		}
		if y2 > maxY {
			maxY = y2
		}
	}

	agg.X = minX
	agg.Y = minY
	agg.Width = maxX - minX
	agg.Height = maxY - minY
	agg.Depth = monitors[0].Depth
	agg.RefreshHz = monitors[0].RefreshHz
	return agg
}

// Monitors returns the current catalog entries, aggregate included.
func (c *Catalog) Monitors() []*Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Monitor, len(c.monitors))
	copy(out, c.monitors)
	return out
}

// FindByName looks up a monitor by its OS device name. A nil result is
// a normal outcome, not an error.
func (c *Catalog) FindByName(name string) *Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.monitors {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Primary returns the current primary monitor, or nil when none is
// marked.
func (c *Catalog) Primary() *Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.monitors {
		if m.Primary {
			return m
		}
	}
	return nil
}

// Snapshot returns a value copy of the real (hardware, non-aggregate)
// entries for later restoration.
func (c *Catalog) Snapshot() []Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Monitor
	for _, m := range c.monitors {
		if m.Virtual || m.Name == AggregateName {
			continue
		}
		out = append(out, *m)
	}
	return out
}

// ChangeResolution requests a mode change on one named device. Sibling
// devices are not rolled back when the change fails.
func (c *Catalog) ChangeResolution(name string, width, height int32) error {
	if err := c.backend.SetMode(name, width, height); err != nil {
		return err
	}

	c.mu.Lock()
	for _, m := range c.monitors {
		if m.Name == name {
			m.Width = width
			m.Height = height
		}
	}
	c.mu.Unlock()
	return nil
}

// SetPrimary reassigns which display the OS treats as primary.
func (c *Catalog) SetPrimary(name string) error {
	if err := c.backend.SetPrimary(name); err != nil {
		return err
	}

	c.mu.Lock()
	for _, m := range c.monitors {
		m.Primary = m.Name == name
	}
	c.mu.Unlock()
	return nil
}

// Close releases the backend.
func (c *Catalog) Close() error {
	return c.backend.Close()
}
