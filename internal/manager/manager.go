// Package manager orchestrates display strategies per connected viewer:
// it sequences the catalog, the virtual device registry, and the
// primary switcher to reach the desired desktop state, and restores the
// saved hardware configuration when the last viewer leaves.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/bnema/vdisplay/internal/display"
	"github.com/bnema/vdisplay/internal/logger"
	"github.com/bnema/vdisplay/internal/virtual"
)

// Mode selects the desktop-sharing strategy for one viewer.
type Mode int

const (
	// ModeDisplay mirrors one real display; no devices are created.
	ModeDisplay Mode = iota
	// ModeVirtual gives the viewer its own software display.
	ModeVirtual
	// ModeExtend appends a software display to the real desktop.
	ModeExtend
	// ModeExtendOnly extends and makes the new display primary, hiding
	// the physical desktop from normal use.
	ModeExtendOnly
)

func (m Mode) String() string {
	switch m {
	case ModeDisplay:
		return "display"
	case ModeVirtual:
		return "virtual"
	case ModeExtend:
		return "extend"
	case ModeExtendOnly:
		return "extend-only"
	default:
		return "unknown"
	}
}

// clientState tracks one connected viewer.
type clientState struct {
	mode    Mode
	display string // bound real display name for ModeDisplay
}

// ClientStatus is a read-only view of one viewer's state.
type ClientStatus struct {
	ID      int
	Mode    string
	Display string
	Devices []string
}

// Driver is the capability surface the manager needs from the driver
// bridge.
type Driver interface {
	Available() bool
}

// Manager is the top-level mode controller. Its mutex is the
// process-wide lock that serializes attach/detach traffic across
// clients.
type Manager struct {
	mu       sync.Mutex
	catalog  *display.Catalog
	registry *virtual.Registry
	drv      Driver
	switcher *PrimarySwitcher

	clients map[int]*clientState

	// Pre-attach hardware configuration, captured when the first
	// virtual device of this run is created.
	saved         []display.Monitor
	savedPrimary  string
	restoreNeeded bool
}

// New creates a manager over the given collaborators.
func New(catalog *display.Catalog, drv Driver, registry *virtual.Registry) *Manager {
	return &Manager{
		catalog:  catalog,
		registry: registry,
		drv:      drv,
		switcher: NewPrimarySwitcher(catalog),
		clients:  make(map[int]*clientState),
	}
}

// AttachDisplay binds a viewer to a desktop-sharing strategy. Device
// modes degrade silently to mirroring when the driver is unavailable;
// that is logged, not raised. Device creation failures roll back inside
// the registry and are returned as errors.
func (m *Manager) AttachDisplay(ctx context.Context, mode Mode, resolutions virtual.ResolutionMap, singleExtend bool, clientID int, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == ModeDisplay {
		m.releaseDevicesLocked(clientID)
		m.clients[clientID] = &clientState{mode: ModeDisplay, display: displayName}
		logger.Infof("Client %d mirroring display %q", clientID, displayName)
		return nil
	}

	if !m.drv.Available() {
		logger.Warnf("Driver unavailable, client %d degraded to mirror mode", clientID)
		m.releaseDevicesLocked(clientID)
		m.clients[clientID] = &clientState{mode: ModeDisplay, display: displayName}
		return nil
	}

	// Virtual mode gets exactly one device per client, sized to the
	// largest applied resolution; extend modes create one device per
	// distinct resolution and carry the caller's exclusivity flag.
	if mode == ModeVirtual {
		singleExtend = false
		resolutions = largestApplied(resolutions)
	}

	// Snapshot the hardware configuration before the first device of
	// this run so the desktop can be put back exactly.
	if !m.restoreNeeded {
		m.saved = m.catalog.Snapshot()
		if p := m.catalog.Primary(); p != nil && p.Name != display.AggregateName {
			m.savedPrimary = p.Name
		}
		m.restoreNeeded = true
	}

	if err := m.registry.Attach(ctx, clientID, resolutions, singleExtend); err != nil {
		if !m.registry.AnyActive() {
			m.restoreNeeded = false
		}
		return fmt.Errorf("attach failed for client %d: %w", clientID, err)
	}

	state := &clientState{mode: mode}
	m.clients[clientID] = state
	m.catalog.Refresh()

	if mode == ModeExtendOnly {
		records := m.registry.Records(clientID)
		if len(records) > 0 {
			m.switcher.Switch(records[0].DeviceName)
		}
	}

	logger.Infof("Client %d attached in %s mode", clientID, mode)
	return nil
}

// DisconnectDisplay releases a viewer's devices. When lastViewer is set
// or no virtual device remains anywhere, the saved hardware
// configuration is restored; the desktop is never left with zero active
// displays. Disconnecting an unknown client is a no-op.
func (m *Manager) DisconnectDisplay(clientID int, lastViewer bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.Detach(clientID)
	delete(m.clients, clientID)

	if lastViewer || !m.registry.AnyActive() {
		m.restoreLocked()
	}
	m.catalog.Refresh()
}

// ChangePrimaryMonitor reassigns the OS primary designation. A missing
// target is a logged no-op: the device may already have been removed by
// a concurrent disconnect.
func (m *Manager) ChangePrimaryMonitor(deviceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switcher.Switch(deviceName)
}

// AnyVirtualActive reports whether any virtual device exists
// system-wide.
func (m *Manager) AnyVirtualActive() bool {
	return m.registry.AnyActive()
}

// Clients returns the status of every connected viewer.
func (m *Manager) Clients() []ClientStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ClientStatus, 0, len(m.clients))
	for id, state := range m.clients {
		status := ClientStatus{ID: id, Mode: state.mode.String(), Display: state.display}
		for _, rec := range m.registry.Records(id) {
			status.Devices = append(status.Devices, rec.DeviceName)
		}
		out = append(out, status)
	}
	return out
}

// Shutdown disconnects every viewer and restores the desktop. Safe to
// call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.DetachAll()
	m.clients = make(map[int]*clientState)
	m.restoreLocked()
	m.catalog.Refresh()
}

// releaseDevicesLocked tears down a client's prior virtual devices when
// it re-attaches into a mode that owns none. Mirror mode must end up
// with zero devices for the client; when nothing remains system-wide
// the saved configuration is restored.
func (m *Manager) releaseDevicesLocked(clientID int) {
	if len(m.registry.Records(clientID)) == 0 {
		return
	}

	m.registry.Detach(clientID)
	if !m.registry.AnyActive() {
		m.restoreLocked()
	}
	m.catalog.Refresh()
}

// largestApplied reduces a resolution map to its largest applied
// resolution by area.
func largestApplied(resolutions virtual.ResolutionMap) virtual.ResolutionMap {
	var best display.Resolution
	for _, applied := range resolutions {
		if int64(applied.Width)*int64(applied.Height) > int64(best.Width)*int64(best.Height) {
			best = applied
		}
	}
	if best == (display.Resolution{}) {
		return resolutions
	}
	return virtual.ResolutionMap{best: best}
}

// restoreLocked replays the saved hardware configuration. Individual
// mode-change failures are logged and do not stop the remaining
// devices from being restored.
func (m *Manager) restoreLocked() {
	if !m.restoreNeeded {
		return
	}

	for _, saved := range m.saved {
		if err := m.catalog.ChangeResolution(saved.Name, saved.Width, saved.Height); err != nil {
			logger.Warnf("Failed to restore %s to %dx%d: %v",
				saved.Name, saved.Width, saved.Height, err)
		}
	}
	if m.savedPrimary != "" {
		m.switcher.Switch(m.savedPrimary)
	}

	m.saved = nil
	m.savedPrimary = ""
	m.restoreNeeded = false
	logger.Info("Restored pre-attach display configuration")
}
