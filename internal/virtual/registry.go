// Package virtual owns the per-client records of software display
// devices and drives the driver bridge to realize them.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/vdisplay/internal/display"
	"github.com/bnema/vdisplay/internal/driver"
	"github.com/bnema/vdisplay/internal/logger"
)

// ErrTooManyMonitors means an attach requested more distinct
// resolutions than the configured virtual monitor limit allows.
var ErrTooManyMonitors = errors.New("requested resolutions exceed the virtual monitor limit")

// ResolutionMap maps a viewer-requested resolution to the resolution
// actually applied. It lives only for the duration of one attach call.
type ResolutionMap = map[display.Resolution]display.Resolution

// Record is one live software device owned by a client. Records are
// created on attach and destroyed on the matching detach; the registry
// owns them exclusively.
type Record struct {
	ClientID     int
	DeviceName   string
	Device       *driver.Device
	Width        int32
	Height       int32
	SingleExtend bool
}

// Options tune registry behavior.
type Options struct {
	// NamePrefix is prepended to the incrementing device name suffix.
	NamePrefix string
	// MaxMonitors caps how many devices one attach may create.
	MaxMonitors int
	// CreateTimeout bounds the wait for each device's readiness signal.
	CreateTimeout time.Duration
}

// Registry tracks every virtual device in the system, keyed by owning
// client. One mutex serializes attach/detach and guards the name set.
type Registry struct {
	mu      sync.Mutex
	bridge  *driver.Bridge
	records map[int][]*Record
	names   map[string]bool
	suffix  int
	opts    Options
}

// NewRegistry creates an empty registry over the given bridge.
func NewRegistry(bridge *driver.Bridge, opts Options) *Registry {
	if opts.NamePrefix == "" {
		opts.NamePrefix = "VDISPLAY"
	}
	if opts.MaxMonitors <= 0 {
		opts.MaxMonitors = 4
	}
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = 10 * time.Second
	}
	return &Registry{
		bridge:  bridge,
		records: make(map[int][]*Record),
		names:   make(map[string]bool),
		opts:    opts,
	}
}

// Attach creates the devices a client needs: one per distinct applied
// resolution, ordered deterministically. More distinct resolutions than
// MaxMonitors fails before any device is created. Any mid-sequence
// failure rolls back every device created by this call; prior state is
// untouched. Re-attaching a live client first tears down its previous
// records, so the surviving device set is exactly the one implied by
// the latest call.
func (r *Registry) Attach(ctx context.Context, clientID int, resolutions ResolutionMap, singleExtend bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := distinctApplied(resolutions)
	if len(wanted) == 0 {
		return fmt.Errorf("client %d: no resolutions requested", clientID)
	}
	if len(wanted) > r.opts.MaxMonitors {
		return fmt.Errorf("client %d requested %d monitors: %w (limit %d)",
			clientID, len(wanted), ErrTooManyMonitors, r.opts.MaxMonitors)
	}

	// A clientId owns at most one active record set at a time.
	if len(r.records[clientID]) > 0 {
		logger.Debugf("Client %d re-attaching, tearing down %d prior devices",
			clientID, len(r.records[clientID]))
		r.detachLocked(clientID)
	}

	created := make([]*Record, 0, len(wanted))
	rollback := func() {
		for _, rec := range created {
			r.bridge.CloseDevice(rec.Device)
			delete(r.names, rec.DeviceName)
		}
	}

	for _, res := range wanted {
		name := r.allocateNameLocked()
		dev, err := r.bridge.CreateDevice(name)
		if err != nil {
			delete(r.names, name)
			rollback()
			return fmt.Errorf("client %d: %w", clientID, err)
		}
		created = append(created, &Record{
			ClientID:     clientID,
			DeviceName:   name,
			Device:       dev,
			Width:        res.Width,
			Height:       res.Height,
			SingleExtend: singleExtend,
		})

		if err := dev.WaitReady(ctx, r.opts.CreateTimeout); err != nil {
			rollback()
			return fmt.Errorf("client %d: %w", clientID, err)
		}
	}

	r.records[clientID] = created
	logger.Infof("Attached %d virtual device(s) for client %d", len(created), clientID)
	return nil
}

// Detach removes and closes every record owned by the client. Unknown
// or already-detached clients are a no-op, never an error.
func (r *Registry) Detach(clientID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked(clientID)
}

func (r *Registry) detachLocked(clientID int) {
	records := r.records[clientID]
	if len(records) == 0 {
		return
	}

	for _, rec := range records {
		r.bridge.CloseDevice(rec.Device)
		delete(r.names, rec.DeviceName)
	}
	delete(r.records, clientID)
	logger.Infof("Detached %d virtual device(s) for client %d", len(records), clientID)
}

// DetachAll tears down every record in the system, used on process
// shutdown.
func (r *Registry) DetachAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID := range r.records {
		r.detachLocked(clientID)
	}
}

// AnyActive reports whether any virtual device remains anywhere in the
// system.
func (r *Registry) AnyActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records) > 0
}

// Records returns copies of the client's records; an empty slice for
// unknown clients.
func (r *Registry) Records(clientID int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records[clientID]))
	for _, rec := range r.records[clientID] {
		out = append(out, *rec)
	}
	return out
}

// DeviceNames returns every in-use device name.
func (r *Registry) DeviceNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// allocateNameLocked returns the next free device name. The suffix only
// increments; a collision with an in-use name bumps it again, so a
// collision never surfaces as an error and a name is never reused while
// still registered.
func (r *Registry) allocateNameLocked() string {
	for {
		r.suffix++
		name := fmt.Sprintf("%s%d", r.opts.NamePrefix, r.suffix)
		if !r.names[name] {
			r.names[name] = true
			return name
		}
	}
}

// distinctApplied collapses the resolution map to its distinct applied
// resolutions, sorted for deterministic device ordering.
func distinctApplied(resolutions ResolutionMap) []display.Resolution {
	seen := make(map[display.Resolution]bool, len(resolutions))
	out := make([]display.Resolution, 0, len(resolutions))
	for _, applied := range resolutions {
		if seen[applied] {
			continue
		}
		seen[applied] = true
		out = append(out, applied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Width != out[j].Width {
			return out[i].Width < out[j].Width
		}
		return out[i].Height < out[j].Height
	})
	return out
}
