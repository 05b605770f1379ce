// Package driver wraps the vendor software-device driver that backs
// virtual displays: one-time installation, asynchronous device creation
// with a bounded readiness wait, and exactly-once release.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/vdisplay/internal/logger"
)

var (
	// ErrUnavailable means the software-device driver is not installed
	// or failed to load. Virtual and extend modes are disabled; mirror
	// mode still works.
	ErrUnavailable = errors.New("virtual display driver unavailable")

	// ErrCreateTimeout means the OS never signalled device readiness
	// within the bounded wait.
	ErrCreateTimeout = errors.New("timed out waiting for virtual display device")
)

// API is the seam to the vendor driver. The production implementation
// talks to the kernel module; tests substitute a fake.
type API interface {
	// Install loads the driver. Must be idempotent.
	Install(ctx context.Context, fromCommandline bool) error
	// Available reports whether devices can be created.
	Available() bool
	// Create starts asynchronous creation of a named device. The
	// returned handle's Ready channel is signalled exactly once by the
	// driver-side completion path; that path must not touch any other
	// state.
	Create(name string) (Handle, error)
	// Destroy releases the OS resources behind a handle.
	Destroy(h Handle) error
}

// Handle identifies one in-flight or live software device.
type Handle interface {
	// Ready delivers nil on successful creation or the OS-reported
	// failure. Signalled exactly once.
	Ready() <-chan error
}

// Device is a successfully requested software device. It is created by
// Bridge.CreateDevice and must be released with Bridge.CloseDevice
// exactly once.
type Device struct {
	name   string
	handle Handle

	mu     sync.Mutex
	closed bool
}

// Name returns the OS device name the device was created under.
func (d *Device) Name() string {
	return d.name
}

// WaitReady blocks until the OS signals device readiness, the timeout
// expires, or the context is cancelled. On timeout or OS failure the
// device is unusable and must still be closed by the caller.
func (d *Device) WaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case err := <-d.handle.Ready():
		if err != nil {
			return fmt.Errorf("device %s creation failed: %w", d.name, err)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("device %s: %w", d.name, ErrCreateTimeout)
	case <-ctx.Done():
		return fmt.Errorf("device %s: %w", d.name, ctx.Err())
	}
}

// Bridge sequences driver installation and device lifecycle. A single
// mutex keeps concurrent attach calls from racing the one-time install.
type Bridge struct {
	mu        sync.Mutex
	api       API
	installed bool
	instErr   error
}

// NewBridge creates a bridge over the given driver API.
func NewBridge(api API) *Bridge {
	return &Bridge{api: api}
}

// Install loads the software-device driver. The result is cached: rare,
// one-time work that concurrent attaches must not duplicate. Failure is
// not fatal to the process; it only disables device creation.
func (b *Bridge) Install(ctx context.Context, fromCommandline bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.installed {
		return b.instErr
	}

	err := b.api.Install(ctx, fromCommandline)
	if err != nil {
		logger.Warnf("Driver install failed, virtual and extend modes disabled: %v", err)
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	b.installed = true
	b.instErr = err
	return err
}

// Available reports whether virtual devices can be created.
func (b *Bridge) Available() bool {
	b.mu.Lock()
	installedOK := b.installed && b.instErr == nil
	b.mu.Unlock()
	return installedOK || b.api.Available()
}

// CreateDevice starts asynchronous creation of a named device. The
// caller must wait for readiness with Device.WaitReady and release the
// device with CloseDevice exactly once.
func (b *Bridge) CreateDevice(name string) (*Device, error) {
	if !b.Available() {
		return nil, ErrUnavailable
	}

	handle, err := b.api.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create device %s: %w", name, err)
	}

	logger.Debugf("Requested software device %s", name)
	return &Device{name: name, handle: handle}, nil
}

// CloseDevice releases a device. Exactly one close per successful
// create; a double-close is a logic error that is logged and ignored.
func (b *Bridge) CloseDevice(d *Device) {
	if d == nil {
		return
	}

	d.mu.Lock()
	alreadyClosed := d.closed
	d.closed = true
	d.mu.Unlock()

	if alreadyClosed {
		logger.Errorf("Double close of device %s ignored", d.name)
		return
	}

	if err := b.api.Destroy(d.handle); err != nil {
		logger.Warnf("Failed to destroy device %s: %v", d.name, err)
	} else {
		logger.Debugf("Closed software device %s", d.name)
	}
}
