package display

import (
	"github.com/bnema/vdisplay/internal/logger"
)

// Backend interface for OS display enumeration and mode control
type Backend interface {
	// ListOutputs enumerates active, non-mirroring display outputs.
	ListOutputs() ([]*Monitor, error)
	// SetMode requests a mode change on the named output.
	SetMode(name string, width, height int32) error
	// SetPrimary marks the named output as the OS primary display.
	SetPrimary(name string) error
	Close() error
}

// NewBackend selects a backend, trying the most capable first. When
// nothing is available a null backend is returned so callers proceed
// with an empty catalog instead of failing.
func NewBackend() Backend {
	backends := []struct {
		name   string
		create func() (Backend, error)
	}{
		{"randr", newRandrBackend}, // exec-based, can change modes
		{"drm", newDRMBackend},     // sysfs, enumeration only
	}

	for _, b := range backends {
		backend, err := b.create()
		if err == nil {
			logger.Debugf("Using display backend: %s", b.name)
			return backend
		}
		logger.Debugf("Display backend %s unavailable: %v", b.name, err)
	}

	logger.Warn("No display backend available, catalog will be empty")
	return nullBackend{}
}

// nullBackend reports no displays; mode changes are silently dropped so
// teardown paths stay harmless on headless hosts.
type nullBackend struct{}

func (nullBackend) ListOutputs() ([]*Monitor, error) { return nil, nil }

func (nullBackend) SetMode(string, int32, int32) error { return nil }

func (nullBackend) SetPrimary(string) error { return nil }

func (nullBackend) Close() error { return nil }
