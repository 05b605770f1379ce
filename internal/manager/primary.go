package manager

import (
	"github.com/bnema/vdisplay/internal/display"
	"github.com/bnema/vdisplay/internal/logger"
)

// PrimarySwitcher reassigns which display the OS treats as primary.
// Used for extend-only transitions and for restoring the original
// primary on disconnect.
type PrimarySwitcher struct {
	catalog *display.Catalog
}

// NewPrimarySwitcher creates a switcher over the catalog.
func NewPrimarySwitcher(catalog *display.Catalog) *PrimarySwitcher {
	return &PrimarySwitcher{catalog: catalog}
}

// Switch makes the named device primary. The target having vanished or
// the OS rejecting the switch are warnings; the caller's mode proceeds
// without primary reassignment.
func (s *PrimarySwitcher) Switch(deviceName string) {
	if s.catalog.FindByName(deviceName) == nil {
		logger.Warnf("Primary switch target %s not in catalog, skipping", deviceName)
		return
	}
	if err := s.catalog.SetPrimary(deviceName); err != nil {
		logger.Warnf("Primary switch to %s failed: %v", deviceName, err)
		return
	}
	logger.Infof("Primary display switched to %s", deviceName)
}
