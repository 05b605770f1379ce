package driver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bnema/vdisplay/internal/logger"
)

const drmClassPath = "/sys/class/drm"

// createWatchTimeout bounds the watcher goroutine's own lifetime. It is
// longer than any sane caller's WaitReady timeout so a card that
// materializes after the caller gave up is still recorded on the handle
// and can be unbound during rollback.
const createWatchTimeout = 30 * time.Second

// evdiAPI drives the evdi kernel module through its sysfs control
// nodes: writing to <sysfs>/add spawns a new DRM card, device removal
// goes through <sysfs>/remove_all-style control files. Creation is
// asynchronous; a watcher on /sys/class/drm signals readiness when the
// new card node appears.
type evdiAPI struct {
	module       string
	sysfs        string
	drmPath      string
	watchTimeout time.Duration
}

// NewSystemAPI returns the production driver API for the configured
// kernel module.
func NewSystemAPI(module, sysfsPath string) API {
	return &evdiAPI{
		module:       module,
		sysfs:        sysfsPath,
		drmPath:      drmClassPath,
		watchTimeout: createWatchTimeout,
	}
}

func (e *evdiAPI) Install(ctx context.Context, fromCommandline bool) error {
	if e.Available() {
		logger.Debugf("Driver %s already loaded", e.module)
		return nil
	}

	cmd := exec.CommandContext(ctx, "modprobe", e.module)
	if fromCommandline {
		// Interactive installs surface the tool's own diagnostics.
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("modprobe %s: %w", e.module, err)
	}

	if !e.Available() {
		return fmt.Errorf("driver %s loaded but control node %s missing", e.module, e.sysfs)
	}
	logger.Infof("Driver %s installed", e.module)
	return nil
}

func (e *evdiAPI) Available() bool {
	_, err := os.Stat(filepath.Join(e.sysfs, "add"))
	return err == nil
}

// evdiHandle tracks one spawned card. ready is signalled exactly once
// by the watcher goroutine; settled is closed when that goroutine
// exits, after which card is final.
type evdiHandle struct {
	ready   chan error
	settled chan struct{}

	mu   sync.Mutex
	card string
}

func (h *evdiHandle) Ready() <-chan error { return h.ready }

func (h *evdiHandle) setCard(card string) {
	h.mu.Lock()
	h.card = card
	h.mu.Unlock()
}

func (h *evdiHandle) cardName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.card
}

func (e *evdiAPI) Create(name string) (Handle, error) {
	before, err := listCards(e.drmPath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(e.drmPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", e.drmPath, err)
	}

	if err := os.WriteFile(filepath.Join(e.sysfs, "add"), []byte("1"), 0200); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}

	h := &evdiHandle{ready: make(chan error, 1), settled: make(chan struct{})}
	go e.awaitCard(watcher, before, h)
	return h, nil
}

// awaitCard runs on its own goroutine, standing in for the OS creation
// callback. It records the card on the handle before signalling ready,
// so rollback can find the device even when the caller timed out first.
func (e *evdiAPI) awaitCard(watcher *fsnotify.Watcher, before map[string]bool, h *evdiHandle) {
	defer close(h.settled)
	defer watcher.Close()

	// The card may already exist by the time the watch was set up.
	if card := newCard(e.drmPath, before); card != "" {
		h.setCard(card)
		h.ready <- nil
		return
	}

	deadline := time.NewTimer(e.watchTimeout)
	defer deadline.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				h.ready <- fmt.Errorf("device watch closed before creation completed")
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if card := newCard(e.drmPath, before); card != "" {
				h.setCard(card)
				h.ready <- nil
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				h.ready <- fmt.Errorf("device watch closed before creation completed")
				return
			}
			h.ready <- fmt.Errorf("device watch failed: %w", err)
			return
		case <-deadline.C:
			h.ready <- fmt.Errorf("no card appeared within %v", e.watchTimeout)
			return
		}
	}
}

func (e *evdiAPI) Destroy(h Handle) error {
	eh, ok := h.(*evdiHandle)
	if !ok {
		return fmt.Errorf("foreign handle %T", h)
	}

	// The caller may be rolling back a WaitReady timeout while the
	// kernel is still creating the card. Wait for the watcher goroutine
	// to settle (it has its own deadline) so a late arrival is unbound
	// here instead of leaking.
	<-eh.settled

	card := eh.cardName()
	if card == "" {
		// The watcher gave up too; no card was ever created.
		logger.Warnf("Destroying device with no card, nothing to unbind")
		return nil
	}

	unbind := filepath.Join(e.drmPath, card, "device", "driver", "unbind")
	id := strings.TrimPrefix(card, "card")
	if err := os.WriteFile(unbind, []byte(e.module+"."+id), 0200); err != nil {
		return fmt.Errorf("failed to unbind %s: %w", card, err)
	}

	// Give udev a beat to tear the node down before the next create
	// re-scans the card list.
	time.Sleep(50 * time.Millisecond)
	return nil
}

// listCards snapshots the DRM card directories currently present.
func listCards(drmPath string) (map[string]bool, error) {
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", drmPath, err)
	}

	cards := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "card") && !strings.Contains(name, "-") {
			cards[name] = true
		}
	}
	return cards, nil
}

// newCard returns a card directory that was not in the before set.
func newCard(drmPath string, before map[string]bool) string {
	cards, err := listCards(drmPath)
	if err != nil {
		return ""
	}
	for card := range cards {
		if !before[card] {
			return card
		}
	}
	return ""
}
