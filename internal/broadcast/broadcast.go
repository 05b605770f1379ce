// Package broadcast publishes the supported resolution presets into a
// globally named fixed-size shared memory block so a separate-privilege
// configuration process can read them without a round-trip call.
package broadcast

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/bnema/vdisplay/internal/display"
	"github.com/bnema/vdisplay/internal/logger"
)

// DefaultCapacity bounds how many resolution pairs the block holds.
const DefaultCapacity = 200

// Block layout, little endian:
//
//	[0:4]  magic "VDIS"
//	[4:8]  entry count
//	[8:..] capacity pairs of uint32 width, uint32 height
const (
	blockMagic   = 0x56444953
	headerSize   = 8
	entrySize    = 8
	lockFileMode = 0644
)

// Publisher owns a named shared-memory segment. Writers take an
// exclusive flock on the backing file, which plays the role of the
// system-wide named mutex; readers take a shared one and get a
// point-in-time snapshot with no cross-field guarantees beyond the
// block itself.
type Publisher struct {
	path     string
	capacity int
}

// NewPublisher creates a publisher for the named segment. A bare
// segment name lands under /dev/shm; a path is used as-is (tests point
// it at a temp dir). Capacity zero or below falls back to
// DefaultCapacity.
func NewPublisher(segment string, capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	path := segment
	if !strings.Contains(segment, string(os.PathSeparator)) {
		path = filepath.Join("/dev/shm", segment)
	}
	return &Publisher{path: path, capacity: capacity}
}

// Path returns the backing file path.
func (p *Publisher) Path() string {
	return p.path
}

func (p *Publisher) size() int {
	return headerSize + p.capacity*entrySize
}

// Publish writes the resolution list into the block. Input beyond
// capacity is truncated with a warning, never an error: a partial table
// is still useful to the reader.
func (p *Publisher) Publish(list []display.Resolution) error {
	if len(list) > p.capacity {
		logger.Warnf("Truncating resolution broadcast from %d to %d entries", len(list), p.capacity)
		list = list[:p.capacity]
	}

	f, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE, lockFileMode)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", p.path, err)
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock segment: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	if err := f.Truncate(int64(p.size())); err != nil {
		return fmt.Errorf("failed to size segment: %w", err)
	}

	data, err := unix.Mmap(fd, 0, p.size(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to map segment: %w", err)
	}
	defer unix.Munmap(data)

	binary.LittleEndian.PutUint32(data[0:], blockMagic)
	binary.LittleEndian.PutUint32(data[4:], uint32(len(list)))
	for i, res := range list {
		off := headerSize + i*entrySize
		binary.LittleEndian.PutUint32(data[off:], uint32(res.Width))
		binary.LittleEndian.PutUint32(data[off+4:], uint32(res.Height))
	}

	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("failed to sync segment: %w", err)
	}

	logger.Debugf("Published %d resolutions to %s", len(list), p.path)
	return nil
}

// Snapshot reads the currently published list. The table size is taken
// from the segment itself, not from the reader's configured capacity,
// so companion processes configured differently from the writer can
// still read the block. Used by the companion process's reader side
// and by tests.
func (p *Publisher) Snapshot() ([]display.Resolution, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s: %w", p.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat segment: %w", err)
	}
	size := int(info.Size())
	if size < headerSize {
		return nil, fmt.Errorf("segment %s is %d bytes, want at least %d", p.path, size, headerSize)
	}

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("failed to lock segment: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map segment: %w", err)
	}
	defer unix.Munmap(data)

	if binary.LittleEndian.Uint32(data[0:]) != blockMagic {
		return nil, fmt.Errorf("segment %s has no published table", p.path)
	}

	count := int(binary.LittleEndian.Uint32(data[4:]))
	if limit := (size - headerSize) / entrySize; count > limit {
		count = limit
	}

	list := make([]display.Resolution, 0, count)
	for i := 0; i < count; i++ {
		off := headerSize + i*entrySize
		list = append(list, display.Resolution{
			Width:  int32(binary.LittleEndian.Uint32(data[off:])),
			Height: int32(binary.LittleEndian.Uint32(data[off+4:])),
		})
	}
	return list, nil
}

// Remove deletes the backing segment.
func (p *Publisher) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove segment: %w", err)
	}
	return nil
}
