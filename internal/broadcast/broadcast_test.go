package broadcast

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/vdisplay/internal/display"
)

func tempPublisher(t *testing.T, capacity int) *Publisher {
	t.Helper()
	return NewPublisher(filepath.Join(t.TempDir(), "resolutions"), capacity)
}

func TestPublishSnapshotRoundTrip(t *testing.T) {
	p := tempPublisher(t, 16)

	list := []display.Resolution{
		{Width: 1920, Height: 1080},
		{Width: 1280, Height: 720},
		{Width: 3840, Height: 2160},
	}
	require.NoError(t, p.Publish(list))

	got, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, list, got)
}

func TestPublishTruncatesBeyondCapacity(t *testing.T) {
	p := tempPublisher(t, 2)

	list := []display.Resolution{
		{Width: 640, Height: 480},
		{Width: 800, Height: 600},
		{Width: 1024, Height: 768},
	}
	// Over-capacity input is truncated, never an error.
	require.NoError(t, p.Publish(list))

	got, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, list[:2], got)
}

func TestRepublishReplacesTable(t *testing.T) {
	p := tempPublisher(t, 8)

	require.NoError(t, p.Publish([]display.Resolution{{Width: 640, Height: 480}}))
	require.NoError(t, p.Publish([]display.Resolution{
		{Width: 1920, Height: 1080},
		{Width: 2560, Height: 1440},
	}))

	got, err := p.Snapshot()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(1920), got[0].Width)
}

func TestSnapshotAcrossCapacityMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolutions")

	writer := NewPublisher(path, 8)
	list := []display.Resolution{
		{Width: 1920, Height: 1080},
		{Width: 2560, Height: 1440},
		{Width: 3840, Height: 2160},
	}
	require.NoError(t, writer.Publish(list))

	// The layout is self-describing: readers configured with a smaller
	// or larger capacity than the writer read the same table.
	for _, capacity := range []int{2, 8, 64} {
		reader := NewPublisher(path, capacity)
		got, err := reader.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, list, got)
	}
}

func TestSnapshotClampsCountToSegmentSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolutions")

	writer := NewPublisher(path, 2)
	require.NoError(t, writer.Publish([]display.Resolution{
		{Width: 640, Height: 480},
		{Width: 800, Height: 600},
	}))

	// A reader expecting a bigger table only gets what the segment
	// actually holds.
	reader := NewPublisher(path, 100)
	got, err := reader.Snapshot()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int32(640), got[0].Width)
}

func TestSnapshotMissingSegment(t *testing.T) {
	p := tempPublisher(t, 8)

	_, err := p.Snapshot()
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	p := tempPublisher(t, 8)

	require.NoError(t, p.Publish([]display.Resolution{{Width: 640, Height: 480}}))
	require.NoError(t, p.Remove())
	// Removing an absent segment stays quiet.
	require.NoError(t, p.Remove())

	_, err := p.Snapshot()
	assert.Error(t, err)
}

func TestDefaultCapacityFallback(t *testing.T) {
	p := NewPublisher(filepath.Join(t.TempDir(), "resolutions"), 0)
	assert.Equal(t, DefaultCapacity, p.capacity)
}
