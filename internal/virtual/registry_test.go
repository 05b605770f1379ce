package virtual

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/vdisplay/internal/display"
	"github.com/bnema/vdisplay/internal/driver"
)

type scriptedHandle struct {
	name  string
	ready chan error
}

func (h *scriptedHandle) Ready() <-chan error { return h.ready }

// scriptedAPI counts device traffic and can fail the Nth create.
type scriptedAPI struct {
	mu        sync.Mutex
	creates   int
	created   []string
	destroyed []string

	failCreateOn int // 1-based create index that errors, 0 = never
	failReadyOn  int // 1-based create index whose readiness reports failure
}

func (f *scriptedAPI) Install(ctx context.Context, fromCommandline bool) error { return nil }
func (f *scriptedAPI) Available() bool                                         { return true }

func (f *scriptedAPI) Create(name string) (driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreateOn != 0 && f.creates == f.failCreateOn {
		return nil, fmt.Errorf("scripted create failure")
	}

	h := &scriptedHandle{name: name, ready: make(chan error, 1)}
	if f.failReadyOn != 0 && f.creates == f.failReadyOn {
		h.ready <- fmt.Errorf("scripted readiness failure")
	} else {
		h.ready <- nil
	}
	f.created = append(f.created, name)
	return h, nil
}

func (f *scriptedAPI) Destroy(h driver.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, h.(*scriptedHandle).name)
	return nil
}

func newTestRegistry(api driver.API, opts Options) *Registry {
	if opts.CreateTimeout == 0 {
		opts.CreateTimeout = time.Second
	}
	return NewRegistry(driver.NewBridge(api), opts)
}

func res(w, h int32) display.Resolution {
	return display.Resolution{Width: w, Height: h}
}

func TestAttachOneDevicePerDistinctResolution(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{})

	// Two requests map onto the same applied resolution: one device.
	err := r.Attach(context.Background(), 7, ResolutionMap{
		res(1920, 1080): res(1920, 1080),
		res(1918, 1078): res(1920, 1080),
		res(1280, 720):  res(1280, 720),
	}, false)
	require.NoError(t, err)

	records := r.Records(7)
	require.Len(t, records, 2)
	assert.True(t, r.AnyActive())

	for _, rec := range records {
		assert.Equal(t, 7, rec.ClientID)
		assert.False(t, rec.SingleExtend)
	}
	// Deterministic ordering: smallest applied resolution first.
	assert.Equal(t, int32(1280), records[0].Width)
	assert.Equal(t, int32(1920), records[1].Width)
}

func TestAttachRollsBackOnCreateFailure(t *testing.T) {
	api := &scriptedAPI{failCreateOn: 2}
	r := newTestRegistry(api, Options{})

	err := r.Attach(context.Background(), 1, ResolutionMap{
		res(1280, 720):  res(1280, 720),
		res(1920, 1080): res(1920, 1080),
	}, false)
	require.Error(t, err)

	// Everything this call created is gone; nothing is left registered.
	assert.Equal(t, api.created, api.destroyed)
	assert.Empty(t, r.Records(1))
	assert.False(t, r.AnyActive())
	assert.Empty(t, r.DeviceNames())
}

func TestAttachRollsBackOnReadinessFailure(t *testing.T) {
	api := &scriptedAPI{failReadyOn: 2}
	r := newTestRegistry(api, Options{})

	err := r.Attach(context.Background(), 1, ResolutionMap{
		res(1280, 720):  res(1280, 720),
		res(1920, 1080): res(1920, 1080),
	}, false)
	require.Error(t, err)

	// The failed partial handle is closed along with its predecessors.
	assert.Len(t, api.destroyed, 2)
	assert.False(t, r.AnyActive())
}

func TestAttachFailureLeavesPriorStateUntouched(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{})

	require.NoError(t, r.Attach(context.Background(), 1, ResolutionMap{
		res(1920, 1080): res(1920, 1080),
	}, false))
	before := r.Records(1)

	api.mu.Lock()
	api.failCreateOn = api.creates + 1
	api.mu.Unlock()

	err := r.Attach(context.Background(), 2, ResolutionMap{
		res(1280, 720): res(1280, 720),
	}, false)
	require.Error(t, err)

	assert.Equal(t, before, r.Records(1))
	assert.True(t, r.AnyActive())
}

func TestReattachReplacesDeviceSet(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{})

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Attach(context.Background(), 5, ResolutionMap{
			res(1920, 1080): res(1920, 1080),
		}, false))
	}

	// No accumulation across repeated calls.
	assert.Len(t, r.Records(5), 1)
	assert.Len(t, r.DeviceNames(), 1)
}

func TestDetachUnknownClientIsNoop(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{})

	r.Detach(42)
	r.Detach(42)

	assert.Empty(t, api.destroyed)
	assert.False(t, r.AnyActive())
}

func TestTooManyResolutionsFailsBeforeCreating(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{MaxMonitors: 2})

	err := r.Attach(context.Background(), 1, ResolutionMap{
		res(1280, 720):  res(1280, 720),
		res(1920, 1080): res(1920, 1080),
		res(2560, 1440): res(2560, 1440),
	}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyMonitors)
	assert.Equal(t, 0, api.creates)
}

func TestNamesNeverReusedWhileReferenced(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{})

	// Client 99 keeps a device alive for the whole run.
	require.NoError(t, r.Attach(context.Background(), 99, ResolutionMap{
		res(1024, 768): res(1024, 768),
	}, false))
	held := r.Records(99)[0].DeviceName

	seen := map[string]bool{held: true}
	for i := 0; i < 1000; i++ {
		require.NoError(t, r.Attach(context.Background(), 1, ResolutionMap{
			res(1920, 1080): res(1920, 1080),
		}, false))

		name := r.Records(1)[0].DeviceName
		assert.False(t, seen[name], "cycle %d reused name %s", i, name)
		seen[name] = true

		r.Detach(1)
	}

	assert.Equal(t, []string{held}, r.DeviceNames())
}

func TestConcurrentAttachIsolation(t *testing.T) {
	api := &scriptedAPI{}
	r := newTestRegistry(api, Options{MaxMonitors: 8})

	const clients = 16
	var wg sync.WaitGroup
	for id := 1; id <= clients; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				err := r.Attach(context.Background(), id, ResolutionMap{
					res(int32(640+id), 480): res(int32(640+id), 480),
				}, false)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	// Each client ends with exactly its own single record, and no two
	// clients share a device name.
	names := map[string]int{}
	for id := 1; id <= clients; id++ {
		records := r.Records(id)
		require.Len(t, records, 1, "client %d", id)
		assert.Equal(t, int32(640+id), records[0].Width)
		names[records[0].DeviceName]++
	}
	for name, count := range names {
		assert.Equal(t, 1, count, "name %s shared", name)
	}
}
