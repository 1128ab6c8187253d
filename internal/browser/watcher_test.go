package browser

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neboloop/chatdriver/internal/logging"
)

func TestDescriptorWatcher(t *testing.T) {
	store := NewDescriptorStore(filepath.Join(t.TempDir(), "browser_cdp.json"))
	require.NoError(t, store.Save(Descriptor{Endpoint: DefaultEndpoint, PID: 1}))

	var mu sync.Mutex
	var seen []*Descriptor
	w := NewDescriptorWatcher(store, func(d *Descriptor) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	}, logging.Discard())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	last := func() (*Descriptor, int) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return nil, 0
		}
		return seen[len(seen)-1], len(seen)
	}

	require.NoError(t, store.Save(Descriptor{Endpoint: DefaultEndpoint, PID: 2}))
	require.Eventually(t, func() bool {
		d, n := last()
		return n > 0 && d != nil && d.PID == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.Delete())
	require.Eventually(t, func() bool {
		d, n := last()
		return n > 0 && d == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDescriptorWatcherStopIsIdempotent(t *testing.T) {
	store := NewDescriptorStore(filepath.Join(t.TempDir(), "browser_cdp.json"))
	w := NewDescriptorWatcher(store, func(*Descriptor) {}, nil)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
