package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingObserver struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (o *collectingObserver) Observe(ev ChangeEvent) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return true
}

func (o *collectingObserver) saw(kind EventKind, path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range o.events {
		if ev.Kind != kind {
			continue
		}
		for _, p := range ev.Paths {
			if p == path {
				return true
			}
		}
	}
	return false
}

func TestSource_WatchesTreeAndNewDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "BP", "scripts"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".bridge"), 0o755))

	src, err := NewSource(root, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, src.WatchList(), filepath.Join(root, "BP", "scripts"))
	assert.NotContains(t, src.WatchList(), filepath.Join(root, ".bridge"))

	obs := &collectingObserver{}
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, obs) }()

	main := filepath.Join(root, "BP", "scripts", "main.ts")
	require.NoError(t, os.WriteFile(main, []byte("a"), 0o600))
	require.Eventually(t, func() bool { return obs.saw(KindCreated, main) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(main))
	require.Eventually(t, func() bool { return obs.saw(KindRemoved, main) }, 2*time.Second, 10*time.Millisecond)

	nested := filepath.Join(root, "RP", "textures")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	img := filepath.Join(nested, "a.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o600))
	require.Eventually(t, func() bool {
		return obs.saw(KindCreated, img) || obs.saw(KindModified, img)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}
}
