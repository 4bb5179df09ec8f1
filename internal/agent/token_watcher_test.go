package agent

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	changed := make(chan struct{}, 1)
	w := NewTokenWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"a":{}}`), 0600))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change event after file write")
	}
}

func TestTokenWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	var fired atomic.Int64
	w := NewTokenWatcher(path, func() { fired.Add(1) })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))

	time.Sleep(2 * tokenDebounceInterval)
	assert.Equal(t, int64(0), fired.Load())
}

func TestTokenWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	var fired atomic.Int64
	w := NewTokenWatcher(path, func() { fired.Add(1) })
	require.NoError(t, w.Start())
	defer w.Stop()

	// A store save produces several events in quick succession.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))
		require.NoError(t, os.Chmod(path, 0600))
	}

	time.Sleep(3 * tokenDebounceInterval)
	assert.Equal(t, int64(1), fired.Load())
}

func TestTokenWatcher_StartStopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	w := NewTokenWatcher(path, func() {})

	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}
