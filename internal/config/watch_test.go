package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kato.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persistence: 5\n"), 0o644))

	reloaded := make(chan *SessionConfiguration, 1)
	watcher, err := Watch(path, func(cfg *SessionConfiguration) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, os.WriteFile(path, []byte("persistence: 42\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 42, cfg.Persistence)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
