package branding

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branding.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Uno\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Branding, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(b Branding) { changes <- b })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("title: Dos\n"), 0o600))

	select {
	case b := <-changes:
		require.Equal(t, "Dos", b.Title)
		require.Equal(t, Default().Greeting, b.Greeting)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_SkipsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "branding.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Uno\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Branding, 4)
	go func() { _ = Watch(ctx, path, nil, func(b Branding) { changes <- b }) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("title: [unclosed\n"), 0o600))

	select {
	case b := <-changes:
		t.Fatalf("unexpected reload: %+v", b)
	case <-time.After(time.Second):
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "branding.yaml"), nil, func(Branding) {})
	require.Error(t, err)
}
