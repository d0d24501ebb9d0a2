package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/kalamos/internal/engine"
)

func startWatcher(t *testing.T, root string, ignored ...string) *Watcher {
	t.Helper()
	w, err := New(root, ignored...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func nextEvent(t *testing.T, w *Watcher) engine.Change {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a change event")
		return engine.Change{}
	}
}

func TestWatcher_ForwardsFileCreation(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	ev := nextEvent(t, w)
	require.Equal(t, path, ev.Path)
	require.Equal(t, engine.OpAdded, ev.Op)
}

func TestWatcher_ForwardsRemoval(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))
	w := startWatcher(t, root)

	require.NoError(t, os.Remove(path))

	ev := nextEvent(t, w)
	require.Equal(t, path, ev.Path)
	require.Equal(t, engine.OpRemoved, ev.Op)
}

func TestWatcher_IgnoresOutputTreeAndDotfiles(t *testing.T) {
	root := t.TempDir()
	public := filepath.Join(root, "public")
	require.NoError(t, os.MkdirAll(public, 0o750))
	w := startWatcher(t, root, public)

	require.NoError(t, os.WriteFile(filepath.Join(public, "a.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	visible := filepath.Join(root, "visible.md")
	require.NoError(t, os.WriteFile(visible, []byte("x"), 0o644))

	// only the visible file comes through
	ev := nextEvent(t, w)
	require.Equal(t, visible, ev.Path)
}

func TestWatcher_BuffersEventsWhileConsumerIsBusy(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	// nothing reads the stream during this window, as during an initial
	// full build; the changes must still be there afterwards
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	time.Sleep(500 * time.Millisecond)

	seen := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for len(seen) < 3 {
		select {
		case ev := <-w.Events():
			seen[filepath.Base(ev.Path)] = true
		case <-deadline:
			t.Fatalf("saw only %d of 3 buffered paths", len(seen))
		}
	}
	require.True(t, seen["a.md"] && seen["b.md"] && seen["c.md"])
}

func TestWatcher_PicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "posts")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	// give the watcher a moment to register the new directory
	time.Sleep(250 * time.Millisecond)

	inner := filepath.Join(sub, "a.md")
	require.NoError(t, os.WriteFile(inner, []byte("x"), 0o644))

	ev := nextEvent(t, w)
	require.Equal(t, inner, ev.Path)
	require.Equal(t, engine.OpAdded, ev.Op)
}
