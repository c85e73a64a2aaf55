package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/blob/core"
)

func TestSanitizeKey(t *testing.T) {
	for _, bad := range []string{"", "  ", "../escape", "a/../../b", "/abs", "img.meta"} {
		_, err := sanitizeKey(bad)
		assert.Error(t, err, bad)
	}
	k, err := sanitizeKey("a//b/./c.png")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.png", k)
}

func TestPutWritesSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, s.Root())

	info, err := s.Put(context.Background(), "bp/1.png", strings.NewReader("abc"), core.PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", info.ETag)

	raw, err := os.ReadFile(filepath.Join(root, "bp", "1.png.meta"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content_type": "image/png"`)

	entries, err := os.ReadDir(filepath.Join(root, "bp"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "k", strings.NewReader("x"), core.PutOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "k.meta"), []byte("{"), 0o644))

	_, err = s.Head(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNotFound)
	_, err = s.List(context.Background(), "")
	assert.ErrorContains(t, err, "decode k.meta")
}

func TestCancelledContext(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Delete(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
