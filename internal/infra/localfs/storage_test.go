package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/framelab/actionframes/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoragePutGetList(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "ns1/re_size_frames/b.jpg", []byte("b")))
	require.NoError(t, s.Put(ctx, "ns1/re_size_frames/a.jpg", []byte("a")))
	require.NoError(t, s.Put(ctx, "ns2/re_size_frames/a.jpg", []byte("other")))

	data, err := s.Get(ctx, "ns1/re_size_frames/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	names, err := s.List(ctx, "ns1/re_size_frames/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns1/re_size_frames/a.jpg", "ns1/re_size_frames/b.jpg"}, names)
}

func TestStorageOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "doc.json", []byte("one")))
	require.NoError(t, s.Put(ctx, "doc.json", []byte("two")))
	data, err := s.Get(ctx, "doc.json")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestStorageMissingBlob(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "nope.jpg")
	assert.ErrorIs(t, err, port.ErrBlobNotFound)
}

func TestStorageNamesStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewStorage(root)
	require.NoError(t, err)

	p, err := s.Path("../../etc/passwd")
	require.NoError(t, err)
	assert.Contains(t, p, root)

	_, err = s.Path("/")
	assert.Error(t, err)
}

func TestStorageDownloadVideo(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "uploads/clip.mp4", []byte("video")))

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, s.DownloadVideo(ctx, "uploads/clip.mp4", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))

	err = s.DownloadVideo(ctx, "uploads/none.mp4", dest)
	assert.ErrorIs(t, err, port.ErrBlobNotFound)
}
