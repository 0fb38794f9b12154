// internal/media/store_test.go
package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/MediaScrapexter/internal/utils"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "media"), utils.NewNopLogger())
	require.NoError(t, s.EnsureLayout())
	return s
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAddressDeterministic(t *testing.T) {
	data := []byte("the same bytes")
	a := Address(data)
	assert.Equal(t, a, Address(data))
	assert.Len(t, a, DigestLength)
	assert.NotEqual(t, a, Address([]byte("other bytes")))
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	assert.Equal(t, "d41d8cd98f", Address(nil))
}

func TestEnsureLayoutIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureLayout())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureLayout())
		}()
	}
	wg.Wait()

	for _, c := range Categories() {
		info, err := os.Stat(filepath.Join(s.Root(), string(c)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestStoreIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("%PDF-1.4 fake document")

	first, err := s.Store(CategoryDocuments, data, ".pdf")
	require.NoError(t, err)
	second, err := s.Store(CategoryDocuments, data, ".pdf")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join("documents", Address(data)+".pdf"), first.LocalPath)
	assert.FileExists(t, s.Path(first))
	assert.Equal(t, int64(len(data)), first.SizeBytes)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "documents"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files or duplicates left behind")
}

func TestStoreConcurrentIdenticalContent(t *testing.T) {
	s := newTestStore(t)
	data := bytes.Repeat([]byte("v"), 64*1024)

	var wg sync.WaitGroup
	paths := make([]string, 10)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := s.Store(CategoryVideos, data, "mp4")
			assert.NoError(t, err)
			paths[i] = d.LocalPath
		}(i)
	}
	wg.Wait()

	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
	got, err := os.ReadFile(filepath.Join(s.Root(), paths[0]))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStoreImageDimensions(t *testing.T) {
	s := newTestStore(t)
	data := encodePNG(t, 7, 3)

	d, err := s.Store(CategoryImages, data, ".png")
	require.NoError(t, err)
	require.NotNil(t, d.Dimensions)
	assert.Equal(t, Dimensions{Width: 7, Height: 3}, *d.Dimensions)

	// Undecodable image bytes are stored without dimensions.
	d, err = s.Store(CategoryImages, []byte("not an image"), ".jpg")
	require.NoError(t, err)
	assert.Nil(t, d.Dimensions)
	assert.FileExists(t, s.Path(d))
}

func TestStoreRejectsUnknownCategory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Store(Category("misc"), []byte("x"), ".bin")
	assert.ErrorIs(t, err, ErrIO)
}

func TestStoreUnwritableRoot(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewStore(blocker, utils.NewNopLogger())
	assert.ErrorIs(t, s.EnsureLayout(), ErrIO)
	_, err := s.Store(CategoryImages, []byte("x"), ".jpg")
	assert.ErrorIs(t, err, ErrIO)
}
