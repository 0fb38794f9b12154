// internal/media/store.go
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/valpere/MediaScrapexter/internal/utils"
)

// Storer persists classified bytes and describes the result.
type Storer interface {
	EnsureLayout() error
	Store(category Category, data []byte, ext string) (Descriptor, error)
}

// Store writes media under {root}/{category}/{digest}{ext}.
type Store struct {
	root   string
	logger utils.Logger
}

// NewStore creates a store rooted at root. Nothing is touched on disk until
// EnsureLayout or Store is called.
func NewStore(root string, logger utils.Logger) *Store {
	if logger == nil {
		logger = utils.NewComponentLogger("media-store")
	}
	return &Store{root: root, logger: logger}
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// EnsureLayout creates the root and one directory per category. It is safe
// to call repeatedly and from several processes at once.
func (s *Store) EnsureLayout() error {
	if s.root == "" {
		return fmt.Errorf("%w: empty media root", ErrIO)
	}
	for _, c := range Categories() {
		if err := os.MkdirAll(filepath.Join(s.root, string(c)), 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", ErrIO, c, err)
		}
	}
	return nil
}

// Path returns the on-disk location of d, which is stored relative to the root.
func (s *Store) Path(d Descriptor) string {
	return filepath.Join(s.root, d.LocalPath)
}

// Store writes data and returns its descriptor. Identical content maps to the
// same path; a present file of the same size is reused without rewriting.
func (s *Store) Store(category Category, data []byte, ext string) (Descriptor, error) {
	if !category.IsValid() {
		return Descriptor{}, fmt.Errorf("%w: unknown category %q", ErrIO, category)
	}
	ext = normalizeExt(ext)

	dir := filepath.Join(s.root, string(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Descriptor{}, fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
	}

	filename := Address(data) + ext
	fullPath := filepath.Join(dir, filename)

	if info, err := os.Stat(fullPath); err == nil && info.Mode().IsRegular() && info.Size() == int64(len(data)) {
		s.logger.Debugf("media already stored at %s", fullPath)
	} else if err := writeAtomic(dir, fullPath, data); err != nil {
		return Descriptor{}, err
	}

	desc := Descriptor{
		Category:  category,
		LocalPath: filepath.Join(string(category), filename),
		Filename:  filename,
		SizeBytes: int64(len(data)),
	}
	if category == CategoryImages {
		desc.Dimensions = s.imageDimensions(data, fullPath)
	}
	return desc, nil
}

// writeAtomic writes to a temp file in dir and renames it into place so that
// readers never observe a partial file.
func writeAtomic(dir, fullPath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("%w: temp file in %s: %v", ErrIO, dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write %s: %v", ErrIO, fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %v", ErrIO, fullPath, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod %s: %v", ErrIO, fullPath, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename into %s: %v", ErrIO, fullPath, err)
	}
	return nil
}

func (s *Store) imageDimensions(data []byte, path string) *Dimensions {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.logger.WithField("path", path).Debugf("no image dimensions: %v", err)
		return nil
	}
	s.logger.WithField("format", format).Debugf("decoded %dx%d", cfg.Width, cfg.Height)
	return &Dimensions{Width: cfg.Width, Height: cfg.Height}
}
