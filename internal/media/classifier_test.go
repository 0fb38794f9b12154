// internal/media/classifier_test.go
package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name        string
		target      string
		contentType string
		wantCat     Category
		wantExt     string
		wantOK      bool
	}{
		{"extension wins over content type", "https://x.test/p/photo.jpg", "text/html", CategoryImages, ".jpg", true},
		{"upper case extension", "https://x.test/CLIP.MP4", "", CategoryVideos, ".mp4", true},
		{"query ignored", "https://x.test/song.mp3?token=abc.html", "", CategoryAudio, ".mp3", true},
		{"document", "/files/report.PDF", "", CategoryDocuments, ".pdf", true},
		{"archive goes to other", "bundle.zip", "", CategoryOther, ".zip", true},
		{"mime lookup", "https://x.test/thumb.php?id=1", "image/png", CategoryImages, ".png", true},
		{"mime with parameters", "https://x.test/api/file", "application/pdf; charset=binary", CategoryDocuments, ".pdf", true},
		{"coarse image prefix", "https://x.test/raw", "image/x-unknown-format", CategoryImages, ".jpg", true},
		{"coarse video prefix", "https://x.test/raw", "video/x-weird", CategoryVideos, ".mp4", true},
		{"coarse audio prefix", "https://x.test/raw", "audio/x-weird", CategoryAudio, ".mp3", true},
		{"html page", "https://x.test/page", "text/html", "", "", false},
		{"nothing known", "https://x.test/page", "", "", "", false},
		{"unknown extension no type", "https://x.test/page.php", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, ext, ok := c.Classify(tt.target, tt.contentType)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCat, cat)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestClassifyInjectedTable(t *testing.T) {
	table := NewExtensionTable(map[Category][]string{
		CategoryDocuments: {"epub", ".MOBI"},
	})
	c := NewClassifier(table)

	cat, ext, ok := c.Classify("book.epub", "")
	assert.True(t, ok)
	assert.Equal(t, CategoryDocuments, cat)
	assert.Equal(t, ".epub", ext)

	_, _, ok = c.Classify("photo.jpg", "")
	assert.False(t, ok, "injected table replaces defaults")

	assert.Equal(t, []string{".epub", ".mobi"}, table.Extensions(CategoryDocuments))
}

func TestPathExtension(t *testing.T) {
	assert.Equal(t, ".jpg", PathExtension("https://x.test/a/b.JPG?x=1#frag"))
	assert.Equal(t, ".png", PathExtension("local/file.png"))
	assert.Equal(t, "", PathExtension("https://x.test/dir/"))
	assert.Equal(t, ".gz", PathExtension("archive.tar.gz"))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Images ")
	assert.NoError(t, err)
	assert.Equal(t, CategoryImages, c)

	_, err = ParseCategory("pictures")
	assert.Error(t, err)
}
