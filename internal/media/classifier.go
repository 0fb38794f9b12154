// internal/media/classifier.go
package media

import (
	"mime"
	"net/url"
	"path"
	"sort"
	"strings"
)

// ExtensionTable maps a lower-case extension with leading dot to a category.
type ExtensionTable map[string]Category

// DefaultExtensionTable returns the stock extension groups.
func DefaultExtensionTable() ExtensionTable {
	groups := map[Category][]string{
		CategoryImages:    {".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".tif", ".tiff", ".ico", ".avif"},
		CategoryVideos:    {".mp4", ".webm", ".mov", ".avi", ".mkv", ".m4v", ".ogv", ".flv", ".wmv"},
		CategoryAudio:     {".mp3", ".wav", ".ogg", ".oga", ".m4a", ".flac", ".aac", ".opus"},
		CategoryDocuments: {".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv", ".rtf", ".odt"},
		CategoryOther:     {".zip", ".gz", ".tar", ".rar", ".7z"},
	}
	return NewExtensionTable(groups)
}

// NewExtensionTable builds a table from per-category extension lists. Extensions
// without a leading dot are normalised; later categories win on duplicates in
// layout order.
func NewExtensionTable(groups map[Category][]string) ExtensionTable {
	table := make(ExtensionTable)
	for _, c := range Categories() {
		for _, ext := range groups[c] {
			ext = normalizeExt(ext)
			if ext != "" {
				table[ext] = c
			}
		}
	}
	return table
}

// Extensions lists the table's extensions for c, sorted.
func (t ExtensionTable) Extensions(c Category) []string {
	var out []string
	for ext, cat := range t {
		if cat == c {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// fallbackMIMEExtensions covers types that the host mime database often lacks
// or answers with an unusual first extension.
var fallbackMIMEExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/jpg":          ".jpg",
	"image/pjpeg":        ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"image/svg+xml":      ".svg",
	"image/bmp":          ".bmp",
	"image/tiff":         ".tiff",
	"image/avif":         ".avif",
	"image/x-icon":       ".ico",
	"video/mp4":          ".mp4",
	"video/webm":         ".webm",
	"video/quicktime":    ".mov",
	"video/x-msvideo":    ".avi",
	"video/x-matroska":   ".mkv",
	"video/ogg":          ".ogv",
	"audio/mpeg":         ".mp3",
	"audio/mp3":          ".mp3",
	"audio/wav":          ".wav",
	"audio/x-wav":        ".wav",
	"audio/ogg":          ".ogg",
	"audio/mp4":          ".m4a",
	"audio/x-m4a":        ".m4a",
	"audio/flac":         ".flac",
	"audio/aac":          ".aac",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.ms-excel":                                                  ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/zip": ".zip",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
}

// coarse MIME prefixes and the extension used when nothing finer is known.
var prefixDefaults = []struct {
	prefix   string
	category Category
	ext      string
}{
	{"image/", CategoryImages, ".jpg"},
	{"video/", CategoryVideos, ".mp4"},
	{"audio/", CategoryAudio, ".mp3"},
}

// Classifier maps a URL or filename plus an optional content type to a
// category and file extension.
type Classifier struct {
	table ExtensionTable
}

// NewClassifier creates a classifier over table; a nil table uses the defaults.
func NewClassifier(table ExtensionTable) *Classifier {
	if table == nil {
		table = DefaultExtensionTable()
	}
	return &Classifier{table: table}
}

// Classify resolves the category. The path extension wins; the content type
// is consulted only when the extension is missing or unknown.
func (c *Classifier) Classify(urlOrFilename, contentType string) (Category, string, bool) {
	if ext := PathExtension(urlOrFilename); ext != "" {
		if cat, ok := c.table[ext]; ok {
			return cat, ext, true
		}
	}

	mediaType := baseMediaType(contentType)
	if mediaType == "" {
		return "", "", false
	}

	for _, ext := range mimeExtensions(mediaType) {
		if cat, ok := c.table[ext]; ok {
			return cat, ext, true
		}
	}

	for _, d := range prefixDefaults {
		if strings.HasPrefix(mediaType, d.prefix) {
			return d.category, d.ext, true
		}
	}
	return "", "", false
}

// PathExtension returns the lower-case extension of the path component of a
// URL or filename, ignoring query and fragment.
func PathExtension(urlOrFilename string) string {
	p := urlOrFilename
	if u, err := url.Parse(urlOrFilename); err == nil && (u.Scheme != "" || u.Host != "") {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return normalizeExt(path.Ext(p))
}

func mimeExtensions(mediaType string) []string {
	var exts []string
	if ext, ok := fallbackMIMEExtensions[mediaType]; ok {
		exts = append(exts, ext)
	}
	if fromDB, err := mime.ExtensionsByType(mediaType); err == nil {
		exts = append(exts, fromDB...)
	}
	return exts
}

func baseMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
