// internal/media/scanner.go
package media

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

// attrValue matches a double-quoted, single-quoted or bare attribute value.
const attrValue = `\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`

var (
	imgSrcPattern    = regexp.MustCompile(`(?is)<img\b[^>]*?\ssrc` + attrValue)
	videoSrcPattern  = regexp.MustCompile(`(?is)<video\b[^>]*?\ssrc` + attrValue)
	audioSrcPattern  = regexp.MustCompile(`(?is)<audio\b[^>]*?\ssrc` + attrValue)
	iframeSrcPattern = regexp.MustCompile(`(?is)<iframe\b[^>]*?\ssrc` + attrValue)
	anchorPattern    = regexp.MustCompile(`(?is)<a\b[^>]*?\shref` + attrValue)
	sourceSrcPattern = regexp.MustCompile(`(?is)<source\b[^>]*?\ssrc` + attrValue)

	videoBlockPattern = regexp.MustCompile(`(?is)<video\b[^>]*>(.*?)</video\s*>`)
	audioBlockPattern = regexp.MustCompile(`(?is)<audio\b[^>]*>(.*?)</audio\s*>`)

	// DefaultLinkExtensions is the allow-list for media files linked from anchors.
	DefaultLinkExtensions = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|svg|bmp|mp4|webm|mov|avi|mkv|mp3|wav|ogg|m4a|flac|pdf|docx?|xlsx?|pptx?|txt|zip)$`)
)

// Scanner finds media references in raw markup with pattern matching. It
// never builds a DOM, so truncated or malformed markup still yields whatever
// references can be recognised.
type Scanner struct {
	linkExtensions *regexp.Regexp
}

// NewScanner creates a scanner using DefaultLinkExtensions for anchors.
func NewScanner() *Scanner {
	return &Scanner{linkExtensions: DefaultLinkExtensions}
}

// NewScannerWithLinkPattern creates a scanner with a custom anchor allow-list.
func NewScannerWithLinkPattern(pattern *regexp.Regexp) *Scanner {
	if pattern == nil {
		pattern = DefaultLinkExtensions
	}
	return &Scanner{linkExtensions: pattern}
}

// LinkPattern builds an anchor allow-list from every extension in table.
// An empty table yields nil.
func LinkPattern(table ExtensionTable) *regexp.Regexp {
	var exts []string
	for _, c := range Categories() {
		for _, ext := range table.Extensions(c) {
			exts = append(exts, regexp.QuoteMeta(ext))
		}
	}
	if len(exts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(exts, "|") + `)$`)
}

type located struct {
	offset int
	value  string
}

// Scan returns references grouped by kind (image, video, audio, embedded
// frame, anchor link), each group in document order.
func (s *Scanner) Scan(markup string) []Reference {
	if markup == "" {
		return nil
	}

	var refs []Reference
	appendKind := func(kind TagKind, found []located) {
		sort.SliceStable(found, func(i, j int) bool { return found[i].offset < found[j].offset })
		for _, f := range found {
			refs = append(refs, Reference{RawValue: f.value, Kind: kind})
		}
	}

	appendKind(TagImage, findAttr(imgSrcPattern, markup, 0))
	appendKind(TagVideo, append(findAttr(videoSrcPattern, markup, 0), findNested(videoBlockPattern, markup)...))
	appendKind(TagAudio, append(findAttr(audioSrcPattern, markup, 0), findNested(audioBlockPattern, markup)...))
	appendKind(TagEmbeddedFrame, findAttr(iframeSrcPattern, markup, 0))

	var links []located
	for _, l := range findAttr(anchorPattern, markup, 0) {
		if s.isMediaLink(l.value) {
			links = append(links, l)
		}
	}
	appendKind(TagAnchorLink, links)

	return refs
}

func (s *Scanner) isMediaLink(href string) bool {
	p := href
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return s.linkExtensions.MatchString(p)
}

// findAttr returns every attribute value captured by pattern, with offsets
// relative to the whole document.
func findAttr(pattern *regexp.Regexp, text string, base int) []located {
	var out []located
	for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
		for g := 1; g <= 3; g++ {
			start, end := m[2*g], m[2*g+1]
			if start < 0 {
				continue
			}
			raw := text[start:end]
			// <img src=a.jpg/> closes the tag; the slash is not part of the value.
			if g == 3 && strings.HasSuffix(raw, "/") && end < len(text) && text[end] == '>' {
				raw = raw[:len(raw)-1]
			}
			if v := cleanValue(raw); v != "" {
				out = append(out, located{offset: base + start, value: v})
			}
			break
		}
	}
	return out
}

// findNested returns <source src> values inside every block matched by blockPattern.
func findNested(blockPattern *regexp.Regexp, markup string) []located {
	var out []located
	for _, m := range blockPattern.FindAllStringSubmatchIndex(markup, -1) {
		if m[2] < 0 {
			continue
		}
		out = append(out, findAttr(sourceSrcPattern, markup[m[2]:m[3]], m[2])...)
	}
	return out
}

func cleanValue(v string) string {
	v = strings.TrimSpace(html.UnescapeString(v))
	if v == "" || strings.HasPrefix(v, "#") {
		return ""
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "about:") {
		return ""
	}
	return v
}
