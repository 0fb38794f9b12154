// internal/media/resolver_test.go
package media

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRelative(t *testing.T) {
	r := NewResolver()
	page := "https://example.com/blog/post/index.html"

	tests := []struct {
		raw  string
		want string
	}{
		{"a.jpg", "https://example.com/blog/post/a.jpg"},
		{"../img/b.png", "https://example.com/blog/img/b.png"},
		{"/static/c.gif", "https://example.com/static/c.gif"},
		{"//cdn.example.net/d.webp", "https://cdn.example.net/d.webp"},
		{"http://other.org/e.mp4#t=10", "http://other.org/e.mp4"},
		{"f.jpg?size=large", "https://example.com/blog/post/f.jpg?size=large"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			target, err := r.Resolve(Reference{RawValue: tt.raw, Kind: TagImage}, page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, target.AbsoluteURL)
			assert.Nil(t, target.Inline)
			assert.NoError(t, target.Validate())
			assert.Equal(t, tt.raw, target.Original.RawValue)
		})
	}
}

func TestResolveRejectsInvalid(t *testing.T) {
	r := NewResolver()
	tests := []struct {
		name string
		raw  string
		page string
	}{
		{"ftp scheme", "ftp://example.com/a.jpg", "https://example.com/"},
		{"mailto", "mailto:someone@example.com", "https://example.com/"},
		{"bad escape", "%zz.jpg", "https://example.com/"},
		{"relative page", "a.jpg", "/no/host"},
		{"empty", "   ", "https://example.com/"},
		{"data without comma", "data:image/png;base64", "https://example.com/"},
		{"data unknown encoding", "data:image/png;gzip,AAAA", "https://example.com/"},
		{"data bad base64", "data:image/png;base64,@@@@", "https://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(Reference{RawValue: tt.raw, Kind: TagImage}, tt.page)
			assert.ErrorIs(t, err, ErrInvalidReference)
		})
	}
}

func TestResolveDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x01}
	raw := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	target, err := NewResolver().Resolve(Reference{RawValue: raw, Kind: TagImage}, "https://example.com/")
	require.NoError(t, err)
	require.True(t, target.IsInline())
	assert.Empty(t, target.AbsoluteURL)
	assert.Equal(t, payload, target.Inline.Data)
	assert.Equal(t, "image/png", target.Inline.MIMEType)
	assert.NoError(t, target.Validate())
}

func TestDecodeDataURLVariants(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantData string
		wantMIME string
	}{
		{"percent encoded", "data:text/plain,hello%20world", "hello world", "text/plain"},
		{"default mime", "data:,plain", "plain", "text/plain"},
		{"charset parameter", "data:text/html;charset=utf-8,%3Cb%3E", "<b>", "text/html"},
		{"unpadded base64", "data:text/plain;base64,aGk", "hi", "text/plain"},
		{"base64 with whitespace", "data:text/plain;base64,aGVs\nbG8=", "hello", "text/plain"},
		{"upper case scheme", "DATA:image/GIF;BASE64,R0lG", "GIF", "image/gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeDataURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(p.Data))
			assert.Equal(t, tt.wantMIME, p.MIMEType)
		})
	}
}

func TestResolveDetectsPlatformEmbeds(t *testing.T) {
	r := NewResolver()
	page := "https://example.com/"

	target, err := r.Resolve(Reference{RawValue: "https://www.youtube.com/embed/dQw4w9WgXcQ?rel=0", Kind: TagEmbeddedFrame}, page)
	require.NoError(t, err)
	assert.True(t, target.IsPlatformEmbed())
	assert.Equal(t, PlatformYouTube, target.Platform)
	assert.Equal(t, "dQw4w9WgXcQ", target.PlatformID)

	// Platform detection applies to frames only.
	target, err = r.Resolve(Reference{RawValue: "https://www.youtube.com/embed/dQw4w9WgXcQ", Kind: TagAnchorLink}, page)
	require.NoError(t, err)
	assert.False(t, target.IsPlatformEmbed())

	target, err = r.Resolve(Reference{RawValue: "/widgets/map.html", Kind: TagEmbeddedFrame}, page)
	require.NoError(t, err)
	assert.False(t, target.IsPlatformEmbed())
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		raw      string
		platform string
		id       string
		ok       bool
	}{
		{"https://youtu.be/dQw4w9WgXcQ", PlatformYouTube, "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", PlatformYouTube, "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", PlatformYouTube, "dQw4w9WgXcQ", true},
		{"https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ", PlatformYouTube, "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/short", PlatformYouTube, "", true},
		{"https://player.vimeo.com/video/76979871", PlatformVimeo, "76979871", true},
		{"https://vimeo.com/76979871", PlatformVimeo, "76979871", true},
		{"https://w.soundcloud.com/player/?url=https%3A//api.soundcloud.com/tracks/293", PlatformSoundCloud, "tracks/293", true},
		{"https://soundcloud.com/artist/track-name", PlatformSoundCloud, "artist/track-name", true},
		{"https://soundcloud.com/artist/sets/album", PlatformSoundCloud, "artist/sets/album", true},
		{"https://soundcloud.com/discover/sets", "", "", false},
		{"https://example.com/embed/abc", "", "", false},
		{"https://www.youtube.com/channel/xyz", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			platform, id, ok := DetectPlatform(u)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.platform, platform)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestPlatformCategory(t *testing.T) {
	assert.Equal(t, CategoryVideos, PlatformCategory(PlatformYouTube))
	assert.Equal(t, CategoryVideos, PlatformCategory(PlatformVimeo))
	assert.Equal(t, CategoryAudio, PlatformCategory(PlatformSoundCloud))
}

func TestTargetValidate(t *testing.T) {
	assert.ErrorIs(t, Target{}.Validate(), ErrInvalidReference)
	both := Target{AbsoluteURL: "https://x/a.jpg", Inline: &InlinePayload{}}
	assert.ErrorIs(t, both.Validate(), ErrInvalidReference)
}
