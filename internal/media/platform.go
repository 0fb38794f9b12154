// internal/media/platform.go
package media

import (
	"net/url"
	"regexp"
	"strings"
)

// Known hosting platforms whose embeds are handed to a dedicated downloader.
const (
	PlatformYouTube    = "youtube"
	PlatformVimeo      = "vimeo"
	PlatformSoundCloud = "soundcloud"
)

var (
	youTubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	vimeoIDPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// soundCloudReserved are first path segments that name site pages, not artists.
var soundCloudReserved = map[string]bool{
	"discover": true, "search": true, "stream": true, "upload": true, "you": true, "charts": true,
}

// PlatformCategory returns the category platform embeds are filed under.
func PlatformCategory(platform string) Category {
	if platform == PlatformSoundCloud {
		return CategoryAudio
	}
	return CategoryVideos
}

// DetectPlatform matches an absolute URL against known embed patterns and
// extracts the platform's media identifier when one is present.
func DetectPlatform(u *url.URL) (platform, id string, ok bool) {
	if u == nil {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	switch {
	case host == "youtu.be":
		if len(segments) > 0 {
			return PlatformYouTube, youTubeID(segments[0]), true
		}
	case host == "youtube.com" || host == "m.youtube.com" || host == "youtube-nocookie.com":
		if len(segments) >= 2 && (segments[0] == "embed" || segments[0] == "shorts" || segments[0] == "v") {
			return PlatformYouTube, youTubeID(segments[1]), true
		}
		if len(segments) == 1 && segments[0] == "watch" {
			return PlatformYouTube, youTubeID(u.Query().Get("v")), true
		}
	case host == "player.vimeo.com":
		if len(segments) >= 2 && segments[0] == "video" {
			return PlatformVimeo, vimeoID(segments[1]), true
		}
	case host == "vimeo.com":
		if len(segments) >= 1 && vimeoIDPattern.MatchString(segments[0]) {
			return PlatformVimeo, segments[0], true
		}
	case host == "w.soundcloud.com":
		if len(segments) >= 1 && segments[0] == "player" {
			return PlatformSoundCloud, soundCloudPlayerID(u.Query().Get("url")), true
		}
	case host == "soundcloud.com" || host == "m.soundcloud.com":
		if len(segments) >= 2 && !soundCloudReserved[segments[0]] {
			if segments[1] == "sets" && len(segments) >= 3 {
				return PlatformSoundCloud, segments[0] + "/sets/" + segments[2], true
			}
			return PlatformSoundCloud, segments[0] + "/" + segments[1], true
		}
	}
	return "", "", false
}

func youTubeID(candidate string) string {
	if youTubeIDPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

func vimeoID(candidate string) string {
	if vimeoIDPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

// soundCloudPlayerID pulls the track reference out of a widget's url parameter,
// e.g. https://api.soundcloud.com/tracks/123 yields "tracks/123".
func soundCloudPlayerID(raw string) string {
	if raw == "" {
		return ""
	}
	inner, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.Trim(inner.Path, "/")
}
