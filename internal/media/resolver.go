// internal/media/resolver.go
package media

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const dataScheme = "data:"

// Resolver turns raw references into fetchable targets.
type Resolver struct {
	detectPlatforms bool
}

// NewResolver creates a resolver that recognises platform embeds in iframes.
func NewResolver() *Resolver {
	return &Resolver{detectPlatforms: true}
}

// Resolve joins ref against pageURL per RFC 3986, or decodes it when it is an
// inline data: URL.
func (r *Resolver) Resolve(ref Reference, pageURL string) (Target, error) {
	raw := strings.TrimSpace(ref.RawValue)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	if hasDataScheme(raw) {
		payload, err := DecodeDataURL(raw)
		if err != nil {
			return Target{}, err
		}
		return Target{Inline: payload, Original: ref}, nil
	}

	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return Target{}, fmt.Errorf("%w: bad page url %q: %v", ErrInvalidReference, pageURL, err)
	}
	rel, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	abs := base.ResolveReference(rel)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidReference, abs.Scheme, raw)
	}
	if abs.Host == "" {
		return Target{}, fmt.Errorf("%w: %s does not resolve to a host", ErrInvalidReference, raw)
	}
	abs.Fragment = ""
	abs.RawFragment = ""

	target := Target{AbsoluteURL: abs.String(), Original: ref}
	if r.detectPlatforms && ref.Kind == TagEmbeddedFrame {
		if platform, id, ok := DetectPlatform(abs); ok {
			target.Platform = platform
			target.PlatformID = id
		}
	}
	return target, nil
}

func hasDataScheme(s string) bool {
	return len(s) >= len(dataScheme) && strings.EqualFold(s[:len(dataScheme)], dataScheme)
}

// DecodeDataURL decodes an RFC 2397 data URL into its bytes and MIME type.
func DecodeDataURL(raw string) (*InlinePayload, error) {
	if !hasDataScheme(raw) {
		return nil, fmt.Errorf("%w: not a data url", ErrInvalidReference)
	}
	rest := raw[len(dataScheme):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: data url without comma separator", ErrInvalidReference)
	}
	header, body := rest[:comma], rest[comma+1:]

	parts := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(parts[0]))
	if mimeType == "" {
		mimeType = "text/plain"
	} else if !strings.Contains(mimeType, "/") {
		return nil, fmt.Errorf("%w: malformed data url media type %q", ErrInvalidReference, parts[0])
	}

	isBase64 := false
	for _, token := range parts[1:] {
		token = strings.TrimSpace(token)
		switch {
		case strings.EqualFold(token, "base64"):
			isBase64 = true
		case strings.Contains(token, "="):
			// parameters such as charset=utf-8
		default:
			return nil, fmt.Errorf("%w: unknown data url encoding %q", ErrInvalidReference, token)
		}
	}

	unescaped, err := url.PathUnescape(body)
	if err != nil {
		return nil, fmt.Errorf("%w: bad percent-encoding: %v", ErrInvalidReference, err)
	}

	if !isBase64 {
		return &InlinePayload{Data: []byte(unescaped), MIMEType: mimeType}, nil
	}

	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, unescaped)
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 payload: %v", ErrInvalidReference, err)
		}
	}
	return &InlinePayload{Data: data, MIMEType: mimeType}, nil
}
