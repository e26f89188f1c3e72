// Package deeplink parses the stash:// URIs that the share extensions
// use to hand captured pages into a running client.
package deeplink

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// Scheme is the custom URI scheme registered by the Stash apps.
	Scheme = "stash"

	actionSave = "save"
)

// SaveRequest is the payload carried by a stash://save link.
type SaveRequest struct {
	URL       string
	Title     string
	Highlight string
}

// Parse decodes a share-handoff link, e.g.
// stash://save?url=https%3A%2F%2Fexample.com&title=Example&highlight=quote.
func Parse(raw string) (*SaveRequest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("deeplink: parse %q: %w", raw, err)
	}
	if u.Scheme != Scheme {
		return nil, fmt.Errorf("deeplink: unexpected scheme %q", u.Scheme)
	}

	// Both stash://save?... and stash:///save?... arrive in the wild,
	// depending on how the platform encodes the host part.
	action := u.Host
	if action == "" {
		action = strings.TrimPrefix(u.Path, "/")
	}
	if action != actionSave {
		return nil, fmt.Errorf("deeplink: unsupported action %q", action)
	}

	params := u.Query()
	pageURL := params.Get("url")
	if pageURL == "" {
		return nil, fmt.Errorf("deeplink: missing url parameter")
	}

	return &SaveRequest{
		URL:       pageURL,
		Title:     params.Get("title"),
		Highlight: params.Get("highlight"),
	}, nil
}
