package utils

import (
	"net/url"
	"strings"
)

// SiteName extracts the hostname of a page URL without the leading
// "www.", matching the site_name convention used by all Stash clients.
func SiteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
