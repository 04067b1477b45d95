package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a listing URL for duplicate detection.
// It lowercases the scheme and host, strips default ports and fragments,
// and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// ListingIDFromURL extracts the marketplace listing identifier from the
// url's "id" query parameter. Empty when absent or unparseable.
func ListingIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("id")
}

// DedupKey derives the per-run duplicate-detection key for a listing URL:
// the listing id when the URL carries one, otherwise the normalized URL.
// Two listings collide iff their keys are equal.
func DedupKey(rawURL string) string {
	if id := ListingIDFromURL(rawURL); id != "" {
		return "id:" + id
	}
	if norm, err := NormalizeURL(rawURL); err == nil {
		return "url:" + norm
	}
	return "url:" + rawURL
}
