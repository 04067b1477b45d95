package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("HTTPS://Suchen.Mobile.DE:443/fahrzeuge/details.html?z=1&id=42#gallery")
	require.NoError(t, err)
	assert.Equal(t, "https://suchen.mobile.de/fahrzeuge/details.html?id=42&z=1", got)
}

func TestNormalizeURLStripsDefaultHTTPPort(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("http://example.com:80/a")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a", got)
}

func TestListingIDFromURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "398195041", ListingIDFromURL("https://suchen.mobile.de/fahrzeuge/details.html?id=398195041&ref=srp"))
	assert.Empty(t, ListingIDFromURL("https://suchen.mobile.de/fahrzeuge/details.html"))
	assert.Empty(t, ListingIDFromURL("://bad"))
}

func TestDedupKeyPrefersListingID(t *testing.T) {
	t.Parallel()

	a := DedupKey("https://suchen.mobile.de/fahrzeuge/details.html?id=7&ref=a")
	b := DedupKey("https://suchen.mobile.de/fahrzeuge/details.html?ref=b&id=7")
	assert.Equal(t, a, b)

	// Without an id the normalized URL decides.
	c := DedupKey("https://Example.com/x?b=2&a=1")
	d := DedupKey("https://example.com/x?a=1&b=2")
	assert.Equal(t, c, d)
	assert.NotEqual(t, a, c)
}
