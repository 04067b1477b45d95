package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseTotalPages(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div data-testid="srp-pagination"><span class="XUy1p">2 / 15</span></div>`)
	require.Equal(t, 15, ParseTotalPages(doc, 50, nil))
}

func TestParseTotalPagesBoundedByConfiguredMax(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div data-testid="srp-pagination"><span>1 / 120</span></div>`)
	require.Equal(t, 5, ParseTotalPages(doc, 5, nil))
}

func TestParseTotalPagesFallsBackWhenCounterMissing(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div><span>no counter here</span></div>`)
	require.Equal(t, 7, ParseTotalPages(doc, 7, nil))
}

func TestParseTotalPagesIgnoresNonRatioSpans(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div data-testid="srp-pagination">
		<span>Seite</span><span> 3 / 42 </span></div>`)
	require.Equal(t, 42, ParseTotalPages(doc, 100, nil))
}
