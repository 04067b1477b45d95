package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const selPaginationCounter = `[data-testid="srp-pagination"] span`

// "3 / 42" style current/total counter.
var pageRatioRE = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// ParseTotalPages reads the site's page counter from a results page and
// bounds it by configuredMax. When the counter is missing or unparseable it
// logs the fallback and returns configuredMax; the returned value is never
// larger than configuredMax.
func ParseTotalPages(doc *goquery.Document, configuredMax int, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	total := 0
	doc.Find(selPaginationCounter).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		m := pageRatioRE.FindStringSubmatch(strings.TrimSpace(span.Text()))
		if m == nil {
			return true
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			total = n
			return false
		}
		return true
	})
	if total == 0 {
		logger.Warn("pagination counter not found, assuming configured maximum",
			zap.Int("max_pages", configuredMax))
		return configuredMax
	}
	if total > configuredMax {
		return configuredMax
	}
	return total
}
