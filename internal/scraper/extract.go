package scraper

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the marketplace's rendered markup. The obfuscated class
// names rotate with frontend deploys; data-testid hooks are stable.
const (
	selSummaryCard      = "article"
	selTitle            = "h2.dNpqi"
	selPriceLabel       = `[data-testid="vip-price-label"]`
	selPriceFallback    = "div.HBWcC"
	selAdditionalInfo   = "div.GOIOV.fqe3L.EevEz"
	selDealerRating     = "span.qHfAA"
	selDealer           = "a.FWtU1.rqVIk.lZcLh"
	selRating           = "div._u77E"
	selNegotiable       = "div.HaBLt.ZD2EM"
	selMonthlyRate      = `[data-testid="vip-financing-monthly-rate"]`
	selMonthlyRateAlt   = "a.cCGm3"
	selSellerBlock      = `[data-testid="seller-title-address"]`
	selSellerType       = "div.QTTRi"
	selSellerLocation   = "div.olCKS"
	selSellerPhone      = `span[aria-live="polite"]`
	selKeyFeatureItems  = `[data-testid^="vip-key-features-list-item"]`
	selKeyFeatureValue  = "div.geJSa"
	selFeatureListItems = "li.FtSYW"
	selImageContainer   = "div.mRJ5K"
)

const keyFeaturePrefix = "vip-key-features-list-item-"

// keyFeatureNames maps the marketplace's key-feature codes onto record
// field keys. Codes missing here fall back to camelToSnake.
var keyFeatureNames = map[string]string{
	"mileage":                "mileage",
	"power":                  "power",
	"fuel":                   "fuel_type",
	"transmission":           "transmission",
	"firstRegistration":      "first_registration",
	"numberOfPreviousOwners": "previous_owners",
	"bodyType":               "body_type",
	"seats":                  "number_of_seats",
	"doorCount":              "door_count",
	"cubicCapacity":          "cubic_capacity",
	"driveType":              "drive_type",
}

// technicalLabels maps normalized dt labels (English and German) onto record
// field keys. Unmapped labels pass through under their normalized form.
var technicalLabels = map[string]string{
	"vehiclecondition": "vehicle_condition",
	"fahrzeugzustand":  "vehicle_condition",
	"category":         "category",
	"fahrzeugtyp":      "category",
	"modelrange":       "model_range",
	"modellreihe":      "model_range",
	"trimline":         "trim_line",
	"ausstattungslinie": "trim_line",
	"vehiclenumber":    "vehicle_number",
	"fahrzeugnummer":   "vehicle_number",
	"origin":           "origin",
	"herkunft":         "origin",
	"mileage":          "mileage",
	"kilometer":        "mileage",
	"cubiccapacity":    "cubic_capacity",
	"hubraum":          "cubic_capacity",
	"power":            "power",
	"leistung":         "power",
	"drivetype":        "drive_type",
	"antriebsart":      "drive_type",
	"fuel":             "fuel_type",
	"kraftstoff":       "fuel_type",
	"transmission":     "transmission",
	"getriebe":         "transmission",
	"firstregistration": "first_registration",
	"erstzulassung":    "first_registration",
	"energyconsumption": "energy_consumption",
	"energieverbrauch": "energy_consumption",
	"co2emissions":     "co2_emissions",
	"co2emissionen":    "co2_emissions",
	"co2class":         "co2_class",
	"co2klasse":        "co2_class",
	"fuelconsumption":  "fuel_consumption",
	"kraftstoffverbrauch": "fuel_consumption",
}

var (
	nonAlnumRE   = regexp.MustCompile(`[^a-z0-9]`)
	firstCapRE   = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	allCapRE     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	deniedTitles = []string{"access denied", "zugriff verweigert"}
)

// AccessDenied reports whether a page title indicates the target blocked
// the session.
func AccessDenied(title string) bool {
	t := strings.ToLower(title)
	for _, marker := range deniedTitles {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

// normalizeLabel lowercases a dt label and strips everything outside
// [a-z0-9] so English and German variants collapse to one key.
func normalizeLabel(label string) string {
	return nonAlnumRE.ReplaceAllString(strings.ToLower(label), "")
}

func camelToSnake(s string) string {
	s = firstCapRE.ReplaceAllString(s, "${1}_${2}")
	s = allCapRE.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.First().Text())
}

func textOr(s *goquery.Selection, fallback string) string {
	if t := text(s); t != "" {
		return t
	}
	return fallback
}

// SummaryCards extracts the listing stubs from a results page. Cards
// without a link are skipped; relative links are resolved against base.
func SummaryCards(doc *goquery.Document, base *url.URL) []Record {
	var records []Record
	doc.Find(selSummaryCard).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href]").First().Attr("href")
		if !ok || href == "" {
			return
		}
		link := href
		if base != nil {
			if u, err := url.Parse(href); err == nil {
				link = base.ResolveReference(u).String()
			}
		}

		rec := Record{
			URL:       link,
			ListingID: ListingIDFromURL(link),
			Title:     textOr(card.Find(selTitle), NotFound),
			Price:     priceText(card),
			Mileage:   NotFound,
		}
		card.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
			if t := text(span); strings.Contains(t, "km") {
				rec.Mileage = t
				return false
			}
			return true
		})
		records = append(records, rec)
	})
	return records
}

func priceText(s *goquery.Selection) string {
	if t := text(s.Find(selPriceLabel)); t != "" {
		return t
	}
	return textOr(s.Find(selPriceFallback), NotFound)
}

// DetailFields is the free-text pass over a listing detail page. Every
// field is present in the result; missing elements yield the sentinel.
func DetailFields(doc *goquery.Document) map[string]string {
	fields := map[string]string{
		"title":           textOr(doc.Find(selTitle), NotFound),
		"additional_info": textOr(doc.Find(selAdditionalInfo), NotFound),
		"price":           priceText(doc.Selection),
		"dealer_rating":   textOr(doc.Find(selDealerRating), NotFound),
		"dealer":          textOr(doc.Find(selDealer), NotFound),
		"rating":          textOr(doc.Find(selRating), NotFound),
		"negotiable":      textOr(doc.Find(selNegotiable), NotFound),
	}

	fields["monthly_rate"] = NotFound
	fields["monthly_rate_link"] = NotFound
	fields["financing_link"] = NotFound
	rateAnchor := doc.Find(selMonthlyRate).Find("a[href]").First()
	if rateAnchor.Length() == 0 {
		rateAnchor = doc.Find(selMonthlyRateAlt).First()
	}
	if rateAnchor.Length() > 0 {
		fields["monthly_rate"] = textOr(rateAnchor, NotFound)
		if href, ok := rateAnchor.Attr("href"); ok && href != "" {
			fields["monthly_rate_link"] = href
			fields["financing_link"] = href
		}
	}

	fields["seller_type"] = NotFound
	fields["location"] = NotFound
	fields["phone"] = NotFound
	seller := doc.Find(selSellerBlock).First()
	if seller.Length() > 0 {
		fields["seller_type"] = textOr(seller.Find(selSellerType), NotFound)
		fields["location"] = textOr(seller.Find(selSellerLocation), NotFound)
		fields["phone"] = textOr(seller.Find(selSellerPhone), NotFound)
	}

	return fields
}

// KeyFeatures extracts the key-features strip. Item codes are read from the
// data-testid suffix and mapped through keyFeatureNames.
func KeyFeatures(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find(selKeyFeatureItems).Each(func(_ int, item *goquery.Selection) {
		testID, _ := item.Attr("data-testid")
		code := strings.TrimPrefix(testID, keyFeaturePrefix)
		if code == "" || code == testID {
			return
		}
		key, ok := keyFeatureNames[code]
		if !ok {
			key = camelToSnake(code)
		}
		value := text(item.Find(selKeyFeatureValue))
		if value == "" {
			value = text(item.Find("span"))
		}
		if value != "" {
			fields[key] = value
		}
	})
	return fields
}

// TechnicalData walks the dt/dd pairs of a detail page, normalizing labels
// through the bilingual table, and collects the flat equipment list.
func TechnicalData(doc *goquery.Document) (map[string]string, []string) {
	fields := make(map[string]string)
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() == 0 {
			return
		}
		norm := normalizeLabel(text(dt))
		if norm == "" {
			return
		}
		key, ok := technicalLabels[norm]
		if !ok {
			key = norm
		}
		if value := text(dd); value != "" {
			fields[key] = value
		}
	})

	var features []string
	doc.Find(selFeatureListItems).Each(func(_ int, li *goquery.Selection) {
		if t := text(li); t != "" {
			features = append(features, t)
		}
	})
	return fields, features
}

// ImageURLs harvests listing image URLs from src and srcset attributes,
// keeping only those served from the given domain, deduplicated and sorted.
func ImageURLs(doc *goquery.Document, domain string) []string {
	seen := make(map[string]struct{})
	scope := doc.Find(selImageContainer)
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	scope.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			addImageURL(seen, src, domain)
		}
		if srcset, ok := img.Attr("srcset"); ok {
			for _, candidate := range strings.Split(srcset, ",") {
				parts := strings.Fields(strings.TrimSpace(candidate))
				if len(parts) > 0 {
					addImageURL(seen, parts[0], domain)
				}
			}
		}
	})
	if len(seen) == 0 {
		return nil
	}
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

func addImageURL(seen map[string]struct{}, raw, domain string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, domain) {
		return
	}
	seen[raw] = struct{}{}
}

// DetailRecord runs every detail-page pass and merges the results into a
// copy of the summary stub. Merge order is free text, then key features,
// then technical data, so the most structured source wins.
func DetailRecord(doc *goquery.Document, summary Record, domain string) Record {
	rec := summary
	rec.Apply(DetailFields(doc))
	rec.Apply(KeyFeatures(doc))

	technical, features := TechnicalData(doc)
	rec.Apply(technical)
	if len(features) > 0 {
		rec.Features = map[string][]string{"General": features}
	}
	rec.ImageURLs = ImageURLs(doc, domain)
	return rec
}
