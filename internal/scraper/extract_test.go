package scraper

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCards(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `
		<article>
			<a href="/fahrzeuge/details.html?id=111"></a>
			<h2 class="dNpqi">BMW 320d Touring</h2>
			<div data-testid="vip-price-label">24.990 €</div>
			<span>Diesel</span><span>98.000 km</span>
		</article>
		<article><h2 class="dNpqi">No link, skipped</h2></article>
		<article>
			<a href="https://suchen.mobile.de/fahrzeuge/details.html?id=222"></a>
			<div class="HBWcC">9.500 €</div>
		</article>`)
	base, _ := url.Parse("https://suchen.mobile.de/fahrzeuge/search.html")

	cards := SummaryCards(doc, base)
	require.Len(t, cards, 2)

	assert.Equal(t, "https://suchen.mobile.de/fahrzeuge/details.html?id=111", cards[0].URL)
	assert.Equal(t, "111", cards[0].ListingID)
	assert.Equal(t, "BMW 320d Touring", cards[0].Title)
	assert.Equal(t, "24.990 €", cards[0].Price)
	assert.Equal(t, "98.000 km", cards[0].Mileage)

	assert.Equal(t, "222", cards[1].ListingID)
	assert.Equal(t, NotFound, cards[1].Title)
	assert.Equal(t, "9.500 €", cards[1].Price)
	assert.Equal(t, NotFound, cards[1].Mileage)
}

func TestDetailFieldsDefaultsToSentinel(t *testing.T) {
	t.Parallel()

	fields := DetailFields(mustDoc(t, `<html><body></body></html>`))
	for _, key := range []string{
		"title", "additional_info", "price", "dealer", "dealer_rating",
		"rating", "negotiable", "monthly_rate", "monthly_rate_link",
		"financing_link", "seller_type", "location", "phone",
	} {
		assert.Equal(t, NotFound, fields[key], "field %s", key)
	}
}

func TestDetailFieldsExtractsSellerAndFinancing(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `
		<h2 class="dNpqi">Audi A4 Avant</h2>
		<div data-testid="vip-price-label">31.900 €</div>
		<div data-testid="vip-financing-monthly-rate"><a href="/finance?id=9">ab 299 €/Monat</a></div>
		<div data-testid="seller-title-address">
			<div class="QTTRi">Händler</div>
			<div class="olCKS">DE-80331 München</div>
			<span aria-live="polite">+49 89 1234</span>
		</div>`)

	fields := DetailFields(doc)
	assert.Equal(t, "Audi A4 Avant", fields["title"])
	assert.Equal(t, "31.900 €", fields["price"])
	assert.Equal(t, "ab 299 €/Monat", fields["monthly_rate"])
	assert.Equal(t, "/finance?id=9", fields["monthly_rate_link"])
	assert.Equal(t, "Händler", fields["seller_type"])
	assert.Equal(t, "DE-80331 München", fields["location"])
	assert.Equal(t, "+49 89 1234", fields["phone"])
}

func TestKeyFeatures(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `
		<div data-testid="vip-key-features-list-item-mileage"><div class="geJSa">98.000 km</div></div>
		<div data-testid="vip-key-features-list-item-fuel"><span>Diesel</span></div>
		<div data-testid="vip-key-features-list-item-firstRegistration"><div class="geJSa">06/2019</div></div>
		<div data-testid="vip-key-features-list-item-airConditioning"><div class="geJSa">Klimaautomatik</div></div>
		<div data-testid="vip-key-features-list-item-empty"></div>`)

	fields := KeyFeatures(doc)
	assert.Equal(t, "98.000 km", fields["mileage"])
	assert.Equal(t, "Diesel", fields["fuel_type"])
	assert.Equal(t, "06/2019", fields["first_registration"])
	// Unknown codes fall back to snake case.
	assert.Equal(t, "Klimaautomatik", fields["air_conditioning"])
	assert.NotContains(t, fields, "empty")
}

func TestTechnicalDataBilingualLabels(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `
		<dl>
			<dt>Fahrzeugzustand</dt><dd>Unfallfrei</dd>
			<dt>Vehicle condition</dt><dd>Accident-free</dd>
			<dt>Getriebe</dt><dd>Automatik</dd>
			<dt>Anzahl Sitzplätze</dt><dd>5</dd>
		</dl>
		<ul><li class="FtSYW">ABS</li><li class="FtSYW">Navigationssystem</li></ul>`)

	fields, features := TechnicalData(doc)
	// German and English labels collapse to the same key; last one wins.
	assert.Equal(t, "Accident-free", fields["vehicle_condition"])
	assert.Equal(t, "Automatik", fields["transmission"])
	// Unmapped labels pass through normalized.
	assert.Equal(t, "5", fields["anzahlsitzpltze"])
	assert.Equal(t, []string{"ABS", "Navigationssystem"}, features)
}

func TestImageURLs(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div class="mRJ5K">
		<img src="https://img.mobile.de/a.jpg" srcset="https://img.mobile.de/a.jpg 1x, https://img.mobile.de/b.jpg 2x">
		<img src="https://cdn.other.com/c.jpg">
		<img src="https://img.mobile.de/a.jpg">
	</div>`)

	urls := ImageURLs(doc, "mobile.de")
	assert.Equal(t, []string{
		"https://img.mobile.de/a.jpg",
		"https://img.mobile.de/b.jpg",
	}, urls)
}

func TestDetailRecordMergePrecedence(t *testing.T) {
	t.Parallel()

	// Mileage appears in the key-features strip and the technical table;
	// the technical value must win. The free-text title overrides the stub.
	doc := mustDoc(t, `
		<h2 class="dNpqi">VW Golf VIII</h2>
		<div data-testid="vip-key-features-list-item-mileage"><div class="geJSa">50.000 km</div></div>
		<dl><dt>Mileage</dt><dd>50.123 km</dd></dl>
		<ul><li class="FtSYW">LED-Scheinwerfer</li></ul>
		<div class="mRJ5K"><img src="https://img.mobile.de/golf.jpg"></div>`)

	stub := Record{URL: "https://suchen.mobile.de/fahrzeuge/details.html?id=5", Title: "stub title"}
	rec := DetailRecord(doc, stub, "mobile.de")

	assert.Equal(t, "VW Golf VIII", rec.Title)
	assert.Equal(t, "50.123 km", rec.Mileage)
	assert.Equal(t, []string{"LED-Scheinwerfer"}, rec.Features["General"])
	assert.Equal(t, []string{"https://img.mobile.de/golf.jpg"}, rec.ImageURLs)
}

func TestRecordApplyRoutesUnknownKeysToAttributes(t *testing.T) {
	t.Parallel()

	var rec Record
	rec.Apply(map[string]string{
		"title":           "Opel Corsa",
		"previous_owners": "2",
		"":                "ignored",
		"door_count":      "",
	})
	assert.Equal(t, "Opel Corsa", rec.Title)
	assert.Equal(t, "2", rec.Attributes["previous_owners"])
	assert.NotContains(t, rec.Attributes, "door_count")
}

func TestAccessDenied(t *testing.T) {
	t.Parallel()

	assert.True(t, AccessDenied("Access Denied"))
	assert.True(t, AccessDenied("mobile.de - Zugriff verweigert"))
	assert.False(t, AccessDenied("BMW 320d Touring | mobile.de"))
}

func TestCamelToSnake(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"numberOfPreviousOwners": "number_of_previous_owners",
		"doorCount":              "door_count",
		"mileage":                "mileage",
		"HTTPCode":               "http_code",
	}
	for in, want := range cases {
		assert.Equal(t, want, camelToSnake(in), in)
	}
}
