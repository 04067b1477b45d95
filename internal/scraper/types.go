package scraper

import (
	"errors"
	"time"
)

// NotFound is the sentinel recorded for a field whose anchor element is
// absent from the rendered document. Absence is data, not an error.
const NotFound = "Not found"

// Source identifies the marketplace the records originate from.
const Source = "mobile.de"

// Request describes one crawl run. It is immutable for the duration of the
// run; the engine copies it before starting.
type Request struct {
	// StartURL is the search-results page the run begins at.
	StartURL string `json:"start_url"`
	// MaxPages is a hard ceiling on visited pages, never exceeded even if
	// the site reports a larger total. Must be >= 1.
	MaxPages int `json:"max_pages"`
	// Delay is awaited between consecutive page transitions.
	Delay time.Duration `json:"-"`
	// Deep visits every newly discovered listing and runs the detail-page
	// extraction passes; without it only summary cards are recorded.
	Deep bool `json:"deep"`
}

// Validate enforces the request invariants before a run is admitted.
func (r Request) Validate() error {
	if r.StartURL == "" {
		return errors.New("start url is required")
	}
	if r.MaxPages < 1 {
		return errors.New("max pages must be >= 1")
	}
	if r.Delay < 0 {
		return errors.New("delay must be >= 0")
	}
	return nil
}

// Record is the structured form of one vehicle listing. Every field except
// URL is optional; extraction records absence as NotFound or leaves the
// field empty, it never fails the record.
type Record struct {
	URL               string `json:"url"`
	ListingID         string `json:"listing_id,omitempty"`
	Title             string `json:"title,omitempty"`
	AdditionalInfo    string `json:"additional_info,omitempty"`
	Price             string `json:"price,omitempty"`
	Mileage           string `json:"mileage,omitempty"`
	Power             string `json:"power,omitempty"`
	FuelType          string `json:"fuel_type,omitempty"`
	Transmission      string `json:"transmission,omitempty"`
	FirstRegistration string `json:"first_registration,omitempty"`
	Dealer            string `json:"dealer,omitempty"`
	DealerRating      string `json:"dealer_rating,omitempty"`
	SellerType        string `json:"seller_type,omitempty"`
	Location          string `json:"location,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Rating            string `json:"rating,omitempty"`
	Negotiable        string `json:"negotiable,omitempty"`
	MonthlyRate       string `json:"monthly_rate,omitempty"`
	MonthlyRateLink   string `json:"monthly_rate_link,omitempty"`
	FinancingLink     string `json:"financing_link,omitempty"`
	VehicleCondition  string `json:"vehicle_condition,omitempty"`
	Category          string `json:"category,omitempty"`
	ModelRange        string `json:"model_range,omitempty"`
	TrimLine          string `json:"trim_line,omitempty"`
	VehicleNumber     string `json:"vehicle_number,omitempty"`
	Origin            string `json:"origin,omitempty"`
	CubicCapacity     string `json:"cubic_capacity,omitempty"`
	DriveType         string `json:"drive_type,omitempty"`
	EnergyConsumption string `json:"energy_consumption,omitempty"`
	CO2Emissions      string `json:"co2_emissions,omitempty"`
	CO2Class          string `json:"co2_class,omitempty"`
	FuelConsumption   string `json:"fuel_consumption,omitempty"`

	// Attributes holds extracted fields without a dedicated column, keyed
	// by their normalized label (e.g. "previous_owners", "door_count").
	Attributes map[string]string `json:"attributes,omitempty"`
	// Features maps an equipment section name to its feature list. A flat
	// list is represented as the single "General" section.
	Features map[string][]string `json:"features,omitempty"`
	// ImageURLs is the deduplicated set of listing image URLs.
	ImageURLs []string `json:"image_urls,omitempty"`
}

// fieldSetters maps normalized extraction keys onto Record fields. Keys not
// present here land in Attributes.
var fieldSetters = map[string]func(*Record, string){
	"title":              func(r *Record, v string) { r.Title = v },
	"additional_info":    func(r *Record, v string) { r.AdditionalInfo = v },
	"price":              func(r *Record, v string) { r.Price = v },
	"mileage":            func(r *Record, v string) { r.Mileage = v },
	"power":              func(r *Record, v string) { r.Power = v },
	"fuel_type":          func(r *Record, v string) { r.FuelType = v },
	"transmission":       func(r *Record, v string) { r.Transmission = v },
	"first_registration": func(r *Record, v string) { r.FirstRegistration = v },
	"dealer":             func(r *Record, v string) { r.Dealer = v },
	"dealer_rating":      func(r *Record, v string) { r.DealerRating = v },
	"seller_type":        func(r *Record, v string) { r.SellerType = v },
	"location":           func(r *Record, v string) { r.Location = v },
	"phone":              func(r *Record, v string) { r.Phone = v },
	"rating":             func(r *Record, v string) { r.Rating = v },
	"negotiable":         func(r *Record, v string) { r.Negotiable = v },
	"monthly_rate":       func(r *Record, v string) { r.MonthlyRate = v },
	"monthly_rate_link":  func(r *Record, v string) { r.MonthlyRateLink = v },
	"financing_link":     func(r *Record, v string) { r.FinancingLink = v },
	"vehicle_condition":  func(r *Record, v string) { r.VehicleCondition = v },
	"category":           func(r *Record, v string) { r.Category = v },
	"model_range":        func(r *Record, v string) { r.ModelRange = v },
	"trim_line":          func(r *Record, v string) { r.TrimLine = v },
	"vehicle_number":     func(r *Record, v string) { r.VehicleNumber = v },
	"origin":             func(r *Record, v string) { r.Origin = v },
	"cubic_capacity":     func(r *Record, v string) { r.CubicCapacity = v },
	"drive_type":         func(r *Record, v string) { r.DriveType = v },
	"energy_consumption": func(r *Record, v string) { r.EnergyConsumption = v },
	"co2_emissions":      func(r *Record, v string) { r.CO2Emissions = v },
	"co2_class":          func(r *Record, v string) { r.CO2Class = v },
	"fuel_consumption":   func(r *Record, v string) { r.FuelConsumption = v },
}

// Apply merges one extraction pass into the record. Later passes win on key
// collision, so the most structured source should be applied last.
func (r *Record) Apply(fields map[string]string) {
	for key, value := range fields {
		if value == "" {
			continue
		}
		if set, ok := fieldSetters[key]; ok {
			set(r, value)
			continue
		}
		if r.Attributes == nil {
			r.Attributes = make(map[string]string)
		}
		r.Attributes[key] = value
	}
}

// Result aggregates a full batch run; it carries the same data as the
// corresponding progress event sequence.
type Result struct {
	Status       string    `json:"status"`
	PagesScraped int       `json:"pages_scraped"`
	TotalCars    int       `json:"total_cars"`
	Cars         []Record  `json:"cars"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Run statuses reported in Result.Status and terminal events.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)
