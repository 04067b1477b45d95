// Package export writes crawled listing records as CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carmarket/crawler/internal/metrics"
	"github.com/carmarket/crawler/internal/scraper"
)

// Columns is the CSV header, in the order rows are written.
var Columns = []string{
	"url",
	"listing_id",
	"title",
	"additional_info",
	"price",
	"mileage",
	"power",
	"fuel_type",
	"transmission",
	"first_registration",
	"dealer",
	"dealer_rating",
	"seller_type",
	"location",
	"phone",
	"rating",
	"negotiable",
	"monthly_rate",
	"monthly_rate_link",
	"financing_link",
	"vehicle_condition",
	"category",
	"model_range",
	"trim_line",
	"vehicle_number",
	"origin",
	"cubic_capacity",
	"drive_type",
	"energy_consumption",
	"co2_emissions",
	"co2_class",
	"fuel_consumption",
	"attributes",
	"features",
	"image_urls",
}

// WriteCSV writes a header and one row per record.
func WriteCSV(w io.Writer, records []scraper.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		row, err := rowFor(rec)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	metrics.ObserveExportRows(len(records))
	return nil
}

// WriteCSVFile writes the records to path, creating or truncating it.
func WriteCSVFile(path string, records []scraper.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func rowFor(rec scraper.Record) ([]string, error) {
	attrs, err := marshalMap(rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	features, err := marshalMap(rec.Features)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	return []string{
		rec.URL,
		rec.ListingID,
		rec.Title,
		rec.AdditionalInfo,
		rec.Price,
		rec.Mileage,
		rec.Power,
		rec.FuelType,
		rec.Transmission,
		rec.FirstRegistration,
		rec.Dealer,
		rec.DealerRating,
		rec.SellerType,
		rec.Location,
		rec.Phone,
		rec.Rating,
		rec.Negotiable,
		rec.MonthlyRate,
		rec.MonthlyRateLink,
		rec.FinancingLink,
		rec.VehicleCondition,
		rec.Category,
		rec.ModelRange,
		rec.TrimLine,
		rec.VehicleNumber,
		rec.Origin,
		rec.CubicCapacity,
		rec.DriveType,
		rec.EnergyConsumption,
		rec.CO2Emissions,
		rec.CO2Class,
		rec.FuelConsumption,
		attrs,
		features,
		strings.Join(rec.ImageURLs, "|"),
	}, nil
}

// marshalMap renders a non-empty map as JSON and an empty one as "".
func marshalMap(m any) (string, error) {
	switch v := m.(type) {
	case map[string]string:
		if len(v) == 0 {
			return "", nil
		}
	case map[string][]string:
		if len(v) == 0 {
			return "", nil
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
