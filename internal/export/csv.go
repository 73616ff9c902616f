package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"name", "company", "address", "city", "district", "plus_code", "phone", "website",
	"rating", "review_count", "business_type", "google_maps_url", "working_hours",
	"created_at", "emails", "phones",
}

// EncodeCSV renders the bundle as a header row plus one row per lead. Fields
// containing commas, quotes or newlines are quoted with embedded quotes
// doubled; numeric fields stay unquoted.
func EncodeCSV(bundle *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, lead := range bundle.Leads {
		rating := ""
		if lead.Rating != nil {
			rating = strconv.FormatFloat(*lead.Rating, 'f', -1, 64)
		}
		reviewCount := ""
		if lead.ReviewCount != nil {
			reviewCount = strconv.Itoa(*lead.ReviewCount)
		}
		workingHours := ""
		if len(lead.WorkingHours) > 0 {
			workingHours = string(lead.WorkingHours)
		}

		row := []string{
			lead.Name,
			lead.Company,
			lead.Address,
			lead.City,
			lead.District,
			lead.PlusCode,
			lead.Phone,
			lead.Website,
			rating,
			reviewCount,
			lead.BusinessType,
			lead.GoogleMapsURL,
			workingHours,
			lead.CreatedAt.Format(time.RFC3339),
			strings.Join(bundle.Emails(lead.ID), ","),
			strings.Join(bundle.Phones(lead.ID), ","),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row for lead %s: %w", lead.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
