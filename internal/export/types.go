package export

import (
	"fmt"

	"leadatlas/api/internal/store"
)

type Format string

const (
	FormatCSV Format = "csv"
	FormatVCF Format = "vcf"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatVCF:
		return FormatVCF, nil
	}
	return "", fmt.Errorf("unsupported format: %q", raw)
}

func (f Format) Ext() string {
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatVCF:
		return "text/vcard"
	default:
		return "text/csv"
	}
}

// MembershipPolicy selects how group membership is resolved when listing
// a group's leads.
type MembershipPolicy int

const (
	// PrimaryOnly honors only the primary_group_id foreign key.
	PrimaryOnly MembershipPolicy = iota
	// PrimaryAndLinked additionally honors the membership mapping table.
	PrimaryAndLinked
)

// ChildFailurePolicy decides what a failed email/phone batch lookup does
// to the aggregation as a whole.
type ChildFailurePolicy int

const (
	// ChildSkip logs the failed batch and continues with degraded output.
	ChildSkip ChildFailurePolicy = iota
	// ChildAbort fails the whole aggregation on the first batch error.
	ChildAbort
)

// Bundle is the aggregated input both encoders consume.
type Bundle struct {
	Leads        []store.Lead
	EmailsByLead map[string][]string
	PhonesByLead map[string][]string
}

// Emails returns the collected emails for a lead, empty when none were found.
func (b *Bundle) Emails(leadID string) []string {
	return b.EmailsByLead[leadID]
}

// Phones returns the collected phones for a lead, empty when none were found.
func (b *Bundle) Phones(leadID string) []string {
	return b.PhonesByLead[leadID]
}
