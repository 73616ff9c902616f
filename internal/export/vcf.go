package export

import "strings"

const vcardFieldLimit = 50

// EncodeVCF renders one vCard 3.0 block per lead. The TEL line is omitted
// entirely when the lead has no phone, and blank lines never make it into
// the output.
func EncodeVCF(bundle *Bundle) []byte {
	blocks := make([]string, 0, len(bundle.Leads))
	for _, lead := range bundle.Leads {
		name := truncate(lead.Name, vcardFieldLimit)
		company := truncate(lead.Company, vcardFieldLimit)

		lines := []string{
			"BEGIN:VCARD",
			"VERSION:3.0",
			"N:" + company + ";;;;",
			"FN:" + name + " - " + lead.City + ", " + lead.District,
			"ORG:" + company,
			telLine(lead.Phone),
			"ADR;TYPE=WORK:;;" + lead.District + ";" + lead.City + ";;;;",
			"END:VCARD",
		}

		kept := lines[:0]
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			kept = append(kept, line)
		}
		blocks = append(blocks, strings.Join(kept, "\n"))
	}
	return []byte(strings.Join(blocks, "\n"))
}

func telLine(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return ""
	}
	return "TEL;TYPE=CELL:" + phone
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
