package export

import (
	"testing"
	"time"
)

func TestSanitizeGroupName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Kadıköy Restoranları", "Kadıköy_Restoranları"},
		{"Leads (2025)!", "Leads_2025"},
		{"a   b\tc", "a_b_c"},
		{"çĞüŞöİ", "çĞüŞöİ"},
		{"@#$%", "group"},
		{"", "group"},
		{"dash-stays", "dash-stays"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := SanitizeGroupName(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeGroupName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	got := Filename("Kadıköy Restoranları", at, FormatCSV)
	if got != "Kadıköy_Restoranları_14-03-2025.csv" {
		t.Errorf("Filename() = %q", got)
	}
	got = Filename("My Leads", at, FormatVCF)
	if got != "My_Leads_14-03-2025.vcf" {
		t.Errorf("Filename() = %q", got)
	}
}

func TestObjectPathDeterministic(t *testing.T) {
	first := ObjectPath("grp_1", "My Leads", FormatCSV)
	second := ObjectPath("grp_1", "My Leads", FormatCSV)
	if first != second {
		t.Errorf("object path must be deterministic: %q vs %q", first, second)
	}
	if first != "groups/grp_1/My_Leads.csv" {
		t.Errorf("ObjectPath() = %q", first)
	}
}
