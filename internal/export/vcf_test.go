package export

import (
	"strings"
	"testing"

	"leadatlas/api/internal/store"
)

func TestEncodeVCFBasicBlock(t *testing.T) {
	bundle := &Bundle{
		Leads: []store.Lead{{
			ID:       "a",
			Name:     "Ahmet Yılmaz",
			Company:  "A, Inc.",
			Phone:    "5551234567",
			City:     "İstanbul",
			District: "Kadıköy",
		}},
		EmailsByLead: map[string][]string{},
		PhonesByLead: map[string][]string{},
	}

	out := string(EncodeVCF(bundle))
	expected := []string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"N:A, Inc.;;;;",
		"FN:Ahmet Yılmaz - İstanbul, Kadıköy",
		"ORG:A, Inc.",
		"TEL;TYPE=CELL:5551234567",
		"ADR;TYPE=WORK:;;Kadıköy;İstanbul;;;;",
		"END:VCARD",
	}
	if out != strings.Join(expected, "\n") {
		t.Errorf("vCard block mismatch:\n%s", out)
	}
}

func TestEncodeVCFTruncation(t *testing.T) {
	longName := strings.Repeat("x", 80)
	bundle := &Bundle{
		Leads:        []store.Lead{{ID: "a", Name: longName, Company: strings.Repeat("y", 80)}},
		EmailsByLead: map[string][]string{},
		PhonesByLead: map[string][]string{},
	}

	out := string(EncodeVCF(bundle))
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "FN:") {
			if strings.Contains(line, strings.Repeat("x", 51)) {
				t.Errorf("FN name not truncated to 50 chars: %q", line)
			}
			if !strings.Contains(line, strings.Repeat("x", 50)) {
				t.Errorf("FN should contain the 50-char prefix: %q", line)
			}
		}
		if strings.HasPrefix(line, "ORG:") && len([]rune(strings.TrimPrefix(line, "ORG:"))) > 50 {
			t.Errorf("ORG not truncated: %q", line)
		}
	}
}

func TestEncodeVCFOmitsTELWhenPhoneEmpty(t *testing.T) {
	bundle := &Bundle{
		Leads:        []store.Lead{{ID: "b", Name: "Boş Kayıt"}},
		EmailsByLead: map[string][]string{},
		PhonesByLead: map[string][]string{},
	}

	out := string(EncodeVCF(bundle))
	if strings.Contains(out, "TEL") {
		t.Errorf("TEL line should be absent when phone is empty:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			t.Errorf("blank line leaked into output:\n%s", out)
		}
	}
}

func TestEncodeVCFTwoBlocks(t *testing.T) {
	bundle := &Bundle{
		Leads: []store.Lead{
			{ID: "a", Name: "Ahmet Yılmaz", Phone: "5551234567"},
			{ID: "b", Name: "Boş Kayıt"},
		},
		EmailsByLead: map[string][]string{},
		PhonesByLead: map[string][]string{},
	}

	out := string(EncodeVCF(bundle))
	if strings.Count(out, "BEGIN:VCARD") != 2 {
		t.Errorf("expected 2 vCard blocks:\n%s", out)
	}
	if strings.Count(out, "TEL;TYPE=CELL:") != 1 {
		t.Errorf("only lead A should carry a TEL line:\n%s", out)
	}
}
