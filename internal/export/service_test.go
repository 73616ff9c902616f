package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"leadatlas/api/internal/store"
)

type fakePublisher struct {
	path        string
	content     []byte
	contentType string
	calls       int
	err         error
}

func (f *fakePublisher) Publish(_ context.Context, path string, content []byte, contentType string) (string, error) {
	f.calls++
	f.path = path
	f.content = content
	f.contentType = contentType
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example.com/" + path + "?sig=abc", nil
}

func testGroup() store.LeadGroup {
	return store.LeadGroup{ID: "grp_1", UserID: "user_1", Name: "My Leads"}
}

func TestGeneratePublishesCSV(t *testing.T) {
	fs := &fakeAggStore{leads: makeLeads(2)}
	pub := &fakePublisher{}
	svc := NewService(NewAggregator(fs), pub)

	url, err := svc.Generate(context.Background(), testGroup(), FormatCSV)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if url == "" {
		t.Fatal("expected a signed url")
	}
	if pub.path != "groups/grp_1/My_Leads.csv" {
		t.Errorf("path = %q", pub.path)
	}
	if pub.contentType != "text/csv" {
		t.Errorf("contentType = %q", pub.contentType)
	}
	if !strings.HasPrefix(string(pub.content), "name,company,") {
		t.Errorf("content should start with the CSV header, got %q", string(pub.content[:40]))
	}
}

func TestGeneratePublishesVCF(t *testing.T) {
	fs := &fakeAggStore{leads: []store.Lead{{ID: "a", Name: "Ahmet", Phone: "5551234567"}}}
	pub := &fakePublisher{}
	svc := NewService(NewAggregator(fs), pub)

	if _, err := svc.Generate(context.Background(), testGroup(), FormatVCF); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if pub.path != "groups/grp_1/My_Leads.vcf" {
		t.Errorf("path = %q", pub.path)
	}
	if pub.contentType != "text/vcard" {
		t.Errorf("contentType = %q", pub.contentType)
	}
	if !strings.Contains(string(pub.content), "BEGIN:VCARD") {
		t.Errorf("content should be a vCard, got %q", string(pub.content))
	}
}

func TestGeneratePublishFailurePropagates(t *testing.T) {
	fs := &fakeAggStore{leads: makeLeads(1)}
	pub := &fakePublisher{err: errors.New("bucket gone")}
	svc := NewService(NewAggregator(fs), pub)

	if _, err := svc.Generate(context.Background(), testGroup(), FormatCSV); err == nil {
		t.Fatal("publish failure must propagate")
	}
}

func TestGenerateAggregationFailurePropagates(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewService(NewAggregator(failingLeadStore{}), pub)

	if _, err := svc.Generate(context.Background(), testGroup(), FormatCSV); err == nil {
		t.Fatal("aggregation failure must propagate")
	}
	if pub.calls != 0 {
		t.Error("nothing should be published when aggregation fails")
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat("csv"); err != nil {
		t.Errorf("csv should parse: %v", err)
	}
	if _, err := ParseFormat("vcf"); err != nil {
		t.Errorf("vcf should parse: %v", err)
	}
	for _, raw := range []string{"", "pdf", "CSV", "xlsx"} {
		if _, err := ParseFormat(raw); err == nil {
			t.Errorf("ParseFormat(%q) should fail", raw)
		}
	}
}
