package eir

import (
	"testing"

	"eirbridge/internal/models"
)

// TestAssembleMetadataDefaults verifies the seed defaults: format version,
// created-at, source, and patient name all get their fallbacks.
func TestAssembleMetadataDefaults(t *testing.T) {
	doc := Assemble(nil, MetadataSeed{})

	if doc.Metadata.FormatVersion != models.FormatVersion {
		t.Errorf("Expected format version %q, got %q", models.FormatVersion, doc.Metadata.FormatVersion)
	}
	if doc.Metadata.CreatedAt == "" {
		t.Error("Expected created_at to be filled")
	}
	if doc.Metadata.Source != "Unknown Provider" {
		t.Errorf("Expected 'Unknown Provider', got %q", doc.Metadata.Source)
	}
	if doc.Metadata.Patient.Name != models.Unknown {
		t.Errorf("Expected patient name Unknown, got %q", doc.Metadata.Patient.Name)
	}
	if doc.Metadata.Patient.BirthDate != nil || doc.Metadata.Patient.PersonalNumber != nil {
		t.Error("Expected unextracted patient fields to stay nil")
	}
	if doc.Metadata.ExportInfo.TotalEntries != 0 {
		t.Errorf("Expected 0 total entries, got %d", doc.Metadata.ExportInfo.TotalEntries)
	}
	if len(doc.Entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(doc.Entries))
	}
}

// TestAssembleDateRange verifies the range spans the min and max of the
// strictly ISO dates, skipping Unknown and malformed values.
func TestAssembleDateRange(t *testing.T) {
	records := []models.CanonicalRecord{
		{Date: "2024-06-15"},
		{Date: models.Unknown},
		{Date: "2023-01-02"},
		{Date: "17 mar 2025"},
		{Date: "2025-03-17"},
	}
	doc := Assemble(records, MetadataSeed{})

	dr := doc.Metadata.ExportInfo.DateRange
	if dr.Start != "2023-01-02" {
		t.Errorf("Expected start 2023-01-02, got %q", dr.Start)
	}
	if dr.End != "2025-03-17" {
		t.Errorf("Expected end 2025-03-17, got %q", dr.End)
	}
}

// TestAssembleDateRangeAllUnknown verifies both ends fall back to Unknown
// when no entry carries a parseable date.
func TestAssembleDateRangeAllUnknown(t *testing.T) {
	records := []models.CanonicalRecord{
		{Date: models.Unknown},
		{Date: "not a date"},
	}
	doc := Assemble(records, MetadataSeed{})

	dr := doc.Metadata.ExportInfo.DateRange
	if dr.Start != models.Unknown || dr.End != models.Unknown {
		t.Errorf("Expected Unknown/Unknown, got %q/%q", dr.Start, dr.End)
	}
}

// TestAssembleHealthcareProviders verifies first-seen-order dedup excluding
// Unknown provider names.
func TestAssembleHealthcareProviders(t *testing.T) {
	records := []models.CanonicalRecord{
		{Provider: models.Provider{Name: "Vårdcentral A"}},
		{Provider: models.Provider{Name: models.Unknown}},
		{Provider: models.Provider{Name: "Vårdcentral B"}},
		{Provider: models.Provider{Name: "Vårdcentral A"}},
	}
	doc := Assemble(records, MetadataSeed{})

	got := doc.Metadata.ExportInfo.HealthcareProviders
	want := []string{"Vårdcentral A", "Vårdcentral B"}
	if len(got) != len(want) {
		t.Fatalf("Expected providers %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected providers %v, got %v", want, got)
		}
	}
}

// TestAssembleRecordDefaults verifies every empty record field gets its
// fallback and missing ids are re-derived from position.
func TestAssembleRecordDefaults(t *testing.T) {
	doc := Assemble([]models.CanonicalRecord{{}, {ID: "entry_999"}}, MetadataSeed{})

	first := doc.Entries[0]
	if first.ID != "entry_001" {
		t.Errorf("Expected re-derived id entry_001, got %q", first.ID)
	}
	if first.Date != models.Unknown || first.Status != models.Unknown {
		t.Error("Expected Unknown fallbacks on empty scalar fields")
	}
	if first.Content.Summary != "Journal Entry" {
		t.Errorf("Expected default summary, got %q", first.Content.Summary)
	}
	if first.Content.Notes == nil || first.Attachments == nil || first.Tags == nil {
		t.Error("Expected nil collections replaced with empty slices")
	}

	// An explicit id is kept even when it disagrees with the position.
	if doc.Entries[1].ID != "entry_999" {
		t.Errorf("Expected explicit id preserved, got %q", doc.Entries[1].ID)
	}
}

// TestAssembleLocationFallsBackToName verifies an empty provider location
// inherits the provider name rather than Unknown.
func TestAssembleLocationFallsBackToName(t *testing.T) {
	doc := Assemble([]models.CanonicalRecord{
		{Provider: models.Provider{Name: "Vårdcentral A"}},
	}, MetadataSeed{})

	if got := doc.Entries[0].Provider.Location; got != "Vårdcentral A" {
		t.Errorf("Expected location to inherit name, got %q", got)
	}
}

// TestAssembleSeedPreserved verifies caller-supplied seed values pass
// through untouched.
func TestAssembleSeedPreserved(t *testing.T) {
	birth := "1980-01-01"
	doc := Assemble(nil, MetadataSeed{
		FormatVersion: "1.0",
		CreatedAt:     "2025-03-17T10:52:00Z",
		Source:        "1177.se",
		Patient:       models.Patient{Name: "Anna Svensson", BirthDate: &birth},
	})

	if doc.Metadata.CreatedAt != "2025-03-17T10:52:00Z" {
		t.Errorf("Unexpected created_at: %q", doc.Metadata.CreatedAt)
	}
	if doc.Metadata.Source != "1177.se" {
		t.Errorf("Unexpected source: %q", doc.Metadata.Source)
	}
	if doc.Metadata.Patient.BirthDate == nil || *doc.Metadata.Patient.BirthDate != birth {
		t.Error("Expected birth date preserved")
	}
}
