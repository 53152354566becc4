// Package eir assembles canonical records into the EIR document format and
// serializes it as deterministic YAML.
package eir

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"eirbridge/internal/models"
)

var strictISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// MetadataSeed carries the caller-supplied parts of a document's metadata.
// Everything derivable (date range, provider list, totals) is computed here.
type MetadataSeed struct {
	FormatVersion string
	CreatedAt     string
	Source        string
	Patient       models.Patient
}

// Assemble builds a canonical document from records and a metadata seed.
// Every field gets its defined fallback, the date range and provider list are
// derived from the records, and each record's id is re-derived when absent
// rather than trusting upstream numbering.
func Assemble(records []models.CanonicalRecord, seed MetadataSeed) *models.CanonicalDocument {
	if seed.FormatVersion == "" {
		seed.FormatVersion = models.FormatVersion
	}
	if seed.CreatedAt == "" {
		seed.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if seed.Source == "" {
		seed.Source = "Unknown Provider"
	}
	if seed.Patient.Name == "" {
		seed.Patient.Name = models.Unknown
	}

	entries := make([]models.CanonicalRecord, len(records))
	for i, rec := range records {
		entries[i] = withDefaults(rec, i)
	}

	return &models.CanonicalDocument{
		Metadata: models.DocumentMetadata{
			FormatVersion: seed.FormatVersion,
			CreatedAt:     seed.CreatedAt,
			Source:        seed.Source,
			Patient:       seed.Patient,
			ExportInfo: models.ExportInfo{
				TotalEntries:        len(entries),
				DateRange:           dateRange(entries),
				HealthcareProviders: healthcareProviders(entries),
			},
		},
		Entries: entries,
	}
}

// withDefaults fills every empty field of a record with its stated fallback.
func withDefaults(rec models.CanonicalRecord, index int) models.CanonicalRecord {
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("entry_%03d", index+1)
	}
	rec.Date = fallback(rec.Date, models.Unknown)
	rec.Time = fallback(rec.Time, models.Unknown)
	rec.Category = fallback(rec.Category, models.Unknown)
	rec.Type = fallback(rec.Type, models.Unknown)
	rec.Provider.Name = fallback(rec.Provider.Name, models.Unknown)
	rec.Provider.Region = fallback(rec.Provider.Region, models.Unknown)
	rec.Provider.Location = fallback(rec.Provider.Location, rec.Provider.Name)
	rec.Status = fallback(rec.Status, models.Unknown)
	rec.ResponsiblePerson.Name = fallback(rec.ResponsiblePerson.Name, models.Unknown)
	rec.ResponsiblePerson.Role = fallback(rec.ResponsiblePerson.Role, models.Unknown)
	rec.Content.Summary = fallback(rec.Content.Summary, "Journal Entry")
	if rec.Content.Notes == nil {
		rec.Content.Notes = []string{}
	}
	if rec.Attachments == nil {
		rec.Attachments = []string{}
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec
}

// dateRange returns the min/max of all strictly-ISO entry dates, or Unknown
// on both ends when no entry has one.
func dateRange(entries []models.CanonicalRecord) models.DateRange {
	var dates []string
	for _, e := range entries {
		if strictISODate.MatchString(e.Date) {
			dates = append(dates, e.Date)
		}
	}
	if len(dates) == 0 {
		return models.DateRange{Start: models.Unknown, End: models.Unknown}
	}
	sort.Strings(dates)
	return models.DateRange{Start: dates[0], End: dates[len(dates)-1]}
}

// healthcareProviders returns the deduplicated, first-seen-order list of
// non-Unknown provider names.
func healthcareProviders(entries []models.CanonicalRecord) []string {
	providers := []string{}
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Provider.Name
		if name == "" || name == models.Unknown || seen[name] {
			continue
		}
		providers = append(providers, name)
		seen[name] = true
	}
	return providers
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
