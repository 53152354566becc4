// Package export renders a canonical document for the file-export
// collaborator: a human-readable text report plus the serialized EIR text.
// Filenames and save mechanics stay the collaborator's concern.
package export

import (
	"fmt"
	"strings"
	"time"

	"eirbridge/internal/eir"
	"eirbridge/internal/models"
)

// Files is what the file-export collaborator receives for one document.
type Files struct {
	// Text is the human-readable journal rendering.
	Text string
	// EIR is the serialized canonical-format document.
	EIR string
}

// Render produces both export artifacts for a document.
func Render(doc *models.CanonicalDocument, now time.Time) (Files, error) {
	serialized, err := eir.Serialize(doc)
	if err != nil {
		return Files{}, fmt.Errorf("failed to serialize document: %w", err)
	}
	return Files{
		Text: RenderText(doc, now),
		EIR:  serialized,
	}, nil
}

// RenderText formats the document as a readable journal report: a download
// header followed by one field block per entry.
func RenderText(doc *models.CanonicalDocument, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s JOURNAL DOWNLOAD ===\n", strings.ToUpper(doc.Metadata.Source))
	fmt.Fprintf(&b, "Downloaded: %s\n", now.Format("January 2, 2006 15:04"))
	fmt.Fprintf(&b, "Patient: %s\n", doc.Metadata.Patient.Name)
	fmt.Fprintf(&b, "Total Entries: %d\n", len(doc.Entries))
	b.WriteString("\n========================================\n")

	for i, entry := range doc.Entries {
		fmt.Fprintf(&b, "\n--- ENTRY %d ---\n", i+1)

		if entry.Date != "" {
			fmt.Fprintf(&b, "Date: %s\n", entry.Date)
		}
		if entry.Time != "" && entry.Time != models.Unknown {
			fmt.Fprintf(&b, "Time: %s\n", entry.Time)
		}
		if entry.Type != "" {
			fmt.Fprintf(&b, "Title: %s\n", entry.Type)
		}
		if entry.Category != "" {
			fmt.Fprintf(&b, "Category: %s\n", entry.Category)
		}
		if entry.Provider.Name != "" {
			fmt.Fprintf(&b, "Provider: %s\n", entry.Provider.Name)
		}
		if entry.Provider.Region != "" {
			fmt.Fprintf(&b, "Region: %s\n", entry.Provider.Region)
		}
		if entry.ResponsiblePerson.Name != "" {
			fmt.Fprintf(&b, "Responsible: %s", entry.ResponsiblePerson.Name)
			if entry.ResponsiblePerson.Role != "" {
				fmt.Fprintf(&b, " (%s)", entry.ResponsiblePerson.Role)
			}
			b.WriteString("\n")
		}
		if entry.Status != "" {
			fmt.Fprintf(&b, "Status: %s\n", entry.Status)
		}
		if entry.Content.Summary != "" {
			fmt.Fprintf(&b, "\nSummary:\n%s\n", entry.Content.Summary)
		}
		if entry.Content.Details != "" {
			fmt.Fprintf(&b, "\nDetails:\n%s\n", entry.Content.Details)
		}
		if len(entry.Content.Notes) > 0 {
			b.WriteString("\nNotes:\n")
			for _, note := range entry.Content.Notes {
				fmt.Fprintf(&b, "  - %s\n", note)
			}
		}
		if len(entry.Tags) > 0 {
			fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(entry.Tags, ", "))
		}

		b.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	}

	return b.String()
}
