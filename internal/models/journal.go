package models

// Unknown is the universal fallback value for canonical fields that could not
// be extracted or parsed. Every scalar field in a CanonicalRecord carries it
// instead of being absent.
const Unknown = "Unknown"

// FormatVersion is the EIR canonical format version written into every
// assembled document.
const FormatVersion = "1.0"

// RawEntry is the provider-shaped, unnormalized output for one visually
// distinct journal entry region. Fields other than Text are best-effort and
// may be empty; RawEntries are discarded after normalization.
type RawEntry struct {
	Text     string `json:"text"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Source   string `json:"source"`
	Details  string `json:"details"`
}

// Provider identifies the healthcare provider behind a journal entry.
type Provider struct {
	Name     string `json:"name"`
	Region   string `json:"region"`
	Location string `json:"location"`
}

// ResponsiblePerson is the clinician recorded as responsible for an entry.
type ResponsiblePerson struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// EntryContent holds the narrative parts of a canonical record. Notes is an
// ordered sequence of extracted line fragments, capped at 10 per entry.
type EntryContent struct {
	Summary string   `json:"summary"`
	Details string   `json:"details"`
	Notes   []string `json:"notes"`
}

// CanonicalRecord is the provider-neutral normalized unit. Every field has a
// defined fallback; a constructed record never has an absent field.
type CanonicalRecord struct {
	ID                string            `json:"id"`
	Date              string            `json:"date"` // YYYY-MM-DD or Unknown
	Time              string            `json:"time"` // HH:MM or Unknown
	Category          string            `json:"category"`
	Type              string            `json:"type"`
	Provider          Provider          `json:"provider"`
	Status            string            `json:"status"`
	ResponsiblePerson ResponsiblePerson `json:"responsible_person"`
	Content           EntryContent      `json:"content"`
	Attachments       []string          `json:"attachments"`
	Tags              []string          `json:"tags"`
}

// Patient is the extracted patient identity. BirthDate and PersonalNumber are
// nil when the source page does not expose them; they are never fabricated.
type Patient struct {
	Name           string  `json:"name"`
	BirthDate      *string `json:"birth_date"`
	PersonalNumber *string `json:"personal_number"`
}

// DateRange is the min/max of all strictly-ISO entry dates in a document,
// or Unknown on both ends when no entry has one.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ExportInfo is derived metadata about one extraction run.
type ExportInfo struct {
	TotalEntries        int       `json:"total_entries"`
	DateRange           DateRange `json:"date_range"`
	HealthcareProviders []string  `json:"healthcare_providers"`
}

// DocumentMetadata describes the provenance of a canonical document.
type DocumentMetadata struct {
	FormatVersion string     `json:"format_version"`
	CreatedAt     string     `json:"created_at"`
	Source        string     `json:"source"`
	Patient       Patient    `json:"patient"`
	ExportInfo    ExportInfo `json:"export_info"`
}

// CanonicalDocument is the complete EIR document: derived metadata plus the
// ordered canonical records of one extraction.
type CanonicalDocument struct {
	Metadata DocumentMetadata  `json:"metadata"`
	Entries  []CanonicalRecord `json:"entries"`
}
