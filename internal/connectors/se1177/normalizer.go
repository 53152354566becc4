package se1177

import (
	"fmt"
	"regexp"
	"strings"

	"eirbridge/internal/models"
)

// Field heuristics for Swedish journal text. Every function here is total:
// unparseable input falls back to Unknown, nil, or an empty collection, never
// an error. Each rule set is evaluated in a fixed priority order and the
// first match wins.

var swedishMonths = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "maj": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "okt": "10", "nov": "11", "dec": "12",
}

var (
	swedishDateRe  = regexp.MustCompile(`(\d{1,2})\s+(\p{L}{3})\s+(\d{4})`)
	isoDateRe      = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	isoDateStartRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	timeRe         = regexp.MustCompile(`(?:klockan\s+)?(\d{1,2}:\d{2})`)
	regionRe       = regexp.MustCompile(`Region\s+([^,]+)`)
	notedByRe      = regexp.MustCompile(`Antecknad av ([^(]+)\s*\(`)
	otherPersonRe  = regexp.MustCompile(`(?:Vaccinerad av|Ordinatör|Ansvarig för kontakten)\s+([^(]+)`)
	roleRe         = regexp.MustCompile(`\(([^)]+)\)`)
)

// tagKeywords is the fixed tag vocabulary. Output order of generated tags is
// this list's order, not input order.
var tagKeywords = []string{
	"akut", "vaccination", "tandvård", "diagnos", "besök",
	"osignerad", "distriktssköterska", "tandläkare", "läkare",
}

// FormatDate converts a Swedish or ISO date string to YYYY-MM-DD. It tries
// the short-month Swedish format first, then an ISO date anywhere in the
// string, then at its start, then retries the embedded Swedish pattern for
// long strings. Anything unparseable becomes Unknown.
func FormatDate(dateString string) string {
	if dateString == "" {
		return models.Unknown
	}
	clean := strings.Join(strings.Fields(dateString), " ")

	if d := swedishDate(clean); d != "" {
		return d
	}
	if m := isoDateRe.FindStringSubmatch(clean); m != nil {
		return m[1]
	}
	if m := isoDateStartRe.FindStringSubmatch(clean); m != nil {
		return m[1]
	}
	if len(clean) > 20 {
		if d := swedishDate(clean); d != "" {
			return d
		}
	}
	return models.Unknown
}

func swedishDate(s string) string {
	m := swedishDateRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	month, ok := swedishMonths[strings.ToLower(m[2])]
	if !ok {
		return ""
	}
	day := m[1]
	if len(day) == 1 {
		day = "0" + day
	}
	return fmt.Sprintf("%s-%s-%s", m[3], month, day)
}

// ExtractTime finds a time like "klockan 10:52" or "10:52" in the text.
func ExtractTime(text string) string {
	if m := timeRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return models.Unknown
}

// ExtractRegion derives the Swedish region from a provider/source name.
func ExtractRegion(source string) string {
	if source == "" {
		return models.Unknown
	}
	switch {
	case strings.Contains(source, "Region Uppsala"):
		return "Region Uppsala"
	case strings.Contains(source, "Stockholm"):
		return "Stockholm"
	case strings.Contains(source, "Danderyd"):
		return "Danderyd"
	case strings.Contains(source, "Västerbotten"):
		return "Västerbotten"
	}
	if m := regionRe.FindStringSubmatch(source); m != nil {
		return "Region " + strings.TrimSpace(m[1])
	}
	return models.Unknown
}

// ExtractStatus finds the signing status keyword in the entry text.
func ExtractStatus(text string) string {
	switch {
	case strings.Contains(text, "Nytt"):
		return "Nytt"
	case strings.Contains(text, "Osignerad"):
		return "Osignerad"
	case strings.Contains(text, "Signerad"):
		return "Signerad"
	}
	return models.Unknown
}

// ExtractResponsiblePerson finds the clinician named in phrases like
// "Antecknad av Anna Svensson (Sjuksköterska)".
func ExtractResponsiblePerson(text string) string {
	if m := notedByRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := otherPersonRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return models.Unknown
}

// ExtractRole returns the first parenthesised fragment, which on 1177.se is
// the clinician's role.
func ExtractRole(text string) string {
	if m := roleRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return models.Unknown
}

// Summary builds the entry summary from category and title.
func Summary(entry models.RawEntry) string {
	switch {
	case entry.Category != "" && entry.Title != "":
		return entry.Category + " - " + entry.Title
	case entry.Category != "":
		return entry.Category
	case entry.Title != "":
		return entry.Title
	}
	return "Journal Entry"
}

// ExtractNotes keeps trimmed non-empty lines that contain a colon, are not
// URLs, and are longer than 10 characters, capped at the first 10 in line
// order.
func ExtractNotes(text string) []string {
	notes := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, ":") || strings.Contains(line, "http") || len(line) <= 10 {
			continue
		}
		notes = append(notes, line)
		if len(notes) == 10 {
			break
		}
	}
	return notes
}

// Tags generates the deterministic tag set: one tag for the entry's category
// (lower-cased) plus one per vocabulary keyword found in the text,
// case-insensitively, deduplicated, in vocabulary order.
func Tags(entry models.RawEntry) []string {
	tags := []string{}
	seen := map[string]bool{}

	if entry.Category != "" {
		tag := strings.ToLower(entry.Category)
		tags = append(tags, tag)
		seen[tag] = true
	}

	lower := strings.ToLower(entry.Text)
	for _, kw := range tagKeywords {
		if seen[kw] {
			continue
		}
		if strings.Contains(lower, kw) {
			tags = append(tags, kw)
			seen[kw] = true
		}
	}
	return tags
}

// NormalizeEntry converts one raw entry into a canonical record. The index is
// the entry's extraction-order position and drives the stable entry_NNN id.
func NormalizeEntry(raw models.RawEntry, index int) models.CanonicalRecord {
	details := raw.Text
	// Cut on runes, not bytes: a byte cut could split a Swedish character
	// and leave invalid UTF-8 in the record.
	if runes := []rune(details); len(runes) > 200 {
		details = string(runes[:200]) + "..."
	}

	return models.CanonicalRecord{
		ID:       fmt.Sprintf("entry_%03d", index+1),
		Date:     FormatDate(raw.Date),
		Time:     ExtractTime(raw.Text),
		Category: orUnknown(raw.Category),
		Type:     orUnknown(raw.Title),
		Provider: models.Provider{
			Name:     orUnknown(raw.Source),
			Region:   ExtractRegion(raw.Source),
			Location: orUnknown(raw.Source),
		},
		Status: ExtractStatus(raw.Text),
		ResponsiblePerson: models.ResponsiblePerson{
			Name: ExtractResponsiblePerson(raw.Text),
			Role: ExtractRole(raw.Text),
		},
		Content: models.EntryContent{
			Summary: Summary(raw),
			Details: details,
			Notes:   ExtractNotes(raw.Text),
		},
		Attachments: []string{},
		Tags:        Tags(raw),
	}
}

// Normalize converts raw entries to canonical records. It is index- and
// length-preserving: record i derives from raw entry i and nothing is
// dropped here; noise filtering happens upstream in extraction.
func Normalize(raw []models.RawEntry) []models.CanonicalRecord {
	records := make([]models.CanonicalRecord, len(raw))
	for i, entry := range raw {
		records[i] = NormalizeEntry(entry, i)
	}
	return records
}

func orUnknown(s string) string {
	if s == "" {
		return models.Unknown
	}
	return s
}
