// Package se1177 implements the connector for the Swedish 1177.se journal
// portal: its URL match, page selectors, extraction profile, and the Swedish
// field heuristics that normalize scraped text into canonical records.
package se1177

import (
	"context"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"eirbridge/internal/connector"
	"eirbridge/internal/extractor"
	"eirbridge/internal/models"
	"eirbridge/internal/page"
)

// ProviderName and Country are the connector's static identity.
const (
	ProviderName = "1177.se"
	Country      = "SE"
)

// swedishDatePattern matches dates like "17 mar 2025".
var swedishDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+(jan|feb|mar|apr|maj|jun|jul|aug|sep|okt|nov|dec)\s+(\d{4})`)

var categoryKeywords = []string{
	"Vårdkontakter", "Anteckningar", "Diagnoser", "Vaccinationer", "Läkemedel",
	"Provsvar", "Remisser", "Tillväxt", "Uppmärksamhetsinformation", "Vårdplaner",
}

var providerKeywords = []string{
	"vårdcentral", "sjukhus", "akut", "tandvård", "folktandvården",
	"SLSO", "region", "stockholm", "uppsala", "danderyd",
}

// Connector drives extraction and normalization for 1177.se.
type Connector struct {
	page      page.Page
	extractor *extractor.Extractor
}

// Descriptor returns the registry descriptor for 1177.se. The clock and
// logger flow into the extractor so tests can shrink its settle intervals.
func Descriptor(clock clockwork.Clock, logger *logrus.Logger) connector.Descriptor {
	return connector.Descriptor{
		ProviderName: ProviderName,
		Country:      Country,
		Matches:      Matches,
		New: func(pg page.Page) (connector.Connector, error) {
			return NewConnector(pg, clock, logger), nil
		},
	}
}

// Matches reports whether the URL belongs to the 1177.se journal portal.
func Matches(url string) bool {
	return strings.Contains(url, "journalen.1177.se") || strings.Contains(url, "1177.se/journal")
}

// NewConnector creates a 1177.se connector bound to the given page.
func NewConnector(pg page.Page, clock clockwork.Clock, logger *logrus.Logger) *Connector {
	return &Connector{
		page:      pg,
		extractor: extractor.New(pg, Profile(), clock, logger),
	}
}

// Profile returns the 1177.se extraction profile: the portal's selectors,
// its Swedish date format, and the keyword lists for field fallbacks.
func Profile() *extractor.Profile {
	return &extractor.Profile{
		ContentRoot:      "#timeline-view",
		LoadMore:         ".load-more.ic-button.ic-button--secondary.iu-px-xxl",
		EntryToggle:      ".icon-angle-down.nu-list-nav-icon.nu-list-nav-icon--journal-overview",
		EntryContainers:  ".ic-block-list__item, .journal-entry, .timeline-item, [data-cy-id]",
		VisibleEntries:   "#timeline-view .ic-block-list__item, #timeline-view .journal-entry, #timeline-view .timeline-item",
		TitleSelector:    ".title, .journal-title, .entry-title, h3, h4, .ic-block-list__title, .nc-journal-title",
		CategorySelector: ".category, .journal-category, .entry-category, .ic-badge, .nc-category",
		SourceSelector:   ".source, .provider, .journal-source, .nc-source",
		DetailsSelector:  ".journal-details, .entry-details, .nc-details, .ic-block-list__content",
		DatePatterns:     []*regexp.Regexp{swedishDatePattern},
		CategoryKeywords: categoryKeywords,
		ProviderKeywords: providerKeywords,
	}
}

// IsAuthenticated is an OR of presence checks against the live page plus a
// URL check, defaulting true when the URL carries no login marker. This is a
// best-effort hint, not an authorization check: with no positive signal at
// all it still reports true as long as the URL lacks "login"/"auth".
func (c *Connector) IsAuthenticated(ctx context.Context) bool {
	indicators := []string{
		`[data-testid="user-menu"]`,
		".ic-avatar-box__name",
		".user-profile",
		".logout-button",
		`[href*="logout"]`,
		".user-info",
	}
	for _, sel := range indicators {
		if _, ok, err := c.page.QueryFirst(ctx, sel); err == nil && ok {
			return true
		}
	}

	url, err := c.page.URL(ctx)
	if err != nil {
		return true
	}
	return !strings.Contains(url, "login") && !strings.Contains(url, "auth")
}

// WaitForData suspends until the journal timeline has content or the
// extractor's bounded timeout elapses.
func (c *Connector) WaitForData(ctx context.Context) error {
	return c.extractor.WaitForData(ctx)
}

// Scrape runs the full extraction state machine against the portal page.
func (c *Connector) Scrape(ctx context.Context) ([]models.RawEntry, error) {
	return c.extractor.Run(ctx)
}

// Normalize converts raw 1177.se entries to canonical records.
func (c *Connector) Normalize(raw []models.RawEntry) []models.CanonicalRecord {
	return Normalize(raw)
}

// PatientMetadata extracts the patient name from the avatar box. The portal
// does not expose birth date or personal number on the journal page, so both
// stay nil.
func (c *Connector) PatientMetadata(ctx context.Context) models.Patient {
	meta := models.Patient{Name: models.Unknown}

	el, ok, err := c.page.QueryFirst(ctx, ".ic-avatar-box__name")
	if err == nil && ok {
		if name, err := el.Text(ctx); err == nil {
			if name = strings.TrimSpace(name); name != "" {
				meta.Name = name
			}
		}
	}
	return meta
}
