// Package connector defines the polymorphic contract every provider portal
// implements, and the registry that matches the active page to one of them.
// Adding a provider means registering one descriptor; the registry itself
// never changes.
package connector

import (
	"context"

	"eirbridge/internal/models"
	"eirbridge/internal/page"
)

// Connector is the capability set a provider implementation supplies for one
// live page.
type Connector interface {
	// IsAuthenticated is a best-effort heuristic (an OR of presence checks
	// against the live page), not a security control. It is true-biased when
	// the page is ambiguous.
	IsAuthenticated(ctx context.Context) bool

	// WaitForData suspends until journal data is likely present or a bounded
	// timeout elapses.
	WaitForData(ctx context.Context) error

	// Scrape drives the page and returns raw provider-shaped entries. It may
	// suspend repeatedly and always returns partial results over failing.
	Scrape(ctx context.Context) ([]models.RawEntry, error)

	// Normalize converts raw entries to canonical records. It is total,
	// index-preserving, and length-preserving.
	Normalize(raw []models.RawEntry) []models.CanonicalRecord

	// PatientMetadata extracts the patient identity from the page. Fields
	// that cannot be extracted stay nil, never fabricated.
	PatientMetadata(ctx context.Context) models.Patient
}

// Descriptor is a registered connector: its static identity, its pure URL
// match predicate, and its constructor.
type Descriptor struct {
	// ProviderName identifies the provider (e.g. "1177.se").
	ProviderName string

	// Country is the provider's ISO country code (e.g. "SE").
	Country string

	// Matches reports whether this connector handles the given URL. It must
	// be pure and side-effect free.
	Matches func(url string) bool

	// New constructs a connector instance bound to the given page.
	New func(pg page.Page) (Connector, error)
}
