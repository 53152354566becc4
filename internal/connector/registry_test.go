package connector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eirbridge/internal/models"
	"eirbridge/internal/page"
)

// stubConnector is the minimal Connector used to observe registry behavior.
type stubConnector struct {
	name string
}

func (s *stubConnector) IsAuthenticated(ctx context.Context) bool { return true }
func (s *stubConnector) WaitForData(ctx context.Context) error    { return nil }
func (s *stubConnector) Scrape(ctx context.Context) ([]models.RawEntry, error) {
	return nil, nil
}
func (s *stubConnector) Normalize(raw []models.RawEntry) []models.CanonicalRecord {
	return make([]models.CanonicalRecord, len(raw))
}
func (s *stubConnector) PatientMetadata(ctx context.Context) models.Patient {
	return models.Patient{Name: s.name}
}

func stubDescriptor(name, urlPart string) Descriptor {
	return Descriptor{
		ProviderName: name,
		Country:      "SE",
		Matches: func(url string) bool {
			return strings.Contains(url, urlPart)
		},
		New: func(pg page.Page) (Connector, error) {
			return &stubConnector{name: name}, nil
		},
	}
}

// TestRegisterRejectsIncompleteDescriptors verifies descriptors missing
// identity, predicate, or constructor never make it into the registry.
func TestRegisterRejectsIncompleteDescriptors(t *testing.T) {
	r := NewRegistry()

	r.Register(Descriptor{Country: "SE", Matches: func(string) bool { return true }, New: func(page.Page) (Connector, error) { return nil, nil }})
	r.Register(Descriptor{ProviderName: "x", Matches: func(string) bool { return true }, New: func(page.Page) (Connector, error) { return nil, nil }})
	r.Register(Descriptor{ProviderName: "x", Country: "SE", New: func(page.Page) (Connector, error) { return nil, nil }})
	r.Register(Descriptor{ProviderName: "x", Country: "SE", Matches: func(string) bool { return true }})

	if n := len(r.Descriptors()); n != 0 {
		t.Errorf("Expected 0 registered descriptors, got %d", n)
	}
}

// TestFindFirstMatchWins verifies registration order decides between
// overlapping predicates.
func TestFindFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	r.Register(stubDescriptor("first", "journal"))
	r.Register(stubDescriptor("second", "journal"))

	d, ok := r.Find("https://example.se/journal")
	if !ok {
		t.Fatal("Expected a match")
	}
	if d.ProviderName != "first" {
		t.Errorf("Expected first registered descriptor to win, got %s", d.ProviderName)
	}
}

// TestFindNoMatch verifies an unmatched URL reports no descriptor.
func TestFindNoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(stubDescriptor("first", "journal"))

	if _, ok := r.Find("https://unrelated.example"); ok {
		t.Fatal("Expected no match for unrelated URL")
	}
}

// TestActiveCachesInstance verifies the active instance is reused while its
// descriptor still matches, and rebuilt after the match breaks.
func TestActiveCachesInstance(t *testing.T) {
	r := NewRegistry()

	built := 0
	d := stubDescriptor("prov", "journal")
	d.New = func(pg page.Page) (Connector, error) {
		built++
		return &stubConnector{name: "prov"}, nil
	}
	r.Register(d)

	url := "https://example.se/journal"
	a, ok := r.Active(url, nil)
	if !ok {
		t.Fatal("Expected active connector")
	}
	b, ok := r.Active(url, nil)
	if !ok {
		t.Fatal("Expected active connector on second call")
	}
	if a != b {
		t.Error("Expected the cached instance to be reused")
	}
	if built != 1 {
		t.Errorf("Expected 1 construction, got %d", built)
	}

	// Navigating away invalidates the cache; coming back rebuilds.
	if _, ok := r.Active("https://unrelated.example", nil); ok {
		t.Fatal("Expected no connector on unmatched URL")
	}
	if _, ok := r.Active(url, nil); !ok {
		t.Fatal("Expected connector after returning to matched URL")
	}
	if built != 2 {
		t.Errorf("Expected rebuild after cache invalidation, got %d constructions", built)
	}
}

// TestActiveConstructionFailure verifies a failing constructor surfaces as
// "no active connector" and leaves nothing cached.
func TestActiveConstructionFailure(t *testing.T) {
	r := NewRegistry()

	d := stubDescriptor("broken", "journal")
	d.New = func(pg page.Page) (Connector, error) {
		return nil, errors.New("page not ready")
	}
	r.Register(d)

	if _, ok := r.Active("https://example.se/journal", nil); ok {
		t.Fatal("Expected no active connector on construction failure")
	}
	if _, ok := r.ActiveDescriptor(); ok {
		t.Fatal("Expected no active descriptor after construction failure")
	}
}

// TestLateRegistration verifies a descriptor registered after a failed match
// attempt is picked up on the next one.
func TestLateRegistration(t *testing.T) {
	r := NewRegistry()

	url := "https://example.se/journal"
	if _, ok := r.Active(url, nil); ok {
		t.Fatal("Expected no connector before registration")
	}

	r.Register(stubDescriptor("late", "journal"))
	if _, ok := r.Active(url, nil); !ok {
		t.Fatal("Expected connector after late registration")
	}
}

// TestClearActive verifies ClearActive forces a fresh construction.
func TestClearActive(t *testing.T) {
	r := NewRegistry()

	built := 0
	d := stubDescriptor("prov", "journal")
	d.New = func(pg page.Page) (Connector, error) {
		built++
		return &stubConnector{name: "prov"}, nil
	}
	r.Register(d)

	url := "https://example.se/journal"
	r.Active(url, nil)
	r.ClearActive()
	r.Active(url, nil)

	if built != 2 {
		t.Errorf("Expected 2 constructions across ClearActive, got %d", built)
	}
}
