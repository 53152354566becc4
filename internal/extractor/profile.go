package extractor

import (
	"regexp"
	"time"
)

// Profile carries everything provider-specific the extraction state machine
// needs: selectors for the page affordances, the exact date formats the portal
// renders, and the keyword lists used by the field heuristics. Connectors own
// their profile; the state machine itself stays provider-agnostic.
type Profile struct {
	// ContentRoot is the element whose children indicate journal data has
	// loaded.
	ContentRoot string

	// LoadMore locates the pagination affordance. Pagination ends when it is
	// absent, hidden, or disabled.
	LoadMore string

	// EntryToggle locates the click-to-expand affordance of a collapsed
	// entry.
	EntryToggle string

	// EntryContainers are the known entry container patterns, tried as a
	// single selector group when walking up from a toggle. When none match,
	// the toggle's immediate parent is used.
	EntryContainers string

	// VisibleEntries selects entries inside the content root that render
	// without expansion; they are merged in after the expansion pass.
	VisibleEntries string

	// Sub-element selectors for per-entry field extraction. Each may be
	// empty, in which case only the line-scan heuristic applies.
	TitleSelector    string
	CategorySelector string
	SourceSelector   string
	DetailsSelector  string

	// DatePatterns are the exact in-locale date formats, tried line by line
	// before the ISO fallback. First match wins.
	DatePatterns []*regexp.Regexp

	// CategoryKeywords and ProviderKeywords drive the keyword-scan fallbacks
	// for the category and source fields. Provider keywords are matched
	// case-insensitively.
	CategoryKeywords []string
	ProviderKeywords []string

	// Timing bounds. Zero values fall back to the defaults below.
	DataTimeout    time.Duration
	PollInterval   time.Duration
	PaginateSettle time.Duration
	ExpandSettle   time.Duration

	// MaxLoadMore caps pagination iterations against a misbehaving page.
	MaxLoadMore int
}

const (
	defaultDataTimeout    = 10 * time.Second
	defaultPollInterval   = 1 * time.Second
	defaultPaginateSettle = 2 * time.Second
	defaultExpandSettle   = 100 * time.Millisecond
	defaultMaxLoadMore    = 50

	// Entries with less than this much text are discarded as noise.
	minEntryTextLen = 20
)

func (p *Profile) dataTimeout() time.Duration {
	if p.DataTimeout > 0 {
		return p.DataTimeout
	}
	return defaultDataTimeout
}

func (p *Profile) pollInterval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return defaultPollInterval
}

func (p *Profile) paginateSettle() time.Duration {
	if p.PaginateSettle > 0 {
		return p.PaginateSettle
	}
	return defaultPaginateSettle
}

func (p *Profile) expandSettle() time.Duration {
	if p.ExpandSettle > 0 {
		return p.ExpandSettle
	}
	return defaultExpandSettle
}

func (p *Profile) maxLoadMore() int {
	if p.MaxLoadMore > 0 {
		return p.MaxLoadMore
	}
	return defaultMaxLoadMore
}
