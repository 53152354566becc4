// Package extractor drives the page-interaction state machine that pulls raw
// journal entries out of a lazily-loaded, paginated, click-to-expand portal
// page. It is deliberately forgiving: timeouts and per-entry failures degrade
// to partial results, never to an aborted scrape.
package extractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"eirbridge/internal/models"
	"eirbridge/internal/page"
)

// Phase identifies the extractor's position in its state machine. Phases are
// strictly sequential: wait, paginate, expand, done.
type Phase int

const (
	PhaseWaitingForData Phase = iota
	PhasePaginating
	PhaseExpanding
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitingForData:
		return "WAITING_FOR_DATA"
	case PhasePaginating:
		return "PAGINATING"
	case PhaseExpanding:
		return "EXPANDING"
	default:
		return "DONE"
	}
}

var isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Extractor runs the extraction state machine for one page using one
// provider profile.
type Extractor struct {
	page    page.Page
	profile *Profile
	clock   clockwork.Clock
	logger  *logrus.Logger

	phase Phase
}

// New creates an extractor for the given page and provider profile. A nil
// clock falls back to the real clock, a nil logger to the logrus default.
func New(pg page.Page, profile *Profile, clock clockwork.Clock, logger *logrus.Logger) *Extractor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Extractor{
		page:    pg,
		profile: profile,
		clock:   clock,
		logger:  logger,
		phase:   PhaseWaitingForData,
	}
}

// Phase returns the extractor's current phase.
func (e *Extractor) Phase() Phase {
	return e.phase
}

// Run executes the full extraction: wait for data, paginate, expand, extract.
// It always returns whatever entries it managed to collect; the only error it
// reports is context cancellation.
func (e *Extractor) Run(ctx context.Context) ([]models.RawEntry, error) {
	e.phase = PhaseWaitingForData
	if err := e.WaitForData(ctx); err != nil {
		return nil, err
	}

	e.phase = PhasePaginating
	if err := e.LoadAllEntries(ctx); err != nil {
		return nil, err
	}

	e.phase = PhaseExpanding
	entries, err := e.CollectEntries(ctx)
	if err != nil {
		return entries, err
	}

	e.phase = PhaseDone
	e.logger.WithField("entries", len(entries)).Info("extraction complete")
	return entries, nil
}

// WaitForData polls until the content root has children or the bounded
// timeout elapses. A timeout is not an error: extraction proceeds with
// whatever the page holds.
func (e *Extractor) WaitForData(ctx context.Context) error {
	loaded, err := page.Until(ctx, e.clock, func(ctx context.Context) (bool, error) {
		n, err := e.page.ChildCount(ctx, e.profile.ContentRoot)
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}, e.profile.dataTimeout(), e.profile.pollInterval())
	if err != nil {
		return err
	}
	if !loaded {
		e.logger.Warn("data wait timed out, proceeding with available content")
	}
	return nil
}

// LoadAllEntries repeatedly triggers the load-more affordance until it is
// absent, hidden, or disabled, with a settle delay after each trigger and a
// hard iteration cap against misbehaving pages.
func (e *Extractor) LoadAllEntries(ctx context.Context) error {
	clicks := 0
	for clicks < e.profile.maxLoadMore() {
		btn, ok, err := e.page.QueryFirst(ctx, e.profile.LoadMore)
		if err != nil || !ok {
			break
		}

		if visible, err := btn.Visible(ctx); err != nil || !visible {
			break
		}
		if disabled, err := btn.Disabled(ctx); err != nil || disabled {
			break
		}

		if err := btn.Click(ctx); err != nil {
			e.logger.WithError(err).Warn("load-more click failed, stopping pagination")
			break
		}
		clicks++

		if err := page.Sleep(ctx, e.clock, e.profile.paginateSettle()); err != nil {
			return err
		}
	}

	if clicks >= e.profile.maxLoadMore() {
		e.logger.WithField("clicks", clicks).Warn("reached pagination iteration cap")
	}
	e.logger.WithField("clicks", clicks).Debug("pagination finished")
	return nil
}

// CollectEntries expands every collapsed entry affordance, extracts from its
// enclosing container, then sweeps the content root for entries that render
// without expansion, deduplicating by extracted text.
func (e *Extractor) CollectEntries(ctx context.Context) ([]models.RawEntry, error) {
	var entries []models.RawEntry

	toggles, err := e.page.Query(ctx, e.profile.EntryToggle)
	if err != nil {
		e.logger.WithError(err).Warn("entry toggle lookup failed")
		toggles = nil
	}

	for i, toggle := range toggles {
		if ctx.Err() != nil {
			return entries, ctx.Err()
		}

		entry, ok := e.expandAndExtract(ctx, toggle)
		if !ok {
			e.logger.WithField("index", i).Debug("entry skipped")
			continue
		}
		entries = append(entries, entry)
	}

	// Second pass: already-visible entries that never needed a click.
	if e.profile.VisibleEntries != "" {
		elems, err := e.page.Query(ctx, e.profile.VisibleEntries)
		if err == nil {
			for _, el := range elems {
				entry, ok := e.extractEntry(ctx, el)
				if !ok {
					continue
				}
				if containsText(entries, entry.Text) {
					continue
				}
				entries = append(entries, entry)
			}
		}
	}

	return entries, nil
}

// expandAndExtract clicks one collapsed entry open, waits for it to settle,
// and extracts from the nearest enclosing container. Any failure skips the
// entry rather than failing the scrape.
func (e *Extractor) expandAndExtract(ctx context.Context, toggle page.Element) (models.RawEntry, bool) {
	if err := toggle.Click(ctx); err != nil {
		return models.RawEntry{}, false
	}
	if err := page.Sleep(ctx, e.clock, e.profile.expandSettle()); err != nil {
		return models.RawEntry{}, false
	}

	container, ok, err := toggle.Closest(ctx, e.profile.EntryContainers)
	if err != nil || !ok {
		container, ok, err = toggle.Parent(ctx)
		if err != nil || !ok {
			return models.RawEntry{}, false
		}
	}

	return e.extractEntry(ctx, container)
}

// extractEntry runs the per-entry heuristic pipeline over one container:
// full text, line-scan date, title, category, source, details, whitespace
// cleanup, and the noise cutoff.
func (e *Extractor) extractEntry(ctx context.Context, container page.Element) (models.RawEntry, bool) {
	text, err := container.Text(ctx)
	if err != nil {
		return models.RawEntry{}, false
	}

	entry := models.RawEntry{}
	lines := splitLines(text)

	entry.Date = e.findDateLine(lines)
	entry.Title = e.findTitle(ctx, container, lines)
	entry.Category = e.findCategory(ctx, container, lines)
	entry.Source = e.findSource(ctx, container, lines)
	entry.Details = e.findDetails(ctx, container)
	entry.Text = collapseWhitespace(text)

	if len(entry.Text) < minEntryTextLen {
		return models.RawEntry{}, false
	}
	return entry, true
}

// findDateLine scans lines for an in-locale date pattern, then for an ISO
// date. First match wins; the full line is kept so the normalizer sees its
// context.
func (e *Extractor) findDateLine(lines []string) string {
	for _, line := range lines {
		for _, pat := range e.profile.DatePatterns {
			if pat.MatchString(line) {
				return line
			}
		}
		if isoDatePattern.MatchString(line) {
			return line
		}
	}
	return ""
}

func (e *Extractor) findTitle(ctx context.Context, container page.Element, lines []string) string {
	if s := e.subElementText(ctx, container, e.profile.TitleSelector); s != "" {
		return s
	}
	for _, line := range lines {
		if len(line) <= 5 || len(line) >= 100 {
			continue
		}
		if isoDatePattern.MatchString(line) {
			continue
		}
		dated := false
		for _, pat := range e.profile.DatePatterns {
			if pat.MatchString(line) {
				dated = true
				break
			}
		}
		if !dated {
			return line
		}
	}
	return ""
}

func (e *Extractor) findCategory(ctx context.Context, container page.Element, lines []string) string {
	if s := e.subElementText(ctx, container, e.profile.CategorySelector); s != "" {
		return s
	}
	for _, line := range lines {
		for _, kw := range e.profile.CategoryKeywords {
			if strings.Contains(line, kw) {
				return kw
			}
		}
	}
	return ""
}

func (e *Extractor) findSource(ctx context.Context, container page.Element, lines []string) string {
	if s := e.subElementText(ctx, container, e.profile.SourceSelector); s != "" {
		return s
	}
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range e.profile.ProviderKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return line
			}
		}
	}
	return ""
}

func (e *Extractor) findDetails(ctx context.Context, container page.Element) string {
	return e.subElementText(ctx, container, e.profile.DetailsSelector)
}

func (e *Extractor) subElementText(ctx context.Context, container page.Element, selector string) string {
	if selector == "" {
		return ""
	}
	el, ok, err := container.QueryFirst(ctx, selector)
	if err != nil || !ok {
		return ""
	}
	text, err := el.Text(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// collapseWhitespace folds runs of whitespace into single spaces, dropping
// blank lines, so entry text compares stably across layout changes.
func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func containsText(entries []models.RawEntry, text string) bool {
	for _, e := range entries {
		if e.Text == text {
			return true
		}
	}
	return false
}
