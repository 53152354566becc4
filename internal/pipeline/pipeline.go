// Package pipeline composes registry, connector, formatter, and handoff into
// the three entry points the UI collaborator invokes: run-and-handoff,
// run-only, and handoff-only.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"eirbridge/internal/connector"
	"eirbridge/internal/eir"
	"eirbridge/internal/export"
	"eirbridge/internal/handoff"
	"eirbridge/internal/logging"
	"eirbridge/internal/metrics"
	"eirbridge/internal/models"
	"eirbridge/internal/page"
)

const (
	defaultGlobalRate    = 1.0  // pipeline runs per second, service-wide
	defaultPerDomainRate = 0.2  // runs per second against one portal domain
)

// Result is what a pipeline entry point hands back to the collaborator.
type Result struct {
	Provider  string
	Document  *models.CanonicalDocument
	Files     export.Files
	Key       string
	ViewerURL string
	ExpiresAt time.Time
	Delivered bool
}

// Pipeline is the explicit context object for the extraction-to-handoff
// flow. Callers (and tests) construct their own instead of sharing
// process-wide state.
type Pipeline struct {
	registry *connector.Registry
	transfer *handoff.Manager
	limiter  *RateLimiter
	clock    clockwork.Clock
	metrics  *metrics.Metrics

	mu      sync.Mutex
	lastDoc *models.CanonicalDocument
}

// New creates a pipeline. The metrics and clock arguments may be nil.
func New(registry *connector.Registry, transfer *handoff.Manager, m *metrics.Metrics, clock clockwork.Clock) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		registry: registry,
		transfer: transfer,
		limiter:  NewRateLimiter(defaultGlobalRate, defaultPerDomainRate),
		clock:    clock,
		metrics:  m,
	}
}

// RunAndHandoff runs the full pipeline and offers the result for handoff:
// extract, normalize, assemble, store under a capability key, and open the
// viewer surface. The handshake itself runs in AwaitDelivery.
func (p *Pipeline) RunAndHandoff(ctx context.Context, pageURL string, pg page.Page) (*Result, error) {
	result, err := p.Run(ctx, pageURL, pg)
	if err != nil {
		return nil, err
	}

	key, err := p.transfer.Store(ctx, result.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to store document for handoff: %w", err)
	}
	result.Key = key
	if rec, ok := p.transfer.Record(); ok {
		result.ExpiresAt = rec.ExpiresAt
	}
	if p.metrics != nil {
		p.metrics.TransfersStored.Inc()
	}

	viewerURL, err := p.transfer.InitiateTransfer(ctx)
	if err != nil {
		return nil, err
	}
	result.ViewerURL = viewerURL

	if p.metrics != nil {
		p.metrics.ActiveTransfers.Inc()
		defer p.metrics.ActiveTransfers.Dec()
	}
	delivered, err := p.transfer.AwaitDelivery(ctx)
	if err != nil {
		return result, err
	}
	result.Delivered = delivered
	if delivered && p.metrics != nil {
		p.metrics.TransfersDelivered.Inc()
	}
	return result, nil
}

// Run executes the pipeline without handoff: extraction through assembly,
// plus the export artifacts. The assembled document is kept as the
// last-assembled document for a later HandoffOnly call.
func (p *Pipeline) Run(ctx context.Context, pageURL string, pg page.Page) (*Result, error) {
	conn, ok := p.registry.Active(pageURL, pg)
	if !ok {
		p.countRun("failure")
		return nil, fmt.Errorf("no connector available for this page")
	}
	desc, _ := p.registry.ActiveDescriptor()
	logger := logging.WithProvider(desc.ProviderName, desc.Country)

	if err := p.limiter.Wait(ctx, domainOf(pageURL)); err != nil {
		p.countRun("failure")
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	if !conn.IsAuthenticated(ctx) {
		logger.Warn("page does not look authenticated, proceeding best-effort")
	}

	start := p.clock.Now()
	raw, err := conn.Scrape(ctx)
	if err != nil {
		p.countRun("failure")
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ExtractionTime.Observe(p.clock.Since(start).Seconds())
		p.metrics.EntriesExtracted.Add(float64(len(raw)))
	}

	records := conn.Normalize(raw)
	patient := conn.PatientMetadata(ctx)

	doc := eir.Assemble(records, eir.MetadataSeed{
		Source:  desc.ProviderName,
		Patient: patient,
	})

	files, err := export.Render(doc, p.clock.Now())
	if err != nil {
		p.countRun("failure")
		return nil, err
	}

	p.mu.Lock()
	p.lastDoc = doc
	p.mu.Unlock()

	p.countRun("success")
	logger.Info("pipeline run complete", "entries", len(doc.Entries))

	return &Result{
		Provider: desc.ProviderName,
		Document: doc,
		Files:    files,
	}, nil
}

// HandoffOnly performs the handoff using the last-assembled document. It is
// a user-visible failure when no pipeline run has produced one yet.
func (p *Pipeline) HandoffOnly(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	doc := p.lastDoc
	p.mu.Unlock()
	if doc == nil {
		return nil, fmt.Errorf("no document available, run an extraction first")
	}

	key, err := p.transfer.Store(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to store document for handoff: %w", err)
	}
	if p.metrics != nil {
		p.metrics.TransfersStored.Inc()
	}

	viewerURL, err := p.transfer.InitiateTransfer(ctx)
	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.ActiveTransfers.Inc()
		defer p.metrics.ActiveTransfers.Dec()
	}
	delivered, err := p.transfer.AwaitDelivery(ctx)
	if err != nil {
		return nil, err
	}
	if delivered && p.metrics != nil {
		p.metrics.TransfersDelivered.Inc()
	}

	result := &Result{
		Document:  doc,
		Key:       key,
		ViewerURL: viewerURL,
		Delivered: delivered,
	}
	if rec, ok := p.transfer.Record(); ok {
		result.ExpiresAt = rec.ExpiresAt
	}
	return result, nil
}

// LastDocument returns the last-assembled canonical document, if any.
func (p *Pipeline) LastDocument() (*models.CanonicalDocument, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDoc, p.lastDoc != nil
}

func (p *Pipeline) countRun(outcome string) {
	if p.metrics != nil {
		p.metrics.PipelineRuns.WithLabelValues(outcome).Inc()
	}
}

func domainOf(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return pageURL
	}
	return parsed.Host
}

// Deadline bounds a full run; extraction of a heavily paginated journal can
// legitimately take minutes.
const Deadline = 10 * time.Minute
