package connector

import (
	"log"
	"sync"

	"eirbridge/internal/page"
)

// Registry holds the ordered set of registered connector descriptors and the
// single active instance. Descriptor order is part of the contract: the first
// matching descriptor wins, and the registry makes no attempt to resolve
// overlapping matches. Registration may arrive at any time, including after
// an initial match attempt.
type Registry struct {
	mu          sync.Mutex
	descriptors []Descriptor

	active     Connector
	activeDesc *Descriptor
}

// NewRegistry creates an empty connector registry. Tests and pipeline entry
// points construct their own registry instead of sharing process-wide state.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a connector descriptor. Descriptors missing their identity,
// match predicate, or constructor are rejected with a logged diagnostic and
// never added.
func (r *Registry) Register(d Descriptor) {
	if d.ProviderName == "" || d.Country == "" {
		log.Printf("❌ [REGISTRY] Invalid connector: missing provider name or country")
		return
	}
	if d.Matches == nil {
		log.Printf("❌ [REGISTRY] Invalid connector %s: missing match predicate", d.ProviderName)
		return
	}
	if d.New == nil {
		log.Printf("❌ [REGISTRY] Invalid connector %s: missing constructor", d.ProviderName)
		return
	}

	r.mu.Lock()
	r.descriptors = append(r.descriptors, d)
	r.mu.Unlock()

	log.Printf("✅ [REGISTRY] Registered connector: %s (%s)", d.ProviderName, d.Country)
}

// Find returns the first registered descriptor whose predicate matches the
// URL, in registration order.
func (r *Registry) Find(url string) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(url)
}

func (r *Registry) findLocked(url string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.Matches(url) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Active returns the connector instance for the URL, reusing the cached
// instance while its descriptor still matches and constructing a fresh one
// otherwise. A construction failure is logged and surfaces as "no active
// connector" rather than propagating.
func (r *Registry) Active(url string, pg page.Page) (Connector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.activeDesc != nil && r.activeDesc.Matches(url) {
		return r.active, true
	}

	desc, ok := r.findLocked(url)
	if !ok {
		r.active = nil
		r.activeDesc = nil
		log.Printf("⚠️  [REGISTRY] No matching connector for URL: %s", url)
		return nil, false
	}

	inst, err := desc.New(pg)
	if err != nil {
		r.active = nil
		r.activeDesc = nil
		log.Printf("❌ [REGISTRY] Failed to create %s connector: %v", desc.ProviderName, err)
		return nil, false
	}

	r.active = inst
	r.activeDesc = &desc
	log.Printf("✅ [REGISTRY] Active connector: %s", desc.ProviderName)
	return inst, true
}

// ActiveDescriptor returns the descriptor of the current active instance.
func (r *Registry) ActiveDescriptor() (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeDesc == nil {
		return Descriptor{}, false
	}
	return *r.activeDesc, true
}

// Descriptors returns a copy of all registered descriptors in order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// ClearActive drops the cached active instance, forcing a fresh match on the
// next Active call. Used on page navigation.
func (r *Registry) ClearActive() {
	r.mu.Lock()
	r.active = nil
	r.activeDesc = nil
	r.mu.Unlock()
}
