package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"eirbridge/internal/metrics"
	"eirbridge/internal/models"
)

// State is the transfer protocol's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateStored
	StateAwaitingPeer
	StateDelivered
	StateExpired
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStored:
		return "STORED"
	case StateAwaitingPeer:
		return "AWAITING_PEER"
	case StateDelivered:
		return "DELIVERED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "ABORTED"
	}
}

const (
	// TTL is the validity window of a stored canonical document.
	TTL = 24 * time.Hour

	pingInterval = 1 * time.Second
	pingTimeout  = 30 * time.Second

	expiresSuffix = "_expires"
)

// Manager owns one TransferRecord at a time and runs the handshake with the
// remote viewer. Messages from any origin other than the configured viewer
// origin are silently discarded; that origin check is the protocol's sole
// authorization.
type Manager struct {
	store        Store
	transport    Transport
	clock        clockwork.Clock
	viewerOrigin string
	metrics      *metrics.Metrics

	mu      sync.Mutex
	state   State
	key     string
	created time.Time
	expires time.Time
	surface Surface
}

// NewManager creates a transfer manager bound to one viewer origin. A nil
// clock falls back to the real clock.
func NewManager(store Store, transport Transport, viewerOrigin string, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		store:        store,
		transport:    transport,
		clock:        clock,
		viewerOrigin: strings.TrimRight(viewerOrigin, "/"),
		state:        StateIdle,
	}
}

// SetMetrics attaches handoff instrumentation. A nil receiver argument keeps
// the manager uninstrumented.
func (m *Manager) SetMetrics(mx *metrics.Metrics) {
	m.mu.Lock()
	m.metrics = mx
	m.mu.Unlock()
}

func (m *Manager) countRejection(reason string) {
	m.mu.Lock()
	mx := m.metrics
	m.mu.Unlock()
	if mx != nil {
		mx.HandoffRejections.WithLabelValues(reason).Inc()
	}
}

// State returns the protocol's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Key returns the capability key of the currently stored document.
func (m *Manager) Key() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}

// Store persists the document under a fresh unguessable capability key with
// the 24h TTL and its parallel <key>_expires epoch-millis record, then
// transitions to STORED. Keys are never reused across documents.
func (m *Manager) Store(ctx context.Context, doc *models.CanonicalDocument) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("no document to store")
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}

	now := m.clock.Now()
	key := generateKey(now)
	expires := now.Add(TTL)

	if err := m.store.Set(ctx, key, string(payload), TTL); err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}
	if err := m.store.Set(ctx, key+expiresSuffix, strconv.FormatInt(expires.UnixMilli(), 10), TTL); err != nil {
		return "", fmt.Errorf("failed to store expiry record: %w", err)
	}

	m.mu.Lock()
	displaced := m.surface
	m.key = key
	m.created = now
	m.expires = expires
	m.state = StateStored
	m.surface = nil
	m.mu.Unlock()

	// A store during an in-flight transfer supersedes it; the old surface
	// must not linger until the peer happens to disconnect.
	if displaced != nil {
		_ = displaced.Close()
	}

	log.Printf("✅ [HANDOFF] Document stored with key: %s", key)
	return key, nil
}

// Record returns the current transfer record's lifecycle fields.
func (m *Manager) Record() (models.TransferRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == "" {
		return models.TransferRecord{}, false
	}
	return models.TransferRecord{
		Key:       m.key,
		CreatedAt: m.created,
		ExpiresAt: m.expires,
	}, true
}

// ViewerURL returns the remote viewer URL embedding the capability key.
func (m *Manager) ViewerURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key == "" {
		return ""
	}
	return fmt.Sprintf("%s/view?key=%s", m.viewerOrigin, m.key)
}

// InitiateTransfer opens the remote viewer surface and transitions to
// AWAITING_PEER. An unopenable surface is a reportable failure, not a silent
// one.
func (m *Manager) InitiateTransfer(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.key == "" || (m.state != StateStored && m.state != StateAwaitingPeer) {
		m.mu.Unlock()
		return "", fmt.Errorf("no stored document available for transfer")
	}
	url := fmt.Sprintf("%s/view?key=%s", m.viewerOrigin, m.key)
	m.mu.Unlock()

	if m.transport == nil {
		m.mu.Lock()
		m.state = StateAborted
		m.mu.Unlock()
		return "", fmt.Errorf("no viewer transport configured")
	}

	surface, err := m.transport.Open(ctx, url)
	if err != nil {
		m.mu.Lock()
		m.state = StateAborted
		m.mu.Unlock()
		return "", fmt.Errorf("failed to open viewer surface: %w", err)
	}

	m.mu.Lock()
	m.surface = surface
	m.state = StateAwaitingPeer
	m.mu.Unlock()

	log.Printf("✅ [HANDOFF] Viewer surface opened: %s", url)
	return url, nil
}

// AwaitDelivery runs the polling handshake on a single cooperative loop:
// while the surface stays open it probes the peer every second for up to 30
// seconds, answering each matching request as it arrives. Duplicate requests
// are each answered: delivery is at-least-once and the viewer side handles
// idempotency. It returns whether at least one delivery happened.
func (m *Manager) AwaitDelivery(ctx context.Context) (bool, error) {
	m.mu.Lock()
	surface := m.surface
	state := m.state
	m.mu.Unlock()

	if surface == nil || state != StateAwaitingPeer {
		return false, fmt.Errorf("transfer not initiated")
	}

	deadline := m.clock.After(pingTimeout)
	ticker := m.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case <-deadline:
			return delivered, nil
		case <-ticker.Chan():
			if surface.Closed() {
				return delivered, nil
			}
			ping := models.TransferMessage{Type: models.MsgPing, Key: m.Key()}
			if err := surface.Post(ping, m.viewerOrigin); err != nil {
				// Peer not reachable yet; keep polling.
				continue
			}
		case env, ok := <-surface.Incoming():
			if !ok {
				return delivered, nil
			}
			if m.HandlePeerMessage(ctx, env) {
				delivered = true
			}
		}
	}
}

// HandlePeerMessage processes one inbound peer message. Wrong-origin
// messages are silently discarded; unknown types and key mismatches are
// logged and ignored as protocol-level no-ops; a matching ready/request
// message is answered once with the document payload and a timestamp, after
// which the state is DELIVERED. Returns whether a response was sent.
func (m *Manager) HandlePeerMessage(ctx context.Context, env Envelope) bool {
	if env.Origin != m.viewerOrigin {
		m.countRejection("origin")
		return false
	}

	msg := env.Message
	switch msg.Type {
	case models.MsgReady, models.MsgRequest:
	default:
		log.Printf("⚠️  [HANDOFF] Unknown message type: %s", msg.Type)
		m.countRejection("type")
		return false
	}

	m.mu.Lock()
	key := m.key
	surface := m.surface
	m.mu.Unlock()

	if surface == nil || key == "" {
		return false
	}
	if msg.Key != key {
		log.Printf("⚠️  [HANDOFF] Key mismatch: %s vs %s", msg.Key, key)
		m.countRejection("key")
		return false
	}

	payload, ok := m.loadPayload(ctx, key)
	if !ok {
		log.Printf("⚠️  [HANDOFF] No live document for key: %s", key)
		m.mu.Lock()
		m.state = StateExpired
		m.mu.Unlock()
		return false
	}

	resp := models.TransferMessage{
		Type:      models.MsgResponse,
		Key:       key,
		Data:      json.RawMessage(payload),
		Timestamp: m.clock.Now().UnixMilli(),
	}
	if err := surface.Post(resp, m.viewerOrigin); err != nil {
		log.Printf("❌ [HANDOFF] Failed to send document: %v", err)
		return false
	}

	m.mu.Lock()
	m.state = StateDelivered
	m.mu.Unlock()
	log.Printf("✅ [HANDOFF] Document delivered for key: %s", key)
	return true
}

// loadPayload reads the stored document, treating a passed expiry exactly
// like a missing key. Expiry is only ever checked here, on the read path;
// there is no proactive sweep.
func (m *Manager) loadPayload(ctx context.Context, key string) (string, bool) {
	expiresRaw, found, err := m.store.Get(ctx, key+expiresSuffix)
	if err != nil || !found {
		return "", false
	}
	expiresMillis, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return "", false
	}
	rec := models.TransferRecord{Key: key, ExpiresAt: time.UnixMilli(expiresMillis)}
	if rec.Expired(m.clock.Now()) {
		return "", false
	}

	payload, found, err := m.store.Get(ctx, key)
	if err != nil || !found {
		return "", false
	}
	return payload, true
}

// Cleanup removes the stored document and its expiry record and resets the
// protocol to IDLE.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	key := m.key
	surface := m.surface
	m.key = ""
	m.surface = nil
	m.state = StateIdle
	m.mu.Unlock()

	if surface != nil {
		_ = surface.Close()
	}
	if key == "" {
		return nil
	}
	if err := m.store.Delete(ctx, key, key+expiresSuffix); err != nil {
		return fmt.Errorf("failed to clean up transfer record: %w", err)
	}
	log.Printf("🧹 [HANDOFF] Cleaned up transfer record: %s", key)
	return nil
}

// generateKey builds the capability key from a timestamp and a random
// component, mirroring the persisted key layout.
func generateKey(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("eir_data_%d_%s", now.UnixMilli(), random)
}
