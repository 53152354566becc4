package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"eirbridge/internal/models"
)

const testViewerOrigin = "https://viewer.example"

// fakeSurface records outbound posts and feeds inbound envelopes from a
// channel the test controls.
type fakeSurface struct {
	mu       sync.Mutex
	posts    []models.TransferMessage
	postErr  error
	closed   bool
	incoming chan Envelope
	once     sync.Once
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{incoming: make(chan Envelope, 16)}
}

func (s *fakeSurface) Post(msg models.TransferMessage, targetOrigin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return s.postErr
	}
	s.posts = append(s.posts, msg)
	return nil
}

func (s *fakeSurface) Incoming() <-chan Envelope { return s.incoming }

func (s *fakeSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.incoming) })
	return nil
}

func (s *fakeSurface) sent() []models.TransferMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TransferMessage, len(s.posts))
	copy(out, s.posts)
	return out
}

type fakeTransport struct {
	surface *fakeSurface
	openErr error
	opened  string
}

func (t *fakeTransport) Open(ctx context.Context, url string) (Surface, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	t.opened = url
	return t.surface, nil
}

func sampleDoc() *models.CanonicalDocument {
	return &models.CanonicalDocument{
		Metadata: models.DocumentMetadata{
			FormatVersion: models.FormatVersion,
			Source:        "1177.se",
			Patient:       models.Patient{Name: "Anna Svensson"},
		},
		Entries: []models.CanonicalRecord{{ID: "entry_001"}},
	}
}

// readyManager stores a document and opens the fake viewer surface.
func readyManager(t *testing.T, clock clockwork.Clock) (*Manager, *fakeSurface, string) {
	t.Helper()

	surface := newFakeSurface()
	transport := &fakeTransport{surface: surface}
	m := NewManager(NewMemoryStore(), transport, testViewerOrigin, clock)

	key, err := m.Store(context.Background(), sampleDoc())
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if _, err := m.InitiateTransfer(context.Background()); err != nil {
		t.Fatalf("InitiateTransfer returned error: %v", err)
	}
	return m, surface, key
}

// TestStorePersistsDocumentWithExpiry verifies the key layout, the parallel
// expiry record, and the STORED transition.
func TestStorePersistsDocumentWithExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore()
	m := NewManager(store, nil, testViewerOrigin, clock)

	key, err := m.Store(context.Background(), sampleDoc())
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if !strings.HasPrefix(key, "eir_data_") {
		t.Errorf("Unexpected key layout: %q", key)
	}
	if m.State() != StateStored {
		t.Errorf("Expected STORED, got %s", m.State())
	}

	if _, found, _ := store.Get(context.Background(), key); !found {
		t.Error("Expected document record in store")
	}
	raw, found, _ := store.Get(context.Background(), key+"_expires")
	if !found {
		t.Fatal("Expected expiry record in store")
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.Fatalf("Expiry record is not epoch millis: %q", raw)
	}
	want := clock.Now().Add(TTL).UnixMilli()
	if millis != want {
		t.Errorf("Expected expiry %d, got %d", want, millis)
	}
}

// TestStoreKeysNeverReused verifies each stored document gets a fresh key.
func TestStoreKeysNeverReused(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, testViewerOrigin, nil)

	k1, err := m.Store(context.Background(), sampleDoc())
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	k2, err := m.Store(context.Background(), sampleDoc())
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if k1 == k2 {
		t.Error("Expected distinct keys across stores")
	}
}

// TestStoreSupersedesInFlightTransfer verifies storing a new document while
// a transfer is awaiting its peer closes the displaced surface instead of
// leaking it.
func TestStoreSupersedesInFlightTransfer(t *testing.T) {
	m, surface, _ := readyManager(t, nil)

	if _, err := m.Store(context.Background(), sampleDoc()); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if !surface.Closed() {
		t.Error("Expected the displaced surface to be closed")
	}
	if m.State() != StateStored {
		t.Errorf("Expected STORED, got %s", m.State())
	}
}

// TestRecordLifecycleFields verifies Record exposes the stored key and its
// validity window, and that the window matches the TTL.
func TestRecordLifecycleFields(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	m := NewManager(NewMemoryStore(), nil, testViewerOrigin, clock)

	if _, ok := m.Record(); ok {
		t.Fatal("Expected no record before a store")
	}

	key, err := m.Store(context.Background(), sampleDoc())
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	rec, ok := m.Record()
	if !ok {
		t.Fatal("Expected a record after the store")
	}
	if rec.Key != key {
		t.Errorf("Expected key %q, got %q", key, rec.Key)
	}
	if !rec.CreatedAt.Equal(clock.Now()) {
		t.Errorf("Expected created at %v, got %v", clock.Now(), rec.CreatedAt)
	}
	if !rec.ExpiresAt.Equal(clock.Now().Add(TTL)) {
		t.Errorf("Expected expiry at %v, got %v", clock.Now().Add(TTL), rec.ExpiresAt)
	}
	if rec.Expired(clock.Now()) {
		t.Error("Expected record live inside its window")
	}
	if !rec.Expired(clock.Now().Add(TTL + time.Second)) {
		t.Error("Expected record expired past its window")
	}
}

// TestStoreNilDocument verifies a nil document is rejected.
func TestStoreNilDocument(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, testViewerOrigin, nil)
	if _, err := m.Store(context.Background(), nil); err == nil {
		t.Fatal("Expected error for nil document")
	}
}

// TestViewerURL verifies the viewer URL embeds the origin and the key.
func TestViewerURL(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, testViewerOrigin+"/", nil)

	if m.ViewerURL() != "" {
		t.Error("Expected empty viewer URL before a store")
	}
	key, _ := m.Store(context.Background(), sampleDoc())
	want := testViewerOrigin + "/view?key=" + key
	if got := m.ViewerURL(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

// TestInitiateTransferRequiresStoredDocument verifies initiation fails
// before a document has been stored.
func TestInitiateTransferRequiresStoredDocument(t *testing.T) {
	m := NewManager(NewMemoryStore(), &fakeTransport{surface: newFakeSurface()}, testViewerOrigin, nil)
	if _, err := m.InitiateTransfer(context.Background()); err == nil {
		t.Fatal("Expected error without a stored document")
	}
}

// TestInitiateTransferOpenFailure verifies an unopenable surface aborts the
// transfer instead of failing silently.
func TestInitiateTransferOpenFailure(t *testing.T) {
	transport := &fakeTransport{openErr: errors.New("window blocked")}
	m := NewManager(NewMemoryStore(), transport, testViewerOrigin, nil)
	m.Store(context.Background(), sampleDoc())

	if _, err := m.InitiateTransfer(context.Background()); err == nil {
		t.Fatal("Expected error when the surface cannot open")
	}
	if m.State() != StateAborted {
		t.Errorf("Expected ABORTED, got %s", m.State())
	}
}

// TestHandlePeerMessageDelivers runs the happy-path handshake: a matching
// request from the viewer origin is answered with the document payload and
// the state moves to DELIVERED.
func TestHandlePeerMessageDelivers(t *testing.T) {
	m, surface, key := readyManager(t, clockwork.NewFakeClockAt(time.Unix(1700000000, 0)))

	responded := m.HandlePeerMessage(context.Background(), Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: models.MsgRequest, Key: key},
	})
	if !responded {
		t.Fatal("Expected a response to a matching request")
	}
	if m.State() != StateDelivered {
		t.Errorf("Expected DELIVERED, got %s", m.State())
	}

	posts := surface.sent()
	if len(posts) != 1 {
		t.Fatalf("Expected 1 posted message, got %d", len(posts))
	}
	resp := posts[0]
	if resp.Type != models.MsgResponse {
		t.Errorf("Expected %s, got %s", models.MsgResponse, resp.Type)
	}
	if resp.Key != key {
		t.Errorf("Expected echoed key %q, got %q", key, resp.Key)
	}
	if resp.Timestamp == 0 {
		t.Error("Expected a timestamp on the response")
	}

	var doc models.CanonicalDocument
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		t.Fatalf("Response payload is not a document: %v", err)
	}
	if doc.Metadata.Patient.Name != "Anna Svensson" {
		t.Errorf("Unexpected payload patient: %q", doc.Metadata.Patient.Name)
	}
}

// TestHandlePeerMessageReadyAlsoDelivers verifies the ready announcement is
// treated like a request.
func TestHandlePeerMessageReadyAlsoDelivers(t *testing.T) {
	m, surface, key := readyManager(t, nil)

	if !m.HandlePeerMessage(context.Background(), Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: models.MsgReady, Key: key},
	}) {
		t.Fatal("Expected a response to the ready message")
	}
	if len(surface.sent()) != 1 {
		t.Errorf("Expected 1 posted message, got %d", len(surface.sent()))
	}
}

// TestHandlePeerMessageWrongOrigin verifies messages from any other origin
// are silently discarded, no matter how well-formed.
func TestHandlePeerMessageWrongOrigin(t *testing.T) {
	m, surface, key := readyManager(t, nil)

	responded := m.HandlePeerMessage(context.Background(), Envelope{
		Origin:  "https://attacker.example",
		Message: models.TransferMessage{Type: models.MsgRequest, Key: key},
	})
	if responded {
		t.Fatal("Expected wrong-origin message to be discarded")
	}
	if len(surface.sent()) != 0 {
		t.Errorf("Expected no posts for wrong-origin message, got %d", len(surface.sent()))
	}
	if m.State() != StateAwaitingPeer {
		t.Errorf("Expected state unchanged, got %s", m.State())
	}
}

// TestHandlePeerMessageKeyMismatch verifies a mismatched key is ignored as a
// protocol-level no-op.
func TestHandlePeerMessageKeyMismatch(t *testing.T) {
	m, surface, _ := readyManager(t, nil)

	responded := m.HandlePeerMessage(context.Background(), Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: models.MsgRequest, Key: "eir_data_0_wrong"},
	})
	if responded {
		t.Fatal("Expected key mismatch to be ignored")
	}
	if len(surface.sent()) != 0 {
		t.Errorf("Expected no posts on key mismatch, got %d", len(surface.sent()))
	}
	if m.State() != StateAwaitingPeer {
		t.Errorf("Expected state unchanged, got %s", m.State())
	}
}

// TestHandlePeerMessageUnknownType verifies unknown message types are
// ignored.
func TestHandlePeerMessageUnknownType(t *testing.T) {
	m, surface, key := readyManager(t, nil)

	responded := m.HandlePeerMessage(context.Background(), Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: "SOMETHING_ELSE", Key: key},
	})
	if responded {
		t.Fatal("Expected unknown type to be ignored")
	}
	if len(surface.sent()) != 0 {
		t.Errorf("Expected no posts for unknown type, got %d", len(surface.sent()))
	}
}

// TestHandlePeerMessageDuplicatesEachAnswered verifies delivery is
// at-least-once: repeated requests each get a response.
func TestHandlePeerMessageDuplicatesEachAnswered(t *testing.T) {
	m, surface, key := readyManager(t, nil)

	env := Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: models.MsgRequest, Key: key},
	}
	if !m.HandlePeerMessage(context.Background(), env) {
		t.Fatal("Expected first request answered")
	}
	if !m.HandlePeerMessage(context.Background(), env) {
		t.Fatal("Expected duplicate request answered")
	}
	if len(surface.sent()) != 2 {
		t.Errorf("Expected 2 posted responses, got %d", len(surface.sent()))
	}
}

// TestHandlePeerMessageExpired verifies the lazy expiry check: once the TTL
// window has passed, a matching request reads the record as absent and the
// state moves to EXPIRED.
func TestHandlePeerMessageExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m, surface, key := readyManager(t, clock)

	clock.Advance(TTL + time.Minute)

	responded := m.HandlePeerMessage(context.Background(), Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: models.MsgRequest, Key: key},
	})
	if responded {
		t.Fatal("Expected no response for an expired record")
	}
	if m.State() != StateExpired {
		t.Errorf("Expected EXPIRED, got %s", m.State())
	}
	if len(surface.sent()) != 0 {
		t.Errorf("Expected no posts, got %d", len(surface.sent()))
	}
}

// TestAwaitDeliveryAnswersIncoming runs the delivery loop against a
// preloaded request followed by the surface closing.
func TestAwaitDeliveryAnswersIncoming(t *testing.T) {
	m, surface, key := readyManager(t, nil)

	surface.incoming <- Envelope{
		Origin:  testViewerOrigin,
		Message: models.TransferMessage{Type: models.MsgRequest, Key: key},
	}
	surface.once.Do(func() { close(surface.incoming) })

	delivered, err := m.AwaitDelivery(context.Background())
	if err != nil {
		t.Fatalf("AwaitDelivery returned error: %v", err)
	}
	if !delivered {
		t.Fatal("Expected delivery")
	}
	if m.State() != StateDelivered {
		t.Errorf("Expected DELIVERED, got %s", m.State())
	}
}

// TestAwaitDeliveryNotInitiated verifies the loop refuses to run without an
// open surface.
func TestAwaitDeliveryNotInitiated(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, testViewerOrigin, nil)
	if _, err := m.AwaitDelivery(context.Background()); err == nil {
		t.Fatal("Expected error before InitiateTransfer")
	}
}

// TestAwaitDeliveryContextCancel verifies cancellation ends the loop with
// the context error and no delivery.
func TestAwaitDeliveryContextCancel(t *testing.T) {
	m, _, _ := readyManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	delivered, err := m.AwaitDelivery(ctx)
	if delivered {
		t.Error("Expected no delivery")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got: %v", err)
	}
}

// TestCleanup verifies both records are removed, the surface is closed, and
// the protocol resets to IDLE.
func TestCleanup(t *testing.T) {
	surface := newFakeSurface()
	transport := &fakeTransport{surface: surface}
	store := NewMemoryStore()
	m := NewManager(store, transport, testViewerOrigin, nil)

	key, _ := m.Store(context.Background(), sampleDoc())
	m.InitiateTransfer(context.Background())

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("Expected IDLE, got %s", m.State())
	}
	if !surface.Closed() {
		t.Error("Expected surface closed")
	}
	if _, found, _ := store.Get(context.Background(), key); found {
		t.Error("Expected document record removed")
	}
	if _, found, _ := store.Get(context.Background(), key+"_expires"); found {
		t.Error("Expected expiry record removed")
	}
}
