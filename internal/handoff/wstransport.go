package handoff

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"eirbridge/internal/models"
)

// WebSocketTransport bridges the handshake to viewers connecting over a
// websocket endpoint. Open registers a surface for the capability key in the
// viewer URL; when a viewer later connects with that key, the connection is
// attached to the surface and its Origin header becomes the envelope origin
// for every message it sends.
type WebSocketTransport struct {
	mu       sync.Mutex
	surfaces map[string]*wsSurface
}

// NewWebSocketTransport creates an empty websocket transport.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{surfaces: make(map[string]*wsSurface)}
}

// Open registers a pending surface for the key embedded in the viewer URL.
func (t *WebSocketTransport) Open(_ context.Context, viewerURL string) (Surface, error) {
	parsed, err := url.Parse(viewerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid viewer URL: %w", err)
	}
	key := parsed.Query().Get("key")
	if key == "" {
		return nil, fmt.Errorf("viewer URL missing capability key")
	}

	s := newWSSurface()
	t.mu.Lock()
	t.surfaces[key] = s
	t.mu.Unlock()
	return s, nil
}

// Handler returns the Fiber websocket handler the viewer connects to. The
// connection is matched to its surface by the key query parameter; unknown
// keys are dropped immediately.
func (t *WebSocketTransport) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		key := c.Query("key")
		origin := c.Headers("Origin")

		t.mu.Lock()
		s := t.surfaces[key]
		t.mu.Unlock()
		if s == nil {
			log.Printf("⚠️  [HANDOFF] Viewer connected with unknown key, dropping")
			_ = c.Close()
			return
		}

		s.attach(origin, c)
		defer s.detach()

		for {
			var msg models.TransferMessage
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			s.deliver(Envelope{Origin: origin, Message: msg})
		}
	})
}

type wsSurface struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	origin   string
	closed   bool
	incoming chan Envelope
	once     sync.Once
}

func newWSSurface() *wsSurface {
	return &wsSurface{incoming: make(chan Envelope, 16)}
}

func (s *wsSurface) attach(origin string, conn *websocket.Conn) {
	s.mu.Lock()
	s.origin = origin
	s.conn = conn
	s.mu.Unlock()
}

// detach marks the surface closed when the viewer disconnects.
func (s *wsSurface) detach() {
	s.mu.Lock()
	s.conn = nil
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.incoming) })
}

func (s *wsSurface) deliver(env Envelope) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.incoming <- env:
	default:
		// Slow consumer; protocol tolerates dropped probes and replays.
	}
}

// Post sends a message to the attached peer iff its origin matches
// targetOrigin; a mismatched origin drops the message without error, the
// same way a targeted postMessage would.
func (s *wsSurface) Post(msg models.TransferMessage, targetOrigin string) error {
	s.mu.Lock()
	conn := s.conn
	origin := s.origin
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("viewer not connected")
	}
	if origin != targetOrigin {
		return nil
	}
	return conn.WriteJSON(msg)
}

func (s *wsSurface) Incoming() <-chan Envelope {
	return s.incoming
}

func (s *wsSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSurface) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.incoming) })
	if conn != nil {
		return conn.Close()
	}
	return nil
}
