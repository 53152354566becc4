package models

import (
	"encoding/json"
	"time"
)

// Handshake message types exchanged with the remote viewer. PING is the
// outbound liveness probe; READY and REQUEST are the recognized inbound
// request types; RESPONSE is the single response type.
const (
	MsgPing     = "EIR_PLUGIN_PING"
	MsgReady    = "EIR_SPACE_READY"
	MsgRequest  = "REQUEST_EIR_DATA"
	MsgResponse = "EIR_DATA_RESPONSE"
)

// TransferMessage is the wire envelope for the viewer handshake. Requests
// carry type and key only; the response adds the document payload and a
// delivery timestamp (epoch millis).
type TransferMessage struct {
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// TransferRecord is the handoff protocol's unit of state: one stored
// canonical document under a capability key, held until cleanup or TTL
// expiry. Keys are never reused across documents.
type TransferRecord struct {
	Key       string             `json:"key"`
	Document  *CanonicalDocument `json:"document,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Expired reports whether the record's validity window has passed at the
// given instant. Expired records are treated as absent by every read path.
func (r *TransferRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
