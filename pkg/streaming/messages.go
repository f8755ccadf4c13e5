package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/folio-labs/journey/pkg/core"
)

// Message type constants of the scroll session protocol.
const (
	// client -> server
	TypeScroll = "scroll"
	TypeResize = "resize"

	// server -> client
	TypeMilestones = "milestones"
	TypeFrame      = "frame"
	TypeError      = "error"
	TypeBye        = "bye"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload under typ.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// ScrollPayload is one scroll position report. Fraction is the raw progress
// of the tracked region; the viewport is given in track coordinates.
type ScrollPayload struct {
	Fraction       float64 `json:"fraction"`
	ViewportTop    float64 `json:"viewportTop"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// ResizePayload switches between the desktop and the narrow layout.
type ResizePayload struct {
	Mobile bool `json:"mobile"`
}

// MilestonesPayload describes the static track a session draws over. It is
// sent once on mount and again whenever the layout or content changes.
type MilestonesPayload struct {
	Session string      `json:"session"`
	Mobile  bool        `json:"mobile"`
	Path    string      `json:"path"`
	Width   float64     `json:"width"`
	Height  float64     `json:"height"`
	Cards   []core.Card `json:"cards"`
}

// ErrorPayload reports a rejected client message.
type ErrorPayload struct {
	For     string `json:"for"`
	Message string `json:"message"`
}

// ByePayload is the last message of a session.
type ByePayload struct {
	Reason string `json:"reason"`
}
