// Package bridge carries wallet capability requests from the UI context to
// the page context and replies back, across hops that share no memory.
//
// Three hops mirror the extension realms: a Sender (UI side) locates a tab
// and hands the request to that tab's Relay; the Relay injects the page
// executor once per page load and posts the request onto the page's message
// bus; the executor posts its reply back onto the same bus for the Relay to
// resolve. Correlation ids pair each request with exactly one reply.
package bridge

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope targets. The wire message is identical at every hop; only the
// target tag flips between request and reply.
const (
	TargetPage  = "PAGE"
	TargetRelay = "RELAY"
)

// Envelope is the inter-context wire message. Exactly one of Result/Error
// is set on a reply.
type Envelope struct {
	Target        string          `json:"target"`
	CorrelationID string          `json:"correlationId"`
	Op            string          `json:"op,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ErrorCode     int             `json:"errorCode,omitempty"`
}

// NewCorrelationID returns an id unique for the process lifetime. Replies
// carrying an unknown id are dropped, so collision must be practically
// impossible.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Reply builds the reply envelope for a request, preserving its
// correlation id.
func (e Envelope) Reply(result json.RawMessage, err string, code int) Envelope {
	return Envelope{
		Target:        TargetRelay,
		CorrelationID: e.CorrelationID,
		Result:        result,
		Error:         err,
		ErrorCode:     code,
	}
}
