package bus

import (
	"context"
	"encoding/json"
)

// KindSendPrompt is the only envelope kind the relay handles. Envelopes with
// any other kind are left for other listeners on the same channel.
const KindSendPrompt = "SEND_PROMPT"

// RelayRequest is the inbound envelope from an extension context. Payload is
// opaque to the relay and forwarded verbatim.
type RelayRequest struct {
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// RelayResult is the normalized outcome returned to the original caller.
// Exactly one of Data/Error is meaningful depending on OK.
type RelayResult struct {
	OK            bool            `json:"ok"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// DispatchFunc forwards one payload to the configured relay target and
// settles exactly once. It never returns an error: every failure path folds
// into the RelayResult itself.
type DispatchFunc func(ctx context.Context, payload json.RawMessage) RelayResult
