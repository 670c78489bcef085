package channels

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/logger"
	"github.com/SZoloth/promptrelay/pkg/utils"
)

// Channel is one inbound transport for relay envelopes.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BaseChannel carries the state and envelope handling shared by every
// transport.
type BaseChannel struct {
	name     string
	dispatch bus.DispatchFunc
	mu       sync.Mutex
	running  bool
}

func NewBaseChannel(name string, dispatch bus.DispatchFunc) *BaseChannel {
	return &BaseChannel{
		name:     name,
		dispatch: dispatch,
	}
}

func (b *BaseChannel) Name() string {
	return b.name
}

func (b *BaseChannel) setRunning(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = running
}

func (b *BaseChannel) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// handleEnvelope is the gateway contract in one place. A raw message that is
// not a SEND_PROMPT envelope is ignored entirely — nil return, no reply — so
// other listeners on the same channel may claim it. A matching envelope is
// committed to: it is dispatched and exactly one result comes back, tagged
// with the request's correlation ID (assigned here when the caller sent none).
func (b *BaseChannel) handleEnvelope(ctx context.Context, raw []byte) *bus.RelayResult {
	var req bus.RelayRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.DebugCF(b.name, "Ignoring non-envelope message", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if req.Kind != bus.KindSendPrompt {
		return nil
	}

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	logger.DebugCF(b.name, "Relaying prompt", map[string]interface{}{
		"correlation_id": req.CorrelationID,
		"preview":        utils.Truncate(string(req.Payload), 80),
	})

	result := b.dispatch(ctx, req.Payload)
	result.CorrelationID = req.CorrelationID
	return &result
}
