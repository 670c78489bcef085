package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/config"
	"github.com/SZoloth/promptrelay/pkg/logger"
)

// maxResultBodyBytes caps how much of the target's response is read.
const maxResultBodyBytes = 8 << 20

// Dispatcher forwards one payload per call to the currently configured relay
// target. Every call settles exactly once with a RelayResult; transport
// failures, non-2xx statuses and deadline expiry all fold into the same shape.
type Dispatcher struct {
	source       *Source
	timeout      time.Duration
	secretHeader string
	client       *http.Client
}

func NewDispatcher(source *Source, cfg config.RelayConfig) *Dispatcher {
	timeout := time.Duration(cfg.DispatchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	secretHeader := cfg.SecretHeader
	if secretHeader == "" {
		secretHeader = "x-bridge-secret"
	}

	return &Dispatcher{
		source:       source,
		timeout:      timeout,
		secretHeader: secretHeader,
		client:       &http.Client{},
	}
}

// Dispatch POSTs payload to the target captured from the current snapshot.
// The snapshot is read once at entry: a config refresh completing mid-flight
// does not affect this call. The whole operation runs under a hard deadline;
// when it elapses the underlying request is cancelled and a timeout-class
// result is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, payload json.RawMessage) bus.RelayResult {
	snapshot := d.source.Get()
	if snapshot.TargetURL == "" {
		return bus.RelayResult{OK: false, Error: "no relay target configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, snapshot.TargetURL, bytes.NewReader(payload))
	if err != nil {
		return bus.RelayResult{OK: false, Error: fmt.Sprintf("failed to build relay request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if snapshot.Secret != "" {
		req.Header.Set(d.secretHeader, snapshot.Secret)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.WarnCF("relay", "Dispatch timed out", map[string]interface{}{
				"target_url": snapshot.TargetURL,
				"timeout":    d.timeout.String(),
			})
			return bus.RelayResult{OK: false, Error: fmt.Sprintf("relay timed out after %s", d.timeout)}
		}
		return bus.RelayResult{OK: false, Error: fmt.Sprintf("relay request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return bus.RelayResult{OK: false, Error: fmt.Sprintf("relay timed out after %s", d.timeout)}
		}
		return bus.RelayResult{OK: false, Error: fmt.Sprintf("failed to read relay response: %v", err)}
	}

	result := bus.RelayResult{
		OK:   resp.StatusCode >= 200 && resp.StatusCode < 300,
		Data: parseLooseJSON(body),
	}
	if !result.OK {
		result.Error = fmt.Sprintf("relay target returned %s", resp.Status)
	}

	logger.DebugCF("relay", "Dispatch settled", map[string]interface{}{
		"target_url": snapshot.TargetURL,
		"status":     resp.StatusCode,
		"ok":         result.OK,
		"elapsed":    time.Since(start).String(),
	})
	return result
}

// parseLooseJSON decodes an untrusted response body best-effort. A body that
// is not valid JSON yields nil rather than an error: the relay delivers the
// raw service outcome, it does not enforce the service's payload schema.
func parseLooseJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil
	}
	return json.RawMessage(trimmed)
}
