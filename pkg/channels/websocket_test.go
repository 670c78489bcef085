package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/config"
)

func dialGateway(t *testing.T, dispatch bus.DispatchFunc) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	ch := NewWebSocketChannel(config.GatewayConfig{Host: "127.0.0.1"}, dispatch)
	ts := httptest.NewServer(ch.handler(context.Background()))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/relay"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		ts.Close()
		t.Fatalf("dial failed: %v", err)
	}
	return conn, ts
}

func TestWebSocketGateway_Healthz(t *testing.T) {
	ch := NewWebSocketChannel(config.GatewayConfig{}, func(ctx context.Context, payload json.RawMessage) bus.RelayResult {
		return bus.RelayResult{OK: true}
	})
	ts := httptest.NewServer(ch.handler(context.Background()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebSocketGateway_RoundTrip(t *testing.T) {
	dispatch := func(ctx context.Context, payload json.RawMessage) bus.RelayResult {
		return bus.RelayResult{OK: true, Data: json.RawMessage(`{"x":1}`)}
	}
	conn, ts := dialGateway(t, dispatch)
	defer ts.Close()
	defer conn.Close()

	req := bus.RelayRequest{Kind: bus.KindSendPrompt, Payload: json.RawMessage(`{"prompt":"hi"}`), CorrelationID: "ws-1"}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply bus.RelayResult
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if reply.CorrelationID != "ws-1" {
		t.Errorf("expected correlation ws-1, got %q", reply.CorrelationID)
	}
	if !reply.OK || string(reply.Data) != `{"x":1}` {
		t.Errorf("unexpected reply %+v", reply)
	}
}

// TestWebSocketGateway_IgnoresOtherKinds sends a foreign-kind frame followed
// by a prompt; the first (and only) reply must belong to the prompt.
func TestWebSocketGateway_IgnoresOtherKinds(t *testing.T) {
	dispatch := func(ctx context.Context, payload json.RawMessage) bus.RelayResult {
		return bus.RelayResult{OK: true}
	}
	conn, ts := dialGateway(t, dispatch)
	defer ts.Close()
	defer conn.Close()

	if err := conn.WriteJSON(bus.RelayRequest{Kind: "OPEN_SETTINGS", CorrelationID: "ignored"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.WriteJSON(bus.RelayRequest{Kind: bus.KindSendPrompt, CorrelationID: "ws-2"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply bus.RelayResult
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.CorrelationID != "ws-2" {
		t.Errorf("expected the prompt's reply, got correlation %q", reply.CorrelationID)
	}
}

// TestWebSocketGateway_ConcurrentPrompts verifies a slow prompt does not
// block a later fast one on the same connection.
func TestWebSocketGateway_ConcurrentPrompts(t *testing.T) {
	dispatch := func(ctx context.Context, payload json.RawMessage) bus.RelayResult {
		if strings.Contains(string(payload), "slow") {
			time.Sleep(300 * time.Millisecond)
			return bus.RelayResult{OK: true, Data: json.RawMessage(`{"who":"slow"}`)}
		}
		return bus.RelayResult{OK: true, Data: json.RawMessage(`{"who":"fast"}`)}
	}
	conn, ts := dialGateway(t, dispatch)
	defer ts.Close()
	defer conn.Close()

	slow := bus.RelayRequest{Kind: bus.KindSendPrompt, Payload: json.RawMessage(`{"mode":"slow"}`), CorrelationID: "slow"}
	fast := bus.RelayRequest{Kind: bus.KindSendPrompt, Payload: json.RawMessage(`{"mode":"fast"}`), CorrelationID: "fast"}

	if err := conn.WriteJSON(slow); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.WriteJSON(fast); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second bus.RelayResult
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if first.CorrelationID != "fast" {
		t.Errorf("expected the fast prompt to settle first, got %q", first.CorrelationID)
	}
	if second.CorrelationID != "slow" {
		t.Errorf("expected the slow prompt second, got %q", second.CorrelationID)
	}
}
