package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// wsEvent mirrors the relay event envelope for decoding in tests.
type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// dialWS starts the router on a test listener and opens a WebSocket.
func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads one event with a bounded wait.
func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event wsEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal event %q: %v", data, err)
	}
	return event
}

// readUntil reads events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wsEvent {
	t.Helper()

	for i := 0; i < 10; i++ {
		event := readEvent(t, conn)
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("no %q event within 10 messages", eventType)
	return wsEvent{}
}

func TestWebSocket_StatusSnapshotOnConnect(t *testing.T) {
	srv, _ := testServer(t)
	conn := dialWS(t, srv)

	event := readEvent(t, conn)
	if event.Type != "status" {
		t.Fatalf("first event type = %q, want status", event.Type)
	}

	var status struct {
		Connection string `json:"connection"`
	}
	if err := json.Unmarshal(event.Payload, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Connection != "primary" {
		t.Errorf("connection = %q, want primary", status.Connection)
	}
}

func TestWebSocket_ReplayBeforeLive(t *testing.T) {
	srv, _ := testServer(t)

	srv.hub.OnReading("sensorflow/test/rpi5/temperature", codec.Reading{
		Value: 21.5, Unit: "°C", Timestamp: "2026-08-28T10:00:00Z",
	})

	conn := dialWS(t, srv)
	event := readUntil(t, conn, "history")

	var replay struct {
		Topic    string          `json:"topic"`
		Readings []codec.Reading `json:"readings"`
	}
	if err := json.Unmarshal(event.Payload, &replay); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if replay.Topic != "sensorflow/test/rpi5/temperature" {
		t.Errorf("topic = %q, want sensorflow/test/rpi5/temperature", replay.Topic)
	}
	if len(replay.Readings) != 1 || replay.Readings[0].Value != 21.5 {
		t.Errorf("readings = %+v, want one reading of 21.5", replay.Readings)
	}
}

func TestWebSocket_LiveReading(t *testing.T) {
	srv, _ := testServer(t)
	conn := dialWS(t, srv)

	// Drain the connection snapshot first.
	readUntil(t, conn, "status")

	srv.hub.OnReading("sensorflow/test/rpi5/humidity", codec.Reading{
		Value: 55, Unit: "%", Timestamp: "2026-08-28T10:00:00Z",
	})

	event := readUntil(t, conn, "reading")
	var live struct {
		Topic   string        `json:"topic"`
		Payload codec.Reading `json:"payload"`
	}
	if err := json.Unmarshal(event.Payload, &live); err != nil {
		t.Fatalf("unmarshal reading: %v", err)
	}
	if live.Topic != "sensorflow/test/rpi5/humidity" || live.Payload.Value != 55 {
		t.Errorf("live = %+v, want humidity 55", live)
	}
}

func TestWebSocket_PingCommand(t *testing.T) {
	srv, _ := testServer(t)
	conn := dialWS(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := readUntil(t, conn, "result")
	var result struct {
		Command string `json:"command"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal(event.Payload, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Command != "ping" || !result.Success {
		t.Errorf("result = %+v, want successful ping", result)
	}
}

func TestWebSocket_UnknownCommand(t *testing.T) {
	srv, _ := testServer(t)
	conn := dialWS(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "reboot"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := readUntil(t, conn, "result")
	var result struct {
		Command string `json:"command"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(event.Payload, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Success {
		t.Error("unknown command reported success")
	}
	if result.Message == "" {
		t.Error("unknown command result has no message")
	}
}

func TestWebSocket_RegisterBrokerCommand(t *testing.T) {
	srv, _ := testServer(t)
	conn := dialWS(t, srv)

	cmd := `{"type": "register_broker", "name": "rpi9", "endpoint": "localhost:1884"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := readUntil(t, conn, "result")
	var result struct {
		Command string `json:"command"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(event.Payload, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.Success {
		t.Fatalf("register_broker failed: %s", result.Message)
	}

	if _, err := srv.registry.Endpoint("rpi9"); err != nil {
		t.Errorf("Endpoint(rpi9) error = %v, want registration present", err)
	}
}
