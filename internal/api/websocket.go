package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorflow/sensorflow-core/internal/registry"
	"github.com/sensorflow/sensorflow-core/internal/relay"
)

// Viewer command types accepted over the WebSocket.
const (
	cmdControl          = "control"
	cmdRegisterBroker   = "register_broker"
	cmdUnregisterBroker = "unregister_broker"
	cmdPing             = "ping"
)

// command is one viewer message. Control commands carry enabled or
// scale (or both); registration commands carry name and endpoint.
type command struct {
	Type     string   `json:"type"`
	Device   string   `json:"device,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Name     string   `json:"name,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
}

// upgrader configures the WebSocket upgrader. Origin checking is
// handled by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the connection and attaches a relay session.
// The session receives its status snapshot and history replay during
// Attach, before any live event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	session := s.hub.Attach()
	s.logger.Info("viewer connected", "session", session.ID(), "remote", r.RemoteAddr)

	go s.writePump(conn, session)
	go s.readPump(conn, session)
}

// readPump reads viewer commands until the connection drops, then
// detaches the session.
func (s *Server) readPump(conn *websocket.Conn, session *relay.Session) {
	defer func() {
		s.hub.Detach(session)
		conn.Close()
		s.logger.Info("viewer disconnected", "session", session.ID())
	}()

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	deadline := time.Duration(s.wsCfg.PingInterval+s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "session", session.ID(), "error", err)
			}
			return
		}
		// Any message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(deadline))
		s.handleCommand(session, message)
	}
}

// writePump drains the session's event channel into the connection,
// interleaving protocol pings. A closed channel (hub detach) or write
// failure ends the pump.
func (s *Server) writePump(conn *websocket.Conn, session *relay.Session) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	writeWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	for {
		select {
		case event, ok := <-session.Events():
			if !ok {
				//nolint:errcheck // Best-effort close message
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand dispatches one viewer command and delivers the result
// to the issuing session only.
func (s *Server) handleCommand(session *relay.Session, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		session.Deliver(relay.NewEvent(relay.EventResult, relay.ResultPayload{
			Command: "unknown",
			Success: false,
			Message: "invalid JSON command",
		}))
		return
	}

	switch cmd.Type {
	case cmdControl:
		s.handleControlCommand(session, cmd)
	case cmdRegisterBroker:
		s.deliverResult(session, cmd.Type,
			s.hub.RegisterDevice(context.Background(), cmd.Name, cmd.Endpoint))
	case cmdUnregisterBroker:
		s.deliverResult(session, cmd.Type,
			s.hub.UnregisterDevice(context.Background(), cmd.Name))
	case cmdPing:
		session.Deliver(relay.NewEvent(relay.EventResult, relay.ResultPayload{
			Command: cmdPing,
			Success: true,
		}))
	default:
		session.Deliver(relay.NewEvent(relay.EventResult, relay.ResultPayload{
			Command: cmd.Type,
			Success: false,
			Message: "unknown command type",
		}))
	}
}

// handleControlCommand forwards enable/scale changes to the device's
// control topic.
func (s *Server) handleControlCommand(session *relay.Session, cmd command) {
	if cmd.Device == "" {
		s.deliverResult(session, cmdControl, errors.New("device is required"))
		return
	}
	if cmd.Enabled == nil && cmd.Scale == nil {
		s.deliverResult(session, cmdControl, errors.New("enabled or scale is required"))
		return
	}

	if cmd.Enabled != nil {
		if err := s.hub.SetDeviceEnabled(cmd.Device, *cmd.Enabled); err != nil {
			s.deliverResult(session, cmdControl, err)
			return
		}
	}
	if cmd.Scale != nil {
		if err := s.hub.SetDeviceScale(cmd.Device, *cmd.Scale); err != nil {
			s.deliverResult(session, cmdControl, err)
			return
		}
	}
	s.deliverResult(session, cmdControl, nil)
}

// deliverResult maps an error to a result event for the issuing
// session. Registration errors surface their sentinel text.
func (s *Server) deliverResult(session *relay.Session, cmd string, err error) {
	result := relay.ResultPayload{Command: cmd, Success: err == nil}
	if err != nil {
		result.Message = err.Error()
		if !errors.Is(err, registry.ErrAlreadyRegistered) && !errors.Is(err, registry.ErrNotFound) {
			s.logger.Warn("viewer command failed", "command", cmd, "session", session.ID(), "error", err)
		}
	}
	session.Deliver(relay.NewEvent(relay.EventResult, result))
}
