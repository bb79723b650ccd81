package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sensorflow/sensorflow-core/internal/broker"
	"github.com/sensorflow/sensorflow-core/internal/registry"
)

// deviceInfo is one entry in the device listing.
type deviceInfo struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint,omitempty"`
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// registerRequest is the body for POST /devices/register.
type registerRequest struct {
	Name           string `json:"name"`
	BrokerEndpoint string `json:"broker_endpoint"`
}

// unregisterRequest is the body for POST /devices/unregister.
type unregisterRequest struct {
	Name string `json:"name"`
}

// handleListDevices returns every connection with its registration and
// current state. The primary connection is listed first.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	states := s.registry.States()

	devices := make([]deviceInfo, 0, len(states))
	if state, ok := states[broker.PrimaryName]; ok {
		devices = append(devices, s.deviceInfo(broker.PrimaryName, state))
	}
	for _, name := range s.registry.Names() {
		state, ok := states[name]
		if !ok {
			continue
		}
		devices = append(devices, s.deviceInfo(name, state))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleRegisterDevice adds a dynamic broker registration.
//
// Responses: 201 on success, 409 when the name is taken, 400 for an
// invalid name or endpoint.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.BrokerEndpoint == "" {
		writeBadRequest(w, "name and broker_endpoint are required")
		return
	}

	err := s.hub.RegisterDevice(r.Context(), req.Name, req.BrokerEndpoint)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{
			"registered": true,
			"name":       req.Name,
		})
	case errors.Is(err, registry.ErrAlreadyRegistered):
		writeConflict(w, err.Error())
	case errors.Is(err, registry.ErrInvalidName), errors.Is(err, broker.ErrInvalidEndpoint):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("registering device", "name", req.Name, "error", err)
		writeInternalError(w, "registration failed")
	}
}

// handleUnregisterDevice removes a registration, closing its
// connection and purging its history namespace.
//
// Responses: 200 on success, 404 when the name is unknown.
func (s *Server) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	err := s.hub.UnregisterDevice(r.Context(), req.Name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"unregistered": true,
			"name":         req.Name,
		})
	case errors.Is(err, registry.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, registry.ErrPrimary):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("unregistering device", "name", req.Name, "error", err)
		writeInternalError(w, "unregistration failed")
	}
}

func (s *Server) deviceInfo(name string, state broker.State) deviceInfo {
	endpoint, err := s.registry.Endpoint(name)
	if err != nil {
		endpoint = ""
	}
	return deviceInfo{
		Name:      name,
		Endpoint:  endpoint,
		Status:    state.Status.String(),
		Connected: state.Live(),
		Message:   state.Reason,
	}
}
