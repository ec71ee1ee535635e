package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/logging"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = logging.DefaultStatusCapacity
)

func (s *Server) handleJamStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.jammer.Status())
}

// handleToggleJam resolves the inventory and toggles one target. The toggle
// runs to completion even if the client goes away, so the pending mark is
// always cleared by the controller itself.
func (s *Server) handleToggleJam(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if net.ParseIP(ip) == nil {
		WriteError(w, http.StatusBadRequest, "invalid address", ip)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	devices, err := s.inventory.Devices(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch inventory", "error", err)
		WriteError(w, http.StatusBadGateway, "inventory unavailable", err.Error())
		return
	}

	s.jammer.ToggleJammer(ctx, ip, devices)
	WriteJSON(w, http.StatusAccepted, s.jammer.Status())
}

func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.monitor.State())
}

func (s *Server) handleToggleTraffic(w http.ResponseWriter, r *http.Request) {
	s.monitor.ToggleMonitoring(context.WithoutCancel(r.Context()))
	WriteJSON(w, http.StatusAccepted, events.TrafficStateData{Active: s.monitor.State().Active})
}

func (s *Server) handleClearTraffic(w http.ResponseWriter, r *http.Request) {
	s.monitor.ClearPackets()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.inventory.Devices(r.Context())
	if err != nil {
		s.logger.Error("Failed to fetch inventory", "error", err)
		WriteError(w, http.StatusBadGateway, "inventory unavailable", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, devices)
}

// handleLogs returns recent status lines in chronological order. An optional
// source parameter restricts them to one address.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries := []logging.AppLogEntry{}
	if s.logs != nil {
		if source := r.URL.Query().Get("source"); source != "" {
			entries = s.logs.GetBySource(source, limit)
		} else {
			entries = s.logs.GetLast(limit)
		}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsManager == nil {
		http.Error(w, "Websockets not enabled", http.StatusServiceUnavailable)
		return
	}
	s.wsManager.ServeHTTP(w, r)
}

// currentState supplies the initial message for a newly subscribed topic.
func (s *Server) currentState(topic string) (any, bool) {
	switch topic {
	case TopicJam:
		return s.jammer.Status(), true
	case TopicTraffic:
		return s.monitor.State(), true
	}
	return nil, false
}
