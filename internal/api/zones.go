package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

type startRequest struct {
	Minutes int `json:"minutes"`
}

type rainDelayRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleActiveZones(w http.ResponseWriter, _ *http.Request) {
	active := s.engine.ActiveZones()
	if active == nil {
		active = []irrigation.ActiveRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_zones": active,
		"count":        len(active),
	})
}

// handleStartZone starts a manual run, or extends one already running.
// A rejected start answers with the StartResult explaining why.
func (s *Server) handleStartZone(w http.ResponseWriter, r *http.Request) {
	zone, ok := zoneParam(w, r)
	if !ok {
		return
	}
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.engine.Execute(irrigation.CmdStartZone{Zone: zone, Minutes: req.Minutes})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStopZone(w http.ResponseWriter, r *http.Request) {
	zone, ok := zoneParam(w, r)
	if !ok {
		return
	}
	s.execute(w, irrigation.CmdStopZone{Zone: zone})
}

func (s *Server) handleRainCancel(w http.ResponseWriter, r *http.Request) {
	zone, ok := zoneParam(w, r)
	if !ok {
		return
	}
	s.execute(w, irrigation.CmdCancelZoneForRain{Zone: zone})
}

func (s *Server) handleSetRainDelay(w http.ResponseWriter, r *http.Request) {
	var req rainDelayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.execute(w, irrigation.CmdSetRainDelay{Minutes: req.Minutes})
}

func (s *Server) handleClearRainDelay(w http.ResponseWriter, _ *http.Request) {
	s.execute(w, irrigation.CmdClearRainDelay{})
}

func zoneParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	zone, err := strconv.Atoi(chi.URLParam(r, "zone"))
	if err != nil {
		writeBadRequest(w, "zone must be an integer")
		return 0, false
	}
	return zone, true
}
