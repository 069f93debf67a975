package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// scheduleRequest is the body of POST /schedules.
type scheduleRequest struct {
	Type      string   `json:"type"`
	Zone      int      `json:"zone"`
	Days      []string `json:"days"`
	DayMask   uint8    `json:"day_mask"`
	StartTime string   `json:"start_time"`
	Duration  int      `json:"duration"`
	ExpiresAt int64    `json:"expires"`
}

func (req scheduleRequest) command() (irrigation.CmdAddSchedule, error) {
	kind := irrigation.KindBasic
	if req.Type != "" {
		if err := kind.UnmarshalText([]byte(req.Type)); err != nil {
			return irrigation.CmdAddSchedule{}, err
		}
	}
	mask := req.DayMask
	if len(req.Days) > 0 {
		var err error
		if mask, err = irrigation.DayMaskFromNames(req.Days); err != nil {
			return irrigation.CmdAddSchedule{}, err
		}
	}
	hour, minute, err := irrigation.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return irrigation.CmdAddSchedule{}, err
	}
	return irrigation.CmdAddSchedule{
		Kind:        kind,
		Zone:        req.Zone,
		DayMask:     mask,
		Hour:        hour,
		Minute:      minute,
		DurationMin: req.Duration,
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules := s.engine.Schedules()
	if kind := r.URL.Query().Get("type"); kind != "" {
		filtered := schedules[:0]
		for _, sc := range schedules {
			if sc.Kind.String() == kind {
				filtered = append(filtered, sc)
			}
		}
		schedules = filtered
	}
	if schedules == nil {
		schedules = []irrigation.Schedule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	sc, found := s.engine.Schedule(id)
	if !found {
		writeNotFound(w, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleNextSchedule(w http.ResponseWriter, _ *http.Request) {
	next, ok := s.engine.NextEvent()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	cmd, err := req.command()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.engine.Execute(cmd)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	sc, _ := s.engine.Schedule(res.ScheduleID)
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	if _, err := s.engine.Execute(irrigation.CmdRemoveSchedule{ID: id}); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := scheduleID(w, r)
	if !ok {
		return
	}
	var req schedulingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}
	if _, err := s.engine.Execute(irrigation.CmdEnableSchedule{ID: id, Enabled: *req.Enabled}); err != nil {
		s.writeDomainError(w, err)
		return
	}
	sc, _ := s.engine.Schedule(id)
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleClearAISchedules(w http.ResponseWriter, _ *http.Request) {
	s.execute(w, irrigation.CmdClearAISchedules{})
}

func scheduleID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		writeBadRequest(w, "schedule id must be a positive integer")
		return 0, false
	}
	return uint32(id), true
}
