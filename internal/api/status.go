package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// healthTimeout bounds each dependency probe.
const healthTimeout = 2 * time.Second

// handleHealth reports "ok", or "degraded" with the failing components.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	status := "ok"
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SystemMetrics is the body of GET /metrics.
type SystemMetrics struct {
	Timestamp        string                    `json:"timestamp"`
	Version          string                    `json:"version"`
	UptimeSeconds    int64                     `json:"uptime_seconds"`
	Runtime          RuntimeMetrics            `json:"runtime"`
	WebSocketClients int                       `json:"websocket_clients"`
	ActiveZones      int                       `json:"active_zones"`
	Schedules        irrigation.ScheduleCounts `json:"schedules"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := s.engine.Status()
	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		WebSocketClients: s.hub.ClientCount(),
		ActiveZones:      len(st.ActiveZones),
		Schedules:        st.Counts,
	})
}

// SettingsResponse is the body of GET /settings.
type SettingsResponse struct {
	ZoneCount         int     `json:"zone_count"`
	MaxEnabledZones   int     `json:"max_enabled_zones"`
	MaxZoneRunTime    int     `json:"max_zone_run_time"`
	PumpSafety        bool    `json:"pump_safety"`
	TimezoneHours     float64 `json:"timezone"`
	DaylightSaving    bool    `json:"daylight_saving"`
	SchedulingEnabled bool    `json:"scheduling"`
}

func (s *Server) settings() SettingsResponse {
	cfg := s.engine.Configuration()
	return SettingsResponse{
		ZoneCount:         s.engine.ZoneCount(),
		MaxEnabledZones:   cfg.MaxEnabledZones(),
		MaxZoneRunTime:    cfg.MaxRunMinutes(),
		PumpSafety:        cfg.PumpSafety(),
		TimezoneHours:     float64(cfg.TimezoneOffsetHalfHours()) / 2,
		DaylightSaving:    cfg.DaylightSavingActive(),
		SchedulingEnabled: cfg.SchedulingEnabled(),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings())
}

type settingsPatch struct {
	MaxEnabledZones   *int     `json:"max_enabled_zones"`
	MaxZoneRunTime    *int     `json:"max_zone_run_time"`
	PumpSafety        *bool    `json:"pump_safety"`
	TimezoneHours     *float64 `json:"timezone"`
	DaylightSaving    *bool    `json:"daylight_saving"`
	SchedulingEnabled *bool    `json:"scheduling"`
}

// handleUpdateSettings applies the fields present in the body atomically.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPatch
	if err := decodeJSON(r, &p); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	u := irrigation.SettingsUpdate{
		MaxEnabledZones:   p.MaxEnabledZones,
		MaxRunMinutes:     p.MaxZoneRunTime,
		PumpSafety:        p.PumpSafety,
		DaylightSaving:    p.DaylightSaving,
		SchedulingEnabled: p.SchedulingEnabled,
	}
	if p.TimezoneHours != nil {
		half := int(*p.TimezoneHours * 2)
		if float64(half) != *p.TimezoneHours*2 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidSetting, "timezone must be a multiple of 0.5 hours")
			return
		}
		u.TimezoneOffsetHalfHours = &half
	}

	if _, err := s.engine.Execute(irrigation.CmdUpdateSettings{Update: u}); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings())
}

type schedulingRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetScheduling(w http.ResponseWriter, r *http.Request) {
	var req schedulingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}
	s.execute(w, irrigation.CmdSetSchedulingEnabled{Enabled: *req.Enabled})
}

// decodeJSON decodes the body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// execute runs cmd and writes its Result.
func (s *Server) execute(w http.ResponseWriter, cmd irrigation.Command) {
	res, err := s.engine.Execute(cmd)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
