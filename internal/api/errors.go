package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/irrigation-core/internal/eventlog"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeZoneDisabled    = "zone_disabled"
	ErrCodeInvalidZone     = "invalid_zone"
	ErrCodeInvalidDuration = "invalid_duration"
	ErrCodeInvalidSchedule = "invalid_schedule"
	ErrCodeTableFull       = "table_full"
	ErrCodeZoneNotActive   = "zone_not_active"
	ErrCodeClockInvalid    = "clock_unavailable"
	ErrCodeInvalidSetting  = "invalid_setting"
	ErrCodeJobRunning      = "job_running"
	ErrCodeJobFailed       = "job_failed"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// errorMapping pairs a sentinel with its response.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{irrigation.ErrZoneDisabled, http.StatusConflict, ErrCodeZoneDisabled},
	{irrigation.ErrInvalidZone, http.StatusBadRequest, ErrCodeInvalidZone},
	{irrigation.ErrInvalidDuration, http.StatusBadRequest, ErrCodeInvalidDuration},
	{irrigation.ErrConflictUnresolved, http.StatusConflict, ErrCodeConflict},
	{irrigation.ErrInvalidSchedule, http.StatusBadRequest, ErrCodeInvalidSchedule},
	{irrigation.ErrTableFull, http.StatusConflict, ErrCodeTableFull},
	{irrigation.ErrScheduleNotFound, http.StatusNotFound, ErrCodeNotFound},
	{irrigation.ErrZoneNotActive, http.StatusConflict, ErrCodeZoneNotActive},
	{irrigation.ErrClockUnavailable, http.StatusServiceUnavailable, ErrCodeClockInvalid},
	{irrigation.ErrInvalidRainDelay, http.StatusBadRequest, ErrCodeBadRequest},
	{irrigation.ErrInvalidSetting, http.StatusBadRequest, ErrCodeInvalidSetting},
	{irrigation.ErrSettingsReadOnly, http.StatusConflict, ErrCodeConflict},
	{eventlog.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
}

// writeDomainError maps engine and event log errors to responses.
// Unknown errors become 500 without leaking their text.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	s.logger.Error("request failed", "error", err)
	writeInternalError(w, "internal server error")
}
