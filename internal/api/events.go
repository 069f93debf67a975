package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/irrigation-core/internal/eventlog"
)

// defaultStatsWindow is the GET /events/stats window without ?since.
const defaultStatsWindow = 30 * 24 * time.Hour

// handleListEvents serves the event log, newest first.
//
// Query: zone, status, since, until (RFC 3339), limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event log not available")
		return
	}
	f, err := parseEventFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	events, err := s.events.List(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	total, err := s.events.Count(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []eventlog.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
		"total":  total,
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event log not available")
		return
	}
	ev, err := s.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event log not available")
		return
	}
	since := time.Now().Add(-defaultStatsWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be RFC 3339")
			return
		}
		since = t
	}

	stats, err := s.events.Stats(r.Context(), since)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since": since.UTC().Format(time.RFC3339),
		"stats": stats,
	})
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseEventFilter(r *http.Request) (eventlog.Filter, error) {
	q := r.URL.Query()
	var f eventlog.Filter

	ints := []struct {
		key string
		dst *int
	}{
		{"zone", &f.ZoneID},
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, filterError(p.key + " must be a non-negative integer")
		}
		*p.dst = n
	}

	times := []struct {
		key string
		dst *time.Time
	}{
		{"since", &f.Since},
		{"until", &f.Until},
	}
	for _, p := range times {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, filterError(p.key + " must be RFC 3339")
		}
		*p.dst = t
	}

	switch status := q.Get("status"); status {
	case "", eventlog.StatusRunning, eventlog.StatusCompleted, eventlog.StatusInterrupted:
		f.Status = status
	default:
		return f, filterError("unknown status " + status)
	}
	return f, nil
}
