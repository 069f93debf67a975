package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/irrigation-core/internal/jobs"
)

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if s.jobs == nil {
		writeUnavailable(w, "job scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.Entries()})
}

// handleSync runs the schedule server sync now.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, jobs.JobScheduleSync)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, chi.URLParam(r, "name"))
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request, name string) {
	if s.jobs == nil {
		writeUnavailable(w, "job scheduler not running")
		return
	}
	if err := s.jobs.RunNow(r.Context(), name); err != nil {
		s.writeJobError(w, name, err)
		return
	}

	for _, e := range s.jobs.Entries() {
		if e.Name == name {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// writeJobError reports the job's own failure as 502, since it comes from
// the upstream service.
func (s *Server) writeJobError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobRunning):
		writeError(w, http.StatusConflict, ErrCodeJobRunning, err.Error())
	default:
		s.logger.Warn("job failed", "job", name, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeJobFailed, err.Error())
	}
}
