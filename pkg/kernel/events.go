package kernel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cortexlab/pathfinder/internal/core/domain"
	"github.com/cortexlab/pathfinder/internal/core/services"
)

// handleJobEvents streams a job's lifecycle transitions as server-sent
// events. The stream starts with the record's current status, then relays
// bus events, and closes itself once a terminal transition was delivered.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "id"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before reading the current status so no transition can slip
	// between the snapshot and the stream. A terminal publish landing in the
	// other order would be lost and leave the stream waiting forever.
	events, unsub := s.bus.Subscribe(id)
	defer unsub()

	job, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Task %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, services.JobEvent{JobID: id, Status: job.Status})
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			writeEvent(w, e)
			flusher.Flush()
			if e.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, e services.JobEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
}
