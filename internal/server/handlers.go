package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgetill/possync/internal/schema"
	"github.com/edgetill/possync/internal/store"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "STATS_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.sched.Running() {
		writeError(w, http.StatusConflict, "scheduler is stopped", "SCHEDULER_STOPPED")
		return
	}
	s.sched.TriggerNow()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req store.EnqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_BODY")
		return
	}

	item, existing, err := s.engine.Enqueue(req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownEntityType):
			writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_ENTITY_TYPE")
		case schema.IsPayloadValidationError(err):
			writeError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_PAYLOAD")
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), "ENQUEUE_FAILED")
		}
		return
	}

	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"item": item, "existing": existing})
}

func (s *Server) handleListDeadLettered(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	items, err := s.engine.Store().ListDeadLettered(entityType)
	if err != nil {
		if errors.Is(err, store.ErrUnknownEntityType) {
			writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_ENTITY_TYPE")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "LIST_FAILED")
		return
	}
	if items == nil {
		items = []store.QueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.engine.Requeue(id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		case errors.Is(err, store.ErrNotDeadLettered):
			writeError(w, http.StatusConflict, err.Error(), "NOT_DEAD_LETTERED")
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), "REQUEUE_FAILED")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (s *Server) handleRequeueBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityType string `json:"entity_type"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_BODY")
			return
		}
	}

	items, err := s.engine.RequeueAll(req.EntityType)
	if err != nil {
		if errors.Is(err, store.ErrUnknownEntityType) {
			writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_ENTITY_TYPE")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "REQUEUE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": len(items), "items": items})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
