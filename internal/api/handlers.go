package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// schemaVersioner is satisfied by *database.DB.
type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (string, error)
}

// handleHealth reports liveness plus the result of each dependency check.
// Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	var schema string

	for name, hc := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		if err == nil {
			if sv, ok := hc.(schemaVersioner); ok {
				schema, _ = sv.SchemaVersion(ctx) //nolint:errcheck // Informational only
			}
		}
		cancel()

		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"bridge":         s.bridge.Status().Phase,
		"checks":         checks,
	}
	if schema != "" {
		body["schema_version"] = schema
	}
	writeJSON(w, code, body)
}

// handleStatus returns the bridge snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bridge":            s.bridge.Status(),
		"websocket_clients": s.hub.ClientCount(),
	})
}

// handlePoll requests a cycle. By default the request only schedules one
// and returns 202. With ?wait=true it waits for the cycle and returns its
// report: 200 on success, 502 when the controller side failed. A client
// that disconnects stops waiting but does not abort the cycle.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")) //nolint:errcheck // Anything unparsable means false

	if !wait {
		if err := s.bridge.Trigger(); err != nil {
			s.fail(w, r, "poll", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	report, err := s.bridge.RunCycle(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case report.ID != "":
		writeJSON(w, http.StatusBadGateway, report)
	default:
		s.fail(w, r, "poll", err)
	}
}

// handleListObjects lists the object tree under ?prefix.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	objects, err := s.objects.ListObjects(r.Context(), prefix)
	if err != nil {
		s.fail(w, r, "objects under "+strconv.Quote(prefix), err)
		return
	}
	if objects == nil {
		objects = []objectstore.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"count":   len(objects),
	})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	obj, err := s.objects.GetObject(r.Context(), id)
	if err != nil {
		s.fail(w, r, "object "+id, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// handleListStates lists current values under ?prefix.
func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	states, err := s.objects.ListStates(r.Context(), prefix)
	if err != nil {
		s.fail(w, r, "states under "+strconv.Quote(prefix), err)
		return
	}
	if states == nil {
		states = []objectstore.State{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"states": states,
		"count":  len(states),
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.objects.GetState(r.Context(), id)
	if err != nil {
		s.fail(w, r, "state "+id, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleGetHistory returns recorded changes of one state, newest first.
// ?limit is passed through; the repository clamps it.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.fail(w, r, "history of "+id, err)
		return
	}
	if entries == nil {
		entries = []objectstore.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"history": entries,
		"count":   len(entries),
	})
}
