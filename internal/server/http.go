package server

import (
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/kconf/internal/events"
	"github.com/alfredjeanlab/kconf/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *ConfigServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/global/{key...}", s.handleGet(globalTarget))
	mux.HandleFunc("PUT /v1/global/{key...}", s.handleWrite(globalTarget, model.ModeReplace))
	mux.HandleFunc("PATCH /v1/global/{key...}", s.handleWrite(globalTarget, model.ModeMerge))
	mux.HandleFunc("GET /v1/users/{user}/data/{key...}", s.handleGet(userTarget))
	mux.HandleFunc("PUT /v1/users/{user}/data/{key...}", s.handleWrite(userTarget, model.ModeReplace))
	mux.HandleFunc("PATCH /v1/users/{user}/data/{key...}", s.handleWrite(userTarget, model.ModeMerge))
	mux.HandleFunc("GET /v1/entries", s.handleListEntries)
	mux.HandleFunc("GET /v1/events/stream", s.handleChangeStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return LogRequests(s.logger, AuthMiddleware(authToken, mux))
}

func globalTarget(r *http.Request) target {
	return target{Namespace: events.NamespaceGlobal, Key: r.PathValue("key")}
}

func userTarget(r *http.Request) target {
	return target{Namespace: events.NamespaceUser, UserID: r.PathValue("user"), Key: r.PathValue("key")}
}

// valueResponse is the body returned by the get, set and update routes.
type valueResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// writeRequest is the JSON body for PUT and PATCH.
type writeRequest struct {
	Value json.RawMessage `json:"value"`
}

// handleGet handles GET on a key. The optional "default" query parameter is
// a JSON document stored and returned when the key is missing.
func (s *ConfigServer) handleGet(targetOf func(*http.Request) target) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := targetOf(r)

		var def json.RawMessage
		if r.URL.Query().Has("default") {
			def = json.RawMessage(r.URL.Query().Get("default"))
		}

		value, err := s.read(r.Context(), t, def)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, valueResponse{Key: t.Key, Value: value})
	}
}

// handleWrite handles PUT (replace) and PATCH (merge) on a key.
func (s *ConfigServer) handleWrite(targetOf func(*http.Request) target, mode model.WriteMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := targetOf(r)

		var req writeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		// An explicit null decodes to the bytes "null", so nil means the
		// field was absent.
		if req.Value == nil {
			writeError(w, http.StatusBadRequest, "value is required")
			return
		}

		value, err := s.write(r.Context(), t, req.Value, mode)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, valueResponse{Key: t.Key, Value: value})
	}
}

// handleListEntries handles GET /v1/entries?prefix=...
func (s *ConfigServer) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.list(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleHealth handles GET /v1/health.
func (s *ConfigServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps a service error to a status code. Store details are
// logged, not returned.
func (s *ConfigServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch classify(err) {
	case kindInvalid:
		writeError(w, http.StatusBadRequest, err.Error())
	case kindUnavailable:
		s.logger.Error("store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
