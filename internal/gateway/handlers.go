package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if s.deps.HA != nil {
		payload["home_assistant"] = map[string]any{
			"connected": s.deps.HA.Connected(),
			"version":   s.deps.HA.HAVersion(),
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleChat runs one turn over plain HTTP. An absent session_id creates a
// session and returns its id.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		if err := r.ParseForm(); err != nil {
			writeError(w, fault.Wrap(fault.InvalidInput, err, "parse form"))
			return
		}
	}
	message := r.FormValue("message")
	sessionID := r.FormValue("session_id")

	runner, err := s.deps.Manager.GetOrCreate(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.syncSessionsGauge()

	start := time.Now()
	result, err := runner.RunTurn(r.Context(), message)
	s.observeTurn(runner.ActiveAgent(), start, err)
	if err != nil {
		writeError(w, err)
		return
	}

	events := result.Events
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": result.SessionID,
		"response":   result.Response,
		"events":     events,
	})
}

func (s *Server) handleSessionList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Manager.List()})
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if r.Body != nil {
		// An empty body is fine; only malformed JSON is rejected.
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, fault.Wrap(fault.InvalidInput, err, "parse body"))
			return
		}
	}

	runner, err := s.deps.Manager.GetOrCreate(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}
	s.syncSessionsGauge()
	if body.Name != "" {
		meta, err := s.deps.Manager.Rename(r.Context(), runner.Meta().ID, body.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meta)
		return
	}
	writeJSON(w, http.StatusOK, runner.Meta())
}

func (s *Server) handleSessionRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fault.Wrap(fault.InvalidInput, err, "parse body"))
		return
	}
	if body.Name == "" {
		writeError(w, fault.New(fault.InvalidInput, "name is required"))
		return
	}

	meta, err := s.deps.Manager.Rename(r.Context(), r.PathValue("id"), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.syncSessionsGauge()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Reset(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.deps.Manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, fault.New(fault.UnknownResource, "unknown session %q", r.PathValue("id")))
		return
	}
	keys := runner.ArtifactKeys()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": keys})
}

// handleArtifactPut stores the request body as a named blob on the
// session. The recorded content type is echoed back on retrieval.
func (s *Server) handleArtifactPut(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.deps.Manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, fault.New(fault.UnknownResource, "unknown session %q", r.PathValue("id")))
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArtifactBytes))
	if err != nil {
		writeError(w, fault.New(fault.PayloadTooLarge, "artifact exceeds %d bytes", maxArtifactBytes))
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	runner.PutArtifact(models.Artifact{
		Key:         r.PathValue("key"),
		ContentType: contentType,
		Data:        data,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "key": r.PathValue("key")})
}

func (s *Server) handleArtifactGet(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.deps.Manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, fault.New(fault.UnknownResource, "unknown session %q", r.PathValue("id")))
		return
	}
	artifact, ok := runner.GetArtifact(r.PathValue("key"))
	if !ok {
		writeError(w, fault.New(fault.UnknownResource, "unknown artifact %q", r.PathValue("key")))
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runner, ok := s.deps.Manager.Get(r.PathValue("session_id"))
	if !ok {
		writeError(w, fault.New(fault.UnknownResource, "unknown session %q", r.PathValue("session_id")))
		return
	}
	events := runner.Events()
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAgentInfo(w http.ResponseWriter, _ *http.Request) {
	root, ok := s.deps.Controller.Get(s.deps.Root)
	if !ok {
		writeError(w, fault.New(fault.Internal, "root agent %q is not registered", s.deps.Root))
		return
	}

	agentModels := make(map[string]string)
	for _, name := range s.deps.Controller.Agents() {
		if a, ok := s.deps.Controller.Get(name); ok {
			agentModels[name] = a.Model()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_name":   root.Name(),
		"model":        root.Model(),
		"agent_models": agentModels,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	root, ok := s.deps.Controller.Get(s.deps.Root)
	if !ok {
		writeError(w, fault.New(fault.Internal, "root agent %q is not registered", s.deps.Root))
		return
	}
	tools := root.Tools()
	descriptors := make([]agent.Descriptor, 0, len(tools))
	for _, tool := range tools {
		descriptors = append(descriptors, agent.Describe(tool))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": descriptors})
}

func (s *Server) syncSessionsGauge() {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Set(float64(len(s.deps.Manager.List())))
	}
}

func (s *Server) observeTurn(agentName string, start time.Time, err error) {
	if s.deps.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.deps.Metrics.TurnCounter.WithLabelValues(agentName, status).Inc()
	s.deps.Metrics.TurnDuration.WithLabelValues(agentName).Observe(time.Since(start).Seconds())
}
