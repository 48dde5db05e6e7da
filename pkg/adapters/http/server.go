package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/internal/logging"
	"github.com/aretw0/scenaria/internal/presentation/graph"
	"github.com/aretw0/scenaria/internal/validator"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the scenarios of a session manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager
	logger   *slog.Logger
	metrics  http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates a new HTTP handler for the sessions.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", s.ListScenarios)
		r.Post("/", s.CreateScenario)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.DeleteScenario)
			r.Post("/commands", s.ExecuteCommand)
			r.Post("/undo", s.Undo)
			r.Post("/redo", s.Redo)
			r.Post("/save", s.Save)
			r.Post("/connections/check", s.CheckConnection)
			r.Get("/operations", s.GetOperations)
			r.Get("/history", s.GetHistory)
			r.Get("/graph", s.GetGraph)
			r.Get("/validate", s.Validate)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrScenarioNotFound):
		return http.StatusNotFound, "scenario_not_found"
	case errors.Is(err, domain.ErrEntityNotFound):
		return http.StatusNotFound, "entity_not_found"
	case errors.Is(err, domain.ErrSyncConflict):
		return http.StatusConflict, "sync_conflict"
	case errors.Is(err, domain.ErrBatchOpen), errors.Is(err, domain.ErrNestedBatch), errors.Is(err, domain.ErrNoBatch):
		return http.StatusConflict, "batch_state"
	case errors.Is(err, domain.ErrUnknownCommand):
		return http.StatusBadRequest, "unknown_command"
	case errors.Is(err, domain.ErrInvalidConnection):
		return http.StatusUnprocessableEntity, "invalid_connection"
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusUnprocessableEntity, "invalid_payload"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		s.logger.Warn("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) editor(w http.ResponseWriter, r *http.Request) (*scenaria.Editor, bool) {
	ed, err := s.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return ed, true
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "scenaria-http",
		"version": strings.TrimSpace(scenaria.Version),
	})
}

// ListScenarios handles GET /scenarios.
func (s *Server) ListScenarios(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": ids})
}

// CreateScenarioRequest is the body of POST /scenarios.
type CreateScenarioRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateScenario handles POST /scenarios. An existing scenario is opened instead.
func (s *Server) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var body CreateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "body must be a JSON object with an id", Code: "bad_request"})
		return
	}
	ed, err := s.Sessions.OpenOrCreate(r.Context(), body.ID, body.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": ed.ScenarioID(), "version": ed.Version()})
}

// DeleteScenario handles DELETE /scenarios/{id}.
func (s *Server) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CommandResponse reports the state of the editor after a mutating request.
type CommandResponse struct {
	Applied bool `json:"applied"`
	Pending int  `json:"pending"`
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
	Version int  `json:"version"`
}

func (s *Server) respond(w http.ResponseWriter, ed *scenaria.Editor, event string, applied bool) {
	resp := CommandResponse{
		Applied: applied,
		Pending: len(ed.PendingOperations()),
		CanUndo: ed.CanUndo(),
		CanRedo: ed.CanRedo(),
		Version: ed.Version(),
	}
	if applied {
		s.Streams.Publish(ed.ScenarioID(), event, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExecuteCommand handles POST /scenarios/{id}/commands. The body is one command.
func (s *Server) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid command: %v", err), Code: "bad_request"})
		return
	}
	if err := ed.Execute(cmd); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, ed, "command", true)
}

// Undo handles POST /scenarios/{id}/undo.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	applied, err := ed.Undo()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, ed, "undo", applied)
}

// Redo handles POST /scenarios/{id}/redo.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	applied, err := ed.Redo()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, ed, "redo", applied)
}

// Save handles POST /scenarios/{id}/save.
func (s *Server) Save(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	if _, err := s.Sessions.Save(r.Context(), ed.ScenarioID()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, ed, "save", true)
}

// ConnectionRequest is the body of POST /scenarios/{id}/connections/check.
type ConnectionRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// CheckConnection handles POST /scenarios/{id}/connections/check.
func (s *Server) CheckConnection(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	var body ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: "bad_request"})
		return
	}
	resp := map[string]any{"valid": true}
	if err := ed.CheckConnection(body.SourceID, body.TargetID); err != nil {
		resp["valid"] = false
		resp["reason"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOperations handles GET /scenarios/{id}/operations.
func (s *Server) GetOperations(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	ops := ed.PendingOperations()
	if ops == nil {
		ops = []domain.Operation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

// GetHistory handles GET /scenarios/{id}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	past, future, lastSynced := ed.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"past":        past,
		"future":      future,
		"last_synced": lastSynced,
	})
}

// GetGraph handles GET /scenarios/{id}/graph. With ?format=mermaid the body is
// a Mermaid flowchart with pending entities highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	g, err := ed.Graph()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") != "mermaid" {
		writeJSON(w, http.StatusOK, g)
		return
	}

	overlay := &graph.GraphOverlay{Selected: r.URL.Query().Get("selected")}
	for _, op := range ed.PendingOperations() {
		overlay.Pending = append(overlay.Pending, op.EntityID)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(g, overlay))
}

// Validate handles GET /scenarios/{id}/validate.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editor(w, r)
	if !ok {
		return
	}
	issues, err := validator.CheckEditor(ed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if issues == nil {
		issues = []validator.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": len(issues) == 0, "issues": issues})
}

// SubscribeEvents handles GET /scenarios/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()
	s.logger.Info("SSE: subscribed", "scenario_id", id)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "scenario_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}
