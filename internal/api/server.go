// Package api exposes the chat service over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sqlchat/sqlchat/internal/assistant"
	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/events"
	"github.com/sqlchat/sqlchat/internal/format"
	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/session"
)

type Server struct {
	router    *chi.Mux
	port      int
	logger    *slog.Logger
	assistant *assistant.Assistant
	backend   backend.Backend
	sessions  session.Store
	events    events.Publisher
	metrics   *observability.Metrics
}

// NewServer wires the HTTP surface. The backend and events publisher may be
// nil; chat still works, queries are just never executed and no events are
// emitted.
func NewServer(port int, asst *assistant.Assistant, be backend.Backend, sessions session.Store, publisher events.Publisher, metrics *observability.Metrics, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		logger:    logger,
		assistant: asst,
		backend:   be,
		sessions:  sessions,
		events:    publisher,
		metrics:   metrics,
	}

	router.Get("/health", s.health)
	router.Get("/metrics", metrics.Handler().ServeHTTP)
	router.Get("/api/v1/database/info", s.databaseInfo)
	router.Post("/api/v1/chat", s.chat)
	router.Post("/api/v1/chat/{sessionID}", s.chat)
	router.Post("/api/v1/query/execute", s.executeQuery)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) databaseInfo(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database backend configured"})
		return
	}
	schema, err := s.backend.Schema(r.Context())
	if err != nil {
		s.logger.Error("schema fetch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schema": format.Schema(schema)})
}

type chatRequest struct {
	Content string `json:"content"`
}

type chatResponse struct {
	SessionID    string               `json:"session_id"`
	Response     string               `json:"response"`
	SQLQuery     string               `json:"sql_query,omitempty"`
	Conversation []format.DisplayTurn `json:"conversation"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := r.Context()
	history, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.logger.Error("session read failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
		return
	}

	// The schema is fetched fresh each turn so DDL applied between turns is
	// visible to the next question.
	var schemaText string
	var exec assistant.Executor
	if s.backend != nil {
		schema, err := s.backend.Schema(ctx)
		if err != nil {
			s.logger.Warn("schema fetch failed, answering without schema", "error", err)
		} else {
			schemaText = format.Schema(schema)
		}
		exec = s.backend
	}

	start := time.Now()
	outcome := s.assistant.Respond(ctx, req.Content, schemaText, history, exec)

	if err := s.sessions.Append(ctx, sessionID, session.Turn{Role: session.RoleUser, Content: req.Content}); err != nil {
		s.logger.Error("session append failed", "session_id", sessionID, "error", err)
	}
	if err := s.sessions.Append(ctx, sessionID, session.Turn{Role: session.RoleAssistant, Content: outcome.Text}); err != nil {
		s.logger.Error("session append failed", "session_id", sessionID, "error", err)
	}

	if s.events != nil {
		s.events.PublishTurnCompleted(events.TurnCompleted{
			SessionID:  sessionID,
			Outcome:    string(outcome.Kind),
			SQLQuery:   outcome.Query,
			Error:      outcome.ErrorMessage,
			DurationMS: time.Since(start).Milliseconds(),
			OccurredAt: time.Now().UTC(),
		})
	}

	turns, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		turns = append(history,
			session.Turn{Role: session.RoleUser, Content: req.Content},
			session.Turn{Role: session.RoleAssistant, Content: outcome.Text})
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:    sessionID,
		Response:     outcome.Text,
		SQLQuery:     outcome.Query,
		Conversation: format.Conversation(turns),
	})
}

type executeRequest struct {
	SQL string `json:"sql"`
}

type executeResponse struct {
	Success  bool          `json:"success"`
	Columns  []string      `json:"columns,omitempty"`
	Rows     []backend.Row `json:"rows,omitempty"`
	RowCount int           `json:"row_count"`
	Error    string        `json:"error,omitempty"`
}

func (s *Server) executeQuery(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database backend configured"})
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sql is required"})
		return
	}

	result, err := s.backend.Execute(r.Context(), req.SQL)
	if err != nil {
		writeJSON(w, http.StatusOK, executeResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		Success:  true,
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
