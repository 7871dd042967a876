package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skeinhq/skein/ingest"
)

// maxRequestBody bounds inbound JSON request bodies.
const maxRequestBody = 4 << 20 // 4 MiB

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The event stream is read-only; origin restrictions belong on
		// the deployment's reverse proxy.
		return true
	},
}

// writeStatus renders a Status as the response body. Failed statuses
// carry their own code when it is a valid HTTP status.
func (s *Server) writeStatus(w http.ResponseWriter, st *ingest.Status) {
	httpCode := http.StatusOK
	if !st.Success {
		httpCode = http.StatusInternalServerError
		if st.Code >= 400 && st.Code < 600 {
			httpCode = st.Code
		}
	}
	s.writeJSON(w, httpCode, st)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warnw("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]any{
		"success": false,
		"code":    code,
		"message": message,
	})
}

// decodeBody parses a bounded JSON request body into dst. An empty
// body is accepted and leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	clients := len(s.clients)
	s.mu.RUnlock()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tasks":   len(s.manager.ListTasks()),
		"clients": clients,
	})
}

// handleWebhook routes an inbound webhook to every task bound to the
// endpoint. The JSON body, if any, becomes the webhook payload.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint := r.PathValue("endpoint")
	if endpoint == "" {
		s.writeError(w, http.StatusBadRequest, "webhook endpoint is required")
		return
	}

	var payload any
	if err := decodeBody(r, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}

	s.logger.Infow("Webhook received", "endpoint_id", endpoint)
	st := s.manager.TriggerWebhookTask(r.Context(), endpoint, payload)
	s.writeStatus(w, st)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tasks": s.manager.ListTasks(),
	})
}

func (s *Server) handleScheduleTask(w http.ResponseWriter, r *http.Request) {
	var def ingest.Task
	if err := decodeBody(r, &def); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task definition: "+err.Error())
		return
	}
	s.writeStatus(w, s.manager.ScheduleTask(&def))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, found := s.manager.GetTask(r.PathValue("id"))
	if !found {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var upd ingest.TaskUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task update: "+err.Error())
		return
	}
	s.writeStatus(w, s.manager.UpdateTask(r.PathValue("id"), upd))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, s.manager.DeleteTask(r.PathValue("id")))
}

func (s *Server) handleTriggerTask(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid trigger payload: "+err.Error())
		return
	}
	s.writeStatus(w, s.manager.TriggerManualTask(r.Context(), r.PathValue("id"), payload))
}

func (s *Server) handleEnableTask(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, s.manager.EnableTask(r.PathValue("id")))
}

func (s *Server) handleDisableTask(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, s.manager.DisableTask(r.PathValue("id")))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, found := s.manager.GetTask(id); !found {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	executions, err := s.manager.ListExecutions(id, limit)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"task_id":    id,
		"executions": executions,
	})
}

// handleWebSocket upgrades the connection and attaches the client to
// the event broadcast hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan ingest.Event, sendBufferSize),
		id:     uuid.NewString()[:8],
	}
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
