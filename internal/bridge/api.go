// ABOUTME: HTTP surface for the conversation bridge.
// ABOUTME: Receives platform activity envelopes and exposes outbound send endpoints.

package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nuribom/relay-gateway/internal/connector"
)

// SendMessageRequest is the JSON request body for POST /api/sendMessage.
type SendMessageRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// SendToCurrentRequest is the JSON request body for POST /api/sendMessageToCurrentUser.
type SendToCurrentRequest struct {
	Message string `json:"message"`
}

// Server exposes the bridge over HTTP.
type Server struct {
	bridge *Bridge
	logger *slog.Logger
}

// NewServer creates the bridge HTTP service.
func NewServer(b *Bridge, logger *slog.Logger) *Server {
	return &Server{
		bridge: b,
		logger: logger.With("component", "bridge-api"),
	}
}

// RegisterRoutes registers the bridge endpoints on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/sendMessage", s.handleSendMessage)
	mux.HandleFunc("/api/sendMessageToCurrentUser", s.handleSendToCurrent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "agent is running")
}

// handleMessages receives the platform's activity envelope and hands it
// to the bridge's dispatch.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var act connector.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid activity envelope")
		return
	}

	if err := s.bridge.HandleActivity(r.Context(), &act); err != nil {
		s.logger.Error("activity handling failed", "type", act.Type, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleSendMessage delivers a message to a specific user, creating a 1:1
// conversation when needed. Send failures are logged, not surfaced: the
// caller is a remote job that cannot act on them anyway.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "userId and message fields are required")
		return
	}

	if err := s.bridge.SendToUser(r.Context(), req.UserID, req.Message); err != nil {
		s.logger.Error("send to user failed", "user", req.UserID, "error", err)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "message dispatched to user %s\n", req.UserID)
}

// handleSendToCurrent delivers a message to the current conversation.
// With no conversation reference yet the send is silently dropped.
func (s *Server) handleSendToCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendToCurrentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message field is required")
		return
	}

	if err := s.bridge.SendToCurrentConversation(r.Context(), req.Message); err != nil {
		s.logger.Error("send to current conversation failed", "error", err)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "message dispatched to current conversation")
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
