// ABOUTME: HTTP service boundary for the mailbox, polled by the remote RPA job.
// ABOUTME: Exposes GET / (health + diagnostic dump), POST /reset, and POST /dequeue.

package mailbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nuribom/relay-gateway/internal/config"
)

// keyRequest is the JSON request body for POST /reset and POST /dequeue.
// The id field is optional; in single mode it is ignored entirely.
type keyRequest struct {
	ID string `json:"id,omitempty"`
}

// DequeueResponse is the JSON response for POST /dequeue. Message is null
// when the buffer is empty — callers poll on an interval and treat null as
// "retry later", so an empty buffer is never an error status.
type DequeueResponse struct {
	Message *string `json:"message"`
}

// Server exposes a Mailbox over HTTP. The keying mode and default key come
// from configuration; exactly one mode is active per process.
type Server struct {
	box        *Mailbox
	mode       string
	defaultKey string
	logger     *slog.Logger
}

// NewServer creates the mailbox HTTP service around an existing Mailbox.
func NewServer(box *Mailbox, cfg config.MailboxConfig, logger *slog.Logger) *Server {
	return &Server{
		box:        box,
		mode:       cfg.Mode,
		defaultKey: cfg.DefaultKey,
		logger:     logger.With("component", "mailbox"),
	}
}

// RegisterRoutes registers the mailbox endpoints on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/dequeue", s.handleDequeue)
}

// resolveKey maps the caller-supplied id onto a buffer key according to
// the deployment mode.
func (s *Server) resolveKey(id string) string {
	if s.mode == config.ModeKeyed && id != "" {
		return id
	}
	return s.defaultKey
}

// parseKeyRequest reads the optional {id} body. A missing or malformed
// body is treated as "no id" — the polling consumer sends an empty body
// in single mode.
func (s *Server) parseKeyRequest(r *http.Request) string {
	var req keyRequest
	if r.Body != nil {
		// Decode errors intentionally ignored; absence and emptiness
		// are the same state here.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return s.resolveKey(req.ID)
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

	s.dumpContents()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "mailbox service is running")
}

// dumpContents logs the current mailbox contents for the operator.
// Logging can never fail the health probe.
func (s *Server) dumpContents() {
	keys := s.box.Keys()
	if len(keys) == 0 {
		s.logger.Info("mailbox is empty")
		return
	}

	for _, key := range keys {
		entries := s.box.Inspect(key)
		s.logger.Info("mailbox contents", "key", key, "size", len(entries))
		for i, msg := range entries {
			// 1-indexed for humans
			s.logger.Info(fmt.Sprintf("  %d: %q", i+1, msg), "key", key)
		}
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	key := s.parseKeyRequest(r)
	s.box.Reset(key)
	s.logger.Info("mailbox reset", "key", key)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "mailbox %q has been reset\n", key)
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	key := s.parseKeyRequest(r)

	var resp DequeueResponse
	if msg, ok := s.box.Dequeue(key); ok {
		s.logger.Info("dequeued message", "key", key, "message", msg)
		resp.Message = &msg
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode dequeue response", "error", err)
	}
}
