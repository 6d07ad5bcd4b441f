// Package bridge implements the Remote Bridge of spec §4.8: an
// authenticated HTTP server exposing unary execute, streaming execute
// (over a websocket upgrade), and health, with constant-time auth,
// per-request deadlines, and the spec's §4.8 error-category mapping.
// Grounded on the teacher's net/http-based CLI entrypoint conventions,
// enriched with gorilla/websocket for the streaming transport (the
// teacher has no network server of its own).
package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/types"
)

// Executor is the bridge's dependency on the rest of the system — the
// coordinator/worker-pool pairing that actually runs a prompt. Bridge
// depends only on this narrow interface, never on coordinator or
// workerpool concrete types, matching spec §3's "weak references plus
// identity strings, no cross-component mutable aliasing" ownership rule.
type Executor interface {
	// Execute runs req to completion and returns the combined result.
	Execute(ctx context.Context, req types.ExecuteRequest) (types.UnaryResult, error)
	// ExecuteStream runs req, emitting events as they become available.
	// It returns once the underlying work finishes or ctx is cancelled;
	// the caller is responsible for sending exactly one EventFinal itself
	// if ExecuteStream returns without having sent one.
	ExecuteStream(ctx context.Context, req types.ExecuteRequest, events chan<- types.StreamEvent) error
	// Health reports current system readiness.
	Health() types.HealthStatus
	// InvokeSkill runs one installed skill directly under level, bypassing
	// the task coordinator.
	InvokeSkill(ctx context.Context, name string, params map[string]any, level types.PermissionLevel) (*types.SkillExecutionResult, error)
}

// Config configures the bridge server.
type Config struct {
	SharedSecret   string
	MinDeadline    time.Duration
	MaxDeadline    time.Duration
	DefaultDeadline time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinDeadline <= 0 {
		c.MinDeadline = time.Second
	}
	if c.MaxDeadline <= 0 {
		c.MaxDeadline = 5 * time.Minute
	}
	if c.DefaultDeadline <= 0 {
		c.DefaultDeadline = 30 * time.Second
	}
	return c
}

// Server is the Remote Bridge's HTTP handler.
type Server struct {
	config   Config
	executor Executor
	log      *zap.Logger
}

// New builds a Server. executor supplies the actual prompt-processing
// capability (typically an adapter over the coordinator/worker pool).
func New(config Config, executor Executor, log *zap.Logger) *Server {
	return &Server{config: config.withDefaults(), executor: executor, log: log}
}

// Handler returns the bridge's http.Handler, routing the three
// operations of spec §4.8 (unary execute, streaming execute, health)
// plus direct skill invocation at /skills/invoke.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/execute", s.handleExecute)
	mux.HandleFunc("/execute/stream", s.handleExecuteStream)
	mux.HandleFunc("/skills/invoke", s.handleInvokeSkill)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// checkAuth compares token against the configured secret in constant
// time, per spec §4.8. A length mismatch is checked against the secret
// itself (rather than returning immediately) so every call path costs
// one ConstantTimeCompare over the secret's length.
func (s *Server) checkAuth(token string) bool {
	want := []byte(s.config.SharedSecret)
	got := []byte(token)
	if len(want) != len(got) {
		subtle.ConstantTimeCompare(want, want)
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}

func (s *Server) deadlineFor(req types.ExecuteRequest) time.Duration {
	if req.DeadlineMs <= 0 {
		return s.config.DefaultDeadline
	}
	d := time.Duration(req.DeadlineMs) * time.Millisecond
	if d < s.config.MinDeadline {
		return s.config.MinDeadline
	}
	if d > s.config.MaxDeadline {
		return s.config.MaxDeadline
	}
	return d
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req types.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.checkAuth(req.AuthToken) {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deadlineFor(req))
	defer cancel()

	start := time.Now()
	result, err := s.executor.Execute(ctx, req)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	if result.DurationMs == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInvokeSkill(w http.ResponseWriter, r *http.Request) {
	var req types.SkillInvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.checkAuth(req.AuthToken) {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.DefaultDeadline)
	defer cancel()

	result, err := s.executor.InvokeSkill(ctx, req.Name, req.Params, req.Level)
	if err != nil {
		status, msg := mapError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.executor.Health())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
