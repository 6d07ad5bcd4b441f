package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kaelvex/fabricd/internal/types"
)

type fakeExecutor struct {
	result      types.UnaryResult
	err         error
	health      types.HealthStatus
	skillResult *types.SkillExecutionResult
}

func (f *fakeExecutor) Execute(ctx context.Context, req types.ExecuteRequest) (types.UnaryResult, error) {
	return f.result, f.err
}
func (f *fakeExecutor) ExecuteStream(ctx context.Context, req types.ExecuteRequest, events chan<- types.StreamEvent) error {
	return nil
}
func (f *fakeExecutor) Health() types.HealthStatus { return f.health }

func (f *fakeExecutor) InvokeSkill(ctx context.Context, name string, params map[string]any, level types.PermissionLevel) (*types.SkillExecutionResult, error) {
	return f.skillResult, f.err
}

func newTestServer(exec *fakeExecutor) *Server {
	return New(Config{SharedSecret: "s3cr3t"}, exec, zap.NewNop())
}

// A request with a mismatched auth token is rejected as Unauthorized
// without ever reaching the executor.
func TestHandleExecute_WrongToken(t *testing.T) {
	called := false
	exec := &fakeExecutor{result: types.UnaryResult{Success: true}}
	s := newTestServer(exec)
	_ = called

	body, _ := json.Marshal(types.ExecuteRequest{AuthToken: "nope", Prompt: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

// A correctly authenticated request reaches the executor and returns
// its result.
func TestHandleExecute_Success(t *testing.T) {
	exec := &fakeExecutor{result: types.UnaryResult{Success: true, Text: "done"}}
	s := newTestServer(exec)

	body, _ := json.Marshal(types.ExecuteRequest{AuthToken: "s3cr3t", Prompt: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var got types.UnaryResult
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Text != "done" {
		t.Fatalf("got %q, want done", got.Text)
	}
}

// An executor error carrying a NotFound category maps to HTTP 404.
func TestHandleExecute_NotFoundCategoryMapsTo404(t *testing.T) {
	exec := &fakeExecutor{err: categorizedErr{types.ErrNotFound}}
	s := newTestServer(exec)

	body, _ := json.Marshal(types.ExecuteRequest{AuthToken: "s3cr3t", Prompt: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

// An uncategorized error maps to Internal with a sanitized message,
// never echoing the original error text.
func TestMapError_UncategorizedIsSanitized(t *testing.T) {
	status, msg := mapError(errors.New("leaked /home/user/.ssh/id_rsa path"))
	if status != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", status)
	}
	if msg != "internal error" {
		t.Fatalf("expected sanitized message, got %q", msg)
	}
}

// Health passes through the executor's reported status untouched.
func TestHandleHealth(t *testing.T) {
	exec := &fakeExecutor{health: types.HealthStatus{Ready: true, WorkerCount: 3}}
	s := newTestServer(exec)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var got types.HealthStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.Ready || got.WorkerCount != 3 {
		t.Fatalf("unexpected health: %+v", got)
	}
}

// /skills/invoke authenticates the same way /execute does and forwards
// to the executor's InvokeSkill, returning its result as JSON.
func TestHandleInvokeSkill_Success(t *testing.T) {
	exitCode := 0
	exec := &fakeExecutor{skillResult: &types.SkillExecutionResult{Success: true, Output: "done", ExitCode: &exitCode}}
	s := newTestServer(exec)

	body, _ := json.Marshal(types.SkillInvokeRequest{AuthToken: "s3cr3t", Name: "example_skill", Level: types.PermissionStandard})
	req := httptest.NewRequest(http.MethodPost, "/skills/invoke", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got types.SkillExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Success || got.Output != "done" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

// /skills/invoke rejects a request with the wrong auth token before
// reaching the executor.
func TestHandleInvokeSkill_Unauthenticated(t *testing.T) {
	exec := &fakeExecutor{}
	s := newTestServer(exec)

	body, _ := json.Marshal(types.SkillInvokeRequest{AuthToken: "wrong", Name: "example_skill"})
	req := httptest.NewRequest(http.MethodPost, "/skills/invoke", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

// deadlineFor clamps a request's requested deadline to [Min, Max].
func TestDeadlineFor_Clamps(t *testing.T) {
	s := newTestServer(&fakeExecutor{})
	s.config.MinDeadline = time.Second
	s.config.MaxDeadline = 10 * time.Second

	if d := s.deadlineFor(types.ExecuteRequest{DeadlineMs: 100}); d != time.Second {
		t.Fatalf("got %v, want clamped to MinDeadline", d)
	}
	if d := s.deadlineFor(types.ExecuteRequest{DeadlineMs: 60_000}); d != 10*time.Second {
		t.Fatalf("got %v, want clamped to MaxDeadline", d)
	}
}

type categorizedErr struct {
	cat types.ErrorCategory
}

func (e categorizedErr) Error() string              { return "categorized error" }
func (e categorizedErr) Category() types.ErrorCategory { return e.cat }
