package types

// ExecuteRequest is the bridge's unary and streaming request envelope.
type ExecuteRequest struct {
	AuthToken  string `json:"auth_token"`
	ChatID     int64  `json:"chat_id"`
	Prompt     string `json:"prompt"`
	WorkingDir string `json:"working_dir,omitempty"`
	DeadlineMs int64  `json:"deadline_ms,omitempty"`
}

// UnaryResult is Execute-full's response shape.
type UnaryResult struct {
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// StreamEventKind tags the three stream event variants.
type StreamEventKind string

const (
	EventStatus StreamEventKind = "status"
	EventChunk  StreamEventKind = "chunk"
	EventFinal  StreamEventKind = "final"
)

// StreamEvent is one message in an Execute-stream response. Exactly one
// Kind's payload fields are populated per event; a stream terminates with
// exactly one EventFinal.
type StreamEvent struct {
	Kind  StreamEventKind `json:"kind"`
	Stage string          `json:"stage,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Bytes []byte          `json:"bytes,omitempty"`
	Final *UnaryResult    `json:"final,omitempty"`
}

// SkillInvokeRequest is the bridge's request envelope for invoking a
// single installed skill directly, bypassing the task coordinator.
type SkillInvokeRequest struct {
	AuthToken string          `json:"auth_token"`
	Name      string          `json:"name"`
	Params    map[string]any  `json:"params,omitempty"`
	Level     PermissionLevel `json:"level"`
}

// HealthStatus is Health's response shape.
type HealthStatus struct {
	Ready        bool   `json:"ready"`
	WorkerCount  int    `json:"worker_count"`
	QueueDepth   int    `json:"queue_depth"`
	Message      string `json:"message,omitempty"`
}
