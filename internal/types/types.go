package types

import "time"

// Component identifies which part of the fabric published an Event.
type Component string

const (
	ComponentCoordinator Component = "coordinator"
	ComponentWorkerPool  Component = "workerpool"
	ComponentVault       Component = "vault"
	ComponentSandbox     Component = "sandbox"
	ComponentSkills      Component = "skills"
	ComponentBridge      Component = "bridge"
	ComponentPreflight   Component = "preflight"
	ComponentRecovery    Component = "recovery"
)

// EventType identifies the payload carried by an Event.
type EventType string

const (
	EventTaskSubmitted      EventType = "TaskSubmitted"
	EventTaskAssigned       EventType = "TaskAssigned"
	EventTaskStarted        EventType = "TaskStarted"
	EventTaskCompleted      EventType = "TaskCompleted"
	EventTaskFailed         EventType = "TaskFailed"
	EventTaskDeadLettered   EventType = "TaskDeadLettered"
	EventTaskProgress       EventType = "TaskProgress"
	EventWorkerSpawned      EventType = "WorkerSpawned"
	EventWorkerKilled       EventType = "WorkerKilled"
	EventWorkerEvicted      EventType = "WorkerEvicted"
	EventWorkerRestarted    EventType = "WorkerRestarted"
	EventCircuitOpened      EventType = "CircuitOpened"
	EventCircuitClosed      EventType = "CircuitClosed"
	EventCredentialExpiring EventType = "CredentialExpiring"
	EventSkillInstalled     EventType = "SkillInstalled"
	EventSkillInvoked       EventType = "SkillInvoked"
	EventBridgeRequest      EventType = "BridgeRequest"
)

// Event is the envelope for everything published on the bus: lifecycle
// transitions across every component, read in cmd/fabricd by the
// terminal display in internal/ui.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Component Component   `json:"component"`
	Type      EventType   `json:"type"`
	Payload   any         `json:"payload,omitempty"`
}
