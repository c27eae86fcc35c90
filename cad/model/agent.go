package model

import "time"

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentWorking    AgentStatus = "working"
	AgentError      AgentStatus = "error"
	AgentTerminated AgentStatus = "terminated"
)

// MaxErrorLog caps the number of retained error-log entries per agent.
const MaxErrorLog = 100

// OperationHistoryEntry records one dispatched operation for metrics.
type OperationHistoryEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Operation string        `json:"operation"`
}

// Agent is a registered participant in the multi-agent controller.
type Agent struct {
	AgentID          string                  `json:"agent_id"`
	Role             string                  `json:"role"`
	WorkspaceID      string                  `json:"workspace_id"`
	OperationCount   int                     `json:"operation_count"`
	SuccessCount     int                     `json:"success_count"`
	ErrorCount       int                     `json:"error_count"`
	CreatedEntities  []string                `json:"created_entities"`
	ErrorLog         []string                `json:"error_log"`
	Status           AgentStatus             `json:"status"`
	CreatedAt        time.Time               `json:"created_at"`
	LastActive       time.Time               `json:"last_active"`
	OperationHistory []OperationHistoryEntry `json:"operation_history"`
}

// RecordError appends a message to the agent's error log, truncating the
// oldest entries once MaxErrorLog is exceeded.
func (a *Agent) RecordError(msg string) {
	a.ErrorLog = append(a.ErrorLog, msg)
	if len(a.ErrorLog) > MaxErrorLog {
		a.ErrorLog = a.ErrorLog[len(a.ErrorLog)-MaxErrorLog:]
	}
}

// RoleTemplate is a named capability set defining which operations an
// agent may execute.
type RoleTemplate struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	AllowedOperations   []string `json:"allowed_operations"`
	ForbiddenOperations []string `json:"forbidden_operations"`
	ExampleTasks        []string `json:"example_tasks"`
}

// CanExecute reports whether operation is permitted by this role: it must
// be in the allowed set and must not appear in the forbidden set.
func (r *RoleTemplate) CanExecute(operation string) bool {
	forbidden := false
	for _, op := range r.ForbiddenOperations {
		if op == operation {
			forbidden = true
			break
		}
	}
	if forbidden {
		return false
	}
	for _, op := range r.AllowedOperations {
		if op == operation {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a decomposed task assignment.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// TaskAssignment is a unit of decomposed work assigned to a role-matched
// agent, possibly depending on other tasks.
type TaskAssignment struct {
	TaskID             string         `json:"task_id"`
	AgentID            *string        `json:"agent_id,omitempty"`
	Description        string         `json:"description"`
	RequiredOperations []string       `json:"required_operations"`
	Dependencies       []string       `json:"dependencies"`
	SuccessCriteria    string         `json:"success_criteria"`
	Status             TaskStatus     `json:"status"`
	AssignedAt         *time.Time     `json:"assigned_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Result             map[string]any `json:"result,omitempty"`
}

// MessageType enumerates the kinds of inter-agent messages.
type MessageType string

const (
	MessageRequest   MessageType = "request"
	MessageResponse  MessageType = "response"
	MessageBroadcast MessageType = "broadcast"
	MessageError     MessageType = "error"
)

// BroadcastRecipient is the sentinel "to_agent_id" value meaning "every
// other registered agent".
const BroadcastRecipient = "broadcast"

// AllowedClockSkew bounds how far into the future a message timestamp may
// be before it is rejected.
const AllowedClockSkew = 60 * time.Second

// AgentMessage is a single entry on an agent's inbound queue.
type AgentMessage struct {
	MessageID   string         `json:"message_id"`
	FromAgentID string         `json:"from_agent_id"`
	ToAgentID   string         `json:"to_agent_id"`
	MessageType MessageType    `json:"message_type"`
	Content     map[string]any `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	Read        bool           `json:"read"`
}

// RequiredContentFields returns the content keys that must be present for
// a message of the given type, per the messaging contract.
func RequiredContentFields(t MessageType) []string {
	switch t {
	case MessageRequest:
		return []string{"request_type"}
	case MessageResponse:
		return []string{"request_id", "status"}
	case MessageBroadcast:
		return []string{"announcement"}
	case MessageError:
		return []string{"error_code", "error_message"}
	default:
		return nil
	}
}
