package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Session statuses reported by the backend.
const (
	SessionActive     = "active"
	SessionIdle       = "idle"
	SessionTerminated = "terminated"
)

// Task statuses reported by the backend.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Timestamp wraps time.Time to accept the backend's timestamp formats.
// The server emits naive ISO-8601 (no zone offset), which the stock
// time.Time decoder rejects.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON parses RFC 3339 or naive ISO-8601 timestamps. Naive
// values are interpreted as UTC, matching the server's clock.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON emits RFC 3339 with sub-second precision.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// Session identifies one chat session on the backend. At most one
// session is bound to the live push connection at a time.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AgentType string    `json:"agent_type"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	CreatedAt Timestamp `json:"created_at,omitempty"`
	UpdatedAt Timestamp `json:"updated_at,omitempty"`
	TaskCount int       `json:"task_count,omitempty"`
}

// Message is one entry in a session's chat transcript. IDs are
// server-assigned except for speculative entries, which carry a locally
// synthesized id until the backend confirms or rejects the send.
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  Timestamp `json:"timestamp"`
	ToolsUsed  []string  `json:"tools_used"`
	TaskID     string    `json:"task_id,omitempty"`
	IsThinking bool      `json:"is_thinking,omitempty"`
}

// TaskLog is one progress entry in a task's log stream.
type TaskLog struct {
	Timestamp Timestamp `json:"timestamp"`
	Type      string    `json:"type"`
	Tool      string    `json:"tool,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Traceback string    `json:"traceback,omitempty"`
}

// TaskMetadata holds the agent's intermediate output attached to a task.
// ToolOutputs is keyed by the stringified invocation index.
type TaskMetadata struct {
	InitialThinking string            `json:"initial_thinking,omitempty"`
	FinalResponse   string            `json:"final_response,omitempty"`
	ToolCommands    map[string]string `json:"tool_commands,omitempty"`
	ToolOutputs     map[string]string `json:"tool_outputs,omitempty"`
}

// Task represents one agent action within a session. Tasks are only
// ever created or updated in place, never removed.
type Task struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Message     string          `json:"message"`
	Status      string          `json:"status"`
	CreatedAt   Timestamp       `json:"created_at,omitempty"`
	StartedAt   *Timestamp      `json:"started_at,omitempty"`
	CompletedAt *Timestamp      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Logs        []TaskLog       `json:"logs,omitempty"`
	ToolsUsed   []string        `json:"tools_used"`
	TokenUsage  map[string]int  `json:"token_usage,omitempty"`
	Metadata    *TaskMetadata   `json:"metadata,omitempty"`
	Duration    *float64        `json:"duration,omitempty"`
}

// Terminal reports whether the task has reached a final status.
func (t *Task) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Agent describes one agent type the backend can run.
type Agent struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	Tools        []string `json:"tools"`
	Capabilities []string `json:"capabilities"`
}

// ModelInfo describes one LLM the backend can use.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}
