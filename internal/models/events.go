package models

import (
	"encoding/json"
	"fmt"
)

// Push-event types the backend sends over the session channel.
const (
	EventMessageAdded = "message_added"
	EventTaskUpdate   = "task_update"
	EventTaskCreated  = "task_created"
	EventTaskLog      = "task_log"
	EventConnected    = "connected"
	EventPong         = "pong"
)

// Event is a decoded push frame. Recognized frame types decode to a
// concrete variant; everything else becomes a RawEvent so wildcard
// subscribers still see the traffic.
type Event interface {
	EventType() string
}

// MessageAdded carries a message appended to the session transcript.
type MessageAdded struct {
	Message Message `json:"message"`
}

func (MessageAdded) EventType() string { return EventMessageAdded }

// TaskUpdate carries the full replacement state of an existing task.
type TaskUpdate struct {
	Task Task `json:"task"`
}

func (TaskUpdate) EventType() string { return EventTaskUpdate }

// TaskCreated carries a task newly added to the session.
type TaskCreated struct {
	Task Task `json:"task"`
}

func (TaskCreated) EventType() string { return EventTaskCreated }

// TaskLogEvent carries one new log entry for a running task.
type TaskLogEvent struct {
	TaskID string  `json:"task_id"`
	Log    TaskLog `json:"log"`
}

func (TaskLogEvent) EventType() string { return EventTaskLog }

// Connected is the server's greeting after the channel opens.
type Connected struct {
	SessionID string `json:"session_id"`
}

func (Connected) EventType() string { return EventConnected }

// Pong answers a client ping.
type Pong struct{}

func (Pong) EventType() string { return EventPong }

// RawEvent preserves frames with unrecognized types.
type RawEvent struct {
	Type    string
	Payload json.RawMessage
}

func (e RawEvent) EventType() string { return e.Type }

// ParseEvent decodes one inbound frame into its tagged variant. A frame
// that fails the structural parse, or carries no type, is an error; the
// caller drops it without touching the connection.
func ParseEvent(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("frame missing type field")
	}

	switch envelope.Type {
	case EventMessageAdded:
		var e MessageAdded
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		return e, nil
	case EventTaskUpdate:
		var e TaskUpdate
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		return e, nil
	case EventTaskCreated:
		var e TaskCreated
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		return e, nil
	case EventTaskLog:
		var e TaskLogEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		return e, nil
	case EventConnected:
		var e Connected
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		return e, nil
	case EventPong:
		return Pong{}, nil
	default:
		return RawEvent{Type: envelope.Type, Payload: json.RawMessage(data)}, nil
	}
}
