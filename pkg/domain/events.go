package domain

import (
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCommandExecuted EventType = "command_executed"
	EventCommandRejected EventType = "command_rejected"
	EventUndo            EventType = "undo"
	EventRedo            EventType = "redo"
	EventSync            EventType = "sync"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	ScenarioID string    `json:"scenario_id"`
}

// CommandEvent reports the outcome of one dispatched command.
type CommandEvent struct {
	EventBase
	CommandType string `json:"command_type"`
	Changes     int    `json:"changes"`
	Batch       bool   `json:"batch,omitempty"`
	Err         error  `json:"-"`
}

// HistoryEvent reports an undo or redo step.
type HistoryEvent struct {
	EventBase
	Changes     int    `json:"changes"`
	Description string `json:"description,omitempty"`
}

// SyncEvent reports one save attempt.
type SyncEvent struct {
	EventBase
	Operations int           `json:"operations"`
	Duration   time.Duration `json:"duration"`
	Version    int           `json:"version"`
	Err        error         `json:"-"`
}

// EditorHooks defines callbacks for editor observability.
// Hooks run synchronously on the caller's goroutine.
type EditorHooks struct {
	OnCommandExecuted func(*CommandEvent)
	OnCommandRejected func(*CommandEvent)
	OnUndo            func(*HistoryEvent)
	OnRedo            func(*HistoryEvent)
	OnSync            func(*SyncEvent)
}
