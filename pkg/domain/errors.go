package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConnection is matched by every *ValidationError.
	ErrInvalidConnection = errors.New("invalid connection")

	// ErrUnknownCommand is matched by every *UnknownCommandError.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNestedBatch is returned when a batch is started while another one is open.
	ErrNestedBatch = errors.New("batch already open")

	// ErrBatchOpen is returned by undo, redo and history resets while a batch is open.
	ErrBatchOpen = errors.New("operation not allowed while a batch is open")

	// ErrNoBatch is returned when committing or cancelling without an open batch.
	ErrNoBatch = errors.New("no open batch")

	// ErrSyncConflict is matched by every *SyncConflictError.
	ErrSyncConflict = errors.New("sync conflict")

	// ErrEntityNotFound is matched by every *MissingEntityError.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidPayload is matched by every *PayloadError.
	ErrInvalidPayload = errors.New("invalid command payload")

	// ErrScenarioNotFound is returned by repositories for unknown scenario ids.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrDuplicateHandler is returned when a command type is registered twice.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrUnsavedChanges is returned when clearing a history that still has pending operations.
	ErrUnsavedChanges = errors.New("history has unsaved changes")
)

// ValidationError describes a rejected connection between two steps.
type ValidationError struct {
	SourceID string
	TargetID string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("connection %s -> %s rejected: %s", e.SourceID, e.TargetID, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidConnection }

// UnknownCommandError is reported when no handler is registered for a command type.
type UnknownCommandError struct {
	Type string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("no handler registered for command %q", e.Type)
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }

// MissingEntityError is reported when a command references an absent entity.
type MissingEntityError struct {
	Type EntityType
	ID   string
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Type, e.ID)
}

func (e *MissingEntityError) Is(target error) bool { return target == ErrEntityNotFound }

// SyncConflictError wraps a failure reported by the persistence collaborator.
type SyncConflictError struct {
	ScenarioID string
	Err        error
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("sync of scenario %q failed: %v", e.ScenarioID, e.Err)
}

func (e *SyncConflictError) Is(target error) bool { return target == ErrSyncConflict }

func (e *SyncConflictError) Unwrap() error { return e.Err }

// PayloadError is reported when a command payload cannot be decoded or fails validation.
type PayloadError struct {
	CommandType string
	Err         error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid payload for %s: %v", e.CommandType, e.Err)
}

func (e *PayloadError) Is(target error) bool { return target == ErrInvalidPayload }

func (e *PayloadError) Unwrap() error { return e.Err }
