package model

import "fmt"

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Message)
}

// TransientExternalError marks a retryable failure of an external call.
type TransientExternalError struct {
	Message string
}

func (e TransientExternalError) Error() string {
	return fmt.Sprintf("transient external error: %s", e.Message)
}

// FatalNodeError is a non-retryable step failure, it pauses the session.
type FatalNodeError struct {
	NodeId  string
	Message string
}

func (e FatalNodeError) Error() string {
	return fmt.Sprintf("node %s failed: %s", e.NodeId, e.Message)
}

type SessionNotFoundError struct {
	SessionId string
}

func (e SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionId)
}

type ExpiredSessionError struct {
	SessionId string
	Status    SessionStatus
}

func (e ExpiredSessionError) Error() string {
	return fmt.Sprintf("session %s already terminal with status %s", e.SessionId, e.Status)
}

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("error in underline storage layer: %s", e.Message)
}

type SessionLockedError struct {
	SessionId string
}

func (e SessionLockedError) Error() string {
	return fmt.Sprintf("session %s is locked by another executor", e.SessionId)
}
