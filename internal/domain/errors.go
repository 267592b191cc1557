package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProviderFailure     = errors.New("provider failure")
	ErrTimeout             = errors.New("timeout")
)

// ValidationError describes an input rejected before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Stage names a pipeline step backed by an external provider.
type Stage string

const (
	StageScript   Stage = "script"
	StageVoice    Stage = "voice"
	StageAssembly Stage = "assembly"
)

// ProviderError wraps a failed external generation call.
type ProviderError struct {
	Stage Stage
	Err   error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s provider failed", e.Stage)
	}
	return fmt.Sprintf("%s provider failed: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailure
}

// StateError reports an operation requested against a record outside its
// required precondition status.
type StateError struct {
	VideoID string
	Status  VideoStatus
	Want    []VideoStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("video %s is %s, want one of %v", e.VideoID, e.Status, e.Want)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
