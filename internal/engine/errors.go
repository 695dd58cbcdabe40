package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/brandquest/internal/mission"
)

// RuntimeError represents an error detected by the session engine.
//
// Runtime errors include:
//   - Locked: the mission is above the record's unlock frontier
//   - Unknown mission: the catalog has no such mission
//   - No result: a completed run was expected but none is present
//
// Generation and persistence failures are not wrapped; they cross the
// engine boundary as *phase.GenerationError and *syncer.PersistenceError.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the affected brand record.
	RecordID string

	// Mission is the mission the operation targeted.
	Mission mission.ID

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeLocked indicates the mission is not unlocked yet.
	ErrCodeLocked RuntimeErrorCode = "MISSION_LOCKED"

	// ErrCodeUnknownMission indicates the catalog has no such mission.
	ErrCodeUnknownMission RuntimeErrorCode = "UNKNOWN_MISSION"

	// ErrCodeNoResult indicates the run holds no completed result.
	ErrCodeNoResult RuntimeErrorCode = "NO_RESULT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RecordID != "" && e.Mission.Valid() {
		return fmt.Sprintf("%s: %s (record=%s, mission=%s)", e.Code, e.Message, e.RecordID, e.Mission.Key())
	}
	if e.RecordID != "" {
		return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLocked returns true if the error is a locked mission error.
// Uses errors.As to handle wrapped errors.
func IsLocked(err error) bool {
	return hasCode(err, ErrCodeLocked)
}

// IsUnknownMission returns true if the error names a mission missing from
// the catalog.
func IsUnknownMission(err error) bool {
	return hasCode(err, ErrCodeUnknownMission)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewLockedError creates a RuntimeError for a mission above the frontier.
func NewLockedError(recordID string, id mission.ID, unlocked int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeLocked,
		Message:  fmt.Sprintf("mission %d is locked (unlocked up to %d)", int(id), unlocked),
		RecordID: recordID,
		Mission:  id,
		Details: map[string]string{
			"mission":  fmt.Sprintf("%d", int(id)),
			"unlocked": fmt.Sprintf("%d", unlocked),
		},
	}
}

func newUnknownMissionError(recordID string, id mission.ID) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownMission,
		Message:  fmt.Sprintf("mission %d is not in the catalog", int(id)),
		RecordID: recordID,
	}
}
