package syncer

import (
	"errors"
	"fmt"

	"github.com/roach88/brandquest/internal/mission"
)

// PersistenceError reports a failed attempt to store a result.
type PersistenceError struct {
	RecordID string
	Mission  mission.ID
	// Op is the step that failed: fingerprint, encode, get or patch.
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for record %s: %s: %v", e.Mission.Key(), e.RecordID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
