package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrRobotNotFound   = errors.New("robot not found")
)

// ConflictError reports that another session is already active. The caller
// must confirm before the other session is paused; nothing is written until
// then.
type ConflictError struct {
	ActiveID   string
	ActiveName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %q (%s) is already active", e.ActiveName, e.ActiveID)
}
