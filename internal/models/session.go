package models

import (
	"time"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// ReceivedLine is one raw serial line with its arrival time. The received-data
// log is append-only and independently clearable.
type ReceivedLine struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// SessionDocument is the full persisted record for one classroom session.
// Saves always replace the whole document inside the account's sessions
// collection; there are no field-level patches.
type SessionDocument struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status SessionStatus `json:"status"`

	Robots       map[string]RobotRecord `json:"robots"`
	ReceivedData []ReceivedLine         `json:"received_data"`

	// CompletedRobots is the legacy untyped completion set; LessonCompletions
	// tracks completion per lesson id.
	CompletedRobots   []string            `json:"completed_robots"`
	LessonCompletions map[string][]string `json:"lesson_completions"`

	ClassroomID  *string `json:"classroom_id"`
	SessionNotes string  `json:"session_notes"`

	CreatedAt   time.Time  `json:"created_at"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	ResumedAt   *time.Time `json:"resumed_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}
