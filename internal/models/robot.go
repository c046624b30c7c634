package models

import (
	"time"
)

// RobotStatus is derived from battery/program recency, never reported by the
// robot itself.
type RobotStatus string

const (
	StatusActive          RobotStatus = "active"
	StatusInactive        RobotStatus = "inactive"
	StatusInactiveBattery RobotStatus = "inactive_battery"
	StatusIdle            RobotStatus = "idle"
)

// Button names sent by the robot's physical buttons.
const (
	ButtonPlay = "PLAY"
	ButtonTest = "TEST"
)

type BatterySample struct {
	Voltage   float64   `json:"voltage"`
	Timestamp time.Time `json:"timestamp"`
}

type ButtonEvent struct {
	Button    string    `json:"button"`
	Program   *string   `json:"program"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetryPayload is the most recent parsed event for a robot, any shape.
// Type is "battery", "button_event", or "legacy".
type TelemetryPayload struct {
	Type      string            `json:"type"`
	Voltage   *float64          `json:"voltage,omitempty"`
	Button    string            `json:"button,omitempty"`
	Program   *string           `json:"program,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Assignment ties a robot to a student or a group from the session's classroom.
type Assignment struct {
	Type         string `json:"type"` // "student" | "group"
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	StudentCount int    `json:"student_count,omitempty"`
}

// RobotRecord is the accumulated state for one device, keyed by DeviceID.
// Records are created and updated only by applying parsed telemetry lines;
// fields absent from an incoming event keep their prior values.
type RobotRecord struct {
	DeviceID  string    `json:"device_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	DataCount int       `json:"data_count"`

	LatestData *TelemetryPayload `json:"latest_data,omitempty"`
	RawData    string            `json:"raw_data,omitempty"`

	Status RobotStatus `json:"status"`

	BatteryData      *BatterySample `json:"battery_data,omitempty"`
	FirstBatteryTime *time.Time     `json:"first_battery_time,omitempty"`
	LastBatteryTime  *time.Time     `json:"last_battery_time,omitempty"`

	ButtonEvents []ButtonEvent `json:"button_events"`

	AssignedTo     *Assignment `json:"assigned_to"`
	AssignmentTime *time.Time  `json:"assignment_time,omitempty"`
}

// LastProgramTime returns the timestamp of the most recent button event, or
// nil if the robot has never run a program.
func (r *RobotRecord) LastProgramTime() *time.Time {
	for i := len(r.ButtonEvents) - 1; i >= 0; i-- {
		if !r.ButtonEvents[i].Timestamp.IsZero() {
			t := r.ButtonEvents[i].Timestamp
			return &t
		}
	}
	return nil
}
