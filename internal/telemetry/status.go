package telemetry

import (
	"time"

	"roversa-dashboard/internal/models"
)

const (
	// BatteryFreshness is how recently a battery report must have arrived
	// for the robot to count as powered on.
	BatteryFreshness = 5 * time.Second

	// ProgramWindow is the grace window after a program run (or after first
	// contact) before a robot is considered inactive.
	ProgramWindow = 3 * time.Minute
)

// DeriveStatus computes a robot's status from its battery/program timestamps
// and the current time. It is a pure function: same inputs, same result. Nil
// means the corresponding event has never happened.
func DeriveStatus(lastBattery, firstBattery, lastProgram *time.Time, now time.Time) models.RobotStatus {
	// No battery report within the freshness window: powered off.
	if lastBattery == nil || now.Sub(*lastBattery) > BatteryFreshness {
		return models.StatusInactiveBattery
	}
	// Never ran a program and first contact is old: inactive.
	if lastProgram == nil && firstBattery != nil && now.Sub(*firstBattery) > ProgramWindow {
		return models.StatusInactive
	}
	// Last program run is old: inactive.
	if lastProgram != nil && now.Sub(*lastProgram) > ProgramWindow {
		return models.StatusInactive
	}
	// Recent program run: active.
	if lastProgram != nil {
		return models.StatusActive
	}
	// Powered on, no program yet, still within the grace window.
	return models.StatusIdle
}
