package telemetry

import (
	"sync"
	"time"

	"roversa-dashboard/internal/models"
)

// maxButtonEvents caps the per-robot button history; older entries drop off.
const maxButtonEvents = 10

// Registry is the in-memory map of robots seen this session. Records are
// created and updated only through Apply; an event never clears fields it
// does not carry, so battery reports preserve button history and assignments,
// and button presses preserve battery data.
type Registry struct {
	mu      sync.RWMutex
	robots  map[string]models.RobotRecord
	running map[string]time.Time // deviceID -> running-badge expiry
}

func NewRegistry() *Registry {
	return &Registry{
		robots:  make(map[string]models.RobotRecord),
		running: make(map[string]time.Time),
	}
}

// Apply folds one parsed event into the registry and returns the updated
// record. Status is never derived here: new records start as "inactive" and
// existing records keep whatever the status tick last assigned.
func (r *Registry) Apply(ev Event) models.RobotRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.robots[ev.DeviceID]
	if !exists {
		rec = models.RobotRecord{
			DeviceID:  ev.DeviceID,
			FirstSeen: ev.Timestamp,
			Status:    models.StatusInactive,
		}
	}

	rec.LastSeen = ev.Timestamp
	rec.DataCount++
	rec.RawData = ev.Raw

	switch ev.Kind {
	case KindBattery:
		voltage := ev.Voltage
		ts := ev.Timestamp
		rec.LatestData = &models.TelemetryPayload{
			Type:      "battery",
			Voltage:   &voltage,
			Timestamp: ts,
		}
		rec.BatteryData = &models.BatterySample{Voltage: voltage, Timestamp: ts}
		rec.LastBatteryTime = &ts
		if rec.FirstBatteryTime == nil {
			rec.FirstBatteryTime = &ts
		}

	case KindButton:
		var program *string
		if ev.Program != "" {
			p := ev.Program
			program = &p
		}
		rec.LatestData = &models.TelemetryPayload{
			Type:      "button_event",
			Button:    ev.Button,
			Program:   program,
			Timestamp: ev.Timestamp,
		}
		rec.ButtonEvents = append(rec.ButtonEvents, models.ButtonEvent{
			Button:    ev.Button,
			Program:   program,
			Timestamp: ev.Timestamp,
		})
		if len(rec.ButtonEvents) > maxButtonEvents {
			rec.ButtonEvents = rec.ButtonEvents[len(rec.ButtonEvents)-maxButtonEvents:]
		}
		if ev.Program != "" {
			// Transient running badge for the UI; not persisted as status.
			r.running[ev.DeviceID] = ev.Timestamp.Add(EstimateDuration(ev.Program))
		}

	case KindLegacy:
		rec.LatestData = &models.TelemetryPayload{
			Type:      "legacy",
			Fields:    ev.Fields,
			Timestamp: ev.Timestamp,
		}
		if rec.LastBatteryTime == nil {
			ts := ev.Timestamp
			rec.LastBatteryTime = &ts
		}
	}

	r.robots[ev.DeviceID] = rec
	return rec
}

// Get returns a copy of one record.
func (r *Registry) Get(deviceID string) (models.RobotRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.robots[deviceID]
	return rec, ok
}

// Snapshot returns a copy of the whole map.
func (r *Registry) Snapshot() map[string]models.RobotRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.RobotRecord, len(r.robots))
	for id, rec := range r.robots {
		out[id] = rec
	}
	return out
}

// Replace swaps the whole map, used when loading a stored session.
func (r *Registry) Replace(robots map[string]models.RobotRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.robots = make(map[string]models.RobotRecord, len(robots))
	for id, rec := range robots {
		r.robots[id] = rec
	}
}

// Len returns the number of known robots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.robots)
}

// Delete removes one robot.
func (r *Registry) Delete(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.robots, deviceID)
	delete(r.running, deviceID)
}

// Clear removes every robot.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.robots = make(map[string]models.RobotRecord)
	r.running = make(map[string]time.Time)
}

// RunningUntil reports whether the device's last program is still within its
// estimated playback window at the given time.
func (r *Registry) RunningUntil(deviceID string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expiry, ok := r.running[deviceID]
	return ok && now.Before(expiry)
}

// SetAssignment sets or clears a robot's student/group assignment.
func (r *Registry) SetAssignment(deviceID string, assignment *models.Assignment, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.robots[deviceID]
	if !ok {
		return false
	}
	rec.AssignedTo = assignment
	if assignment != nil {
		t := at
		rec.AssignmentTime = &t
	} else {
		rec.AssignmentTime = nil
	}
	r.robots[deviceID] = rec
	return true
}

// ClearAssignments drops every robot's assignment, used when the session's
// classroom changes.
func (r *Registry) ClearAssignments() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.robots {
		rec.AssignedTo = nil
		rec.AssignmentTime = nil
		r.robots[id] = rec
	}
}

// DeriveStatuses recomputes every robot's status against now and returns
// true if any changed.
func (r *Registry) DeriveStatuses(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for id, rec := range r.robots {
		status := DeriveStatus(rec.LastBatteryTime, rec.FirstBatteryTime, rec.LastProgramTime(), now)
		if rec.Status != status {
			rec.Status = status
			r.robots[id] = rec
			changed = true
		}
	}
	return changed
}
