package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roversa-dashboard/internal/models"
	"roversa-dashboard/internal/session"
	"roversa-dashboard/internal/telemetry"
)

type RobotHandler struct {
	svc *session.Service
}

func NewRobotHandler(svc *session.Service) *RobotHandler {
	return &RobotHandler{svc: svc}
}

func (h *RobotHandler) open(w http.ResponseWriter, r *http.Request) (*session.Manager, bool) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return nil, false
	}
	return m, true
}

func (h *RobotHandler) List(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}

	robots := m.Robots()
	running := make(map[string]bool, len(robots))
	for id := range robots {
		if m.RunningProgram(id) {
			running[id] = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"robots":  robots,
		"running": running,
	})
}

func (h *RobotHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}

	deviceID := chi.URLParam(r, "deviceId")
	rec, found := m.Robot(deviceID)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Robot not found", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"robot":   rec,
		"running": m.RunningProgram(deviceID),
	})
}

func (h *RobotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := m.DeleteRobot(chi.URLParam(r, "deviceId")); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Robot removed"})
}

func (h *RobotHandler) ClearRobots(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := m.ClearRobots(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("SAVE_FAILED", "Failed to save session", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Robots cleared"})
}

func (h *RobotHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}
	m.ClearData()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session data cleared"})
}

// Assign sets or clears a robot's student/group assignment. A null body
// clears it.
func (h *RobotHandler) Assign(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}

	var assignment *models.Assignment
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if assignment != nil && assignment.Type != "student" && assignment.Type != "group" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "assignment type must be student or group", r))
		return
	}

	if err := m.Assign(chi.URLParam(r, "deviceId"), assignment); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Assignment updated"})
}

func (h *RobotHandler) ToggleCompleted(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}
	m.ToggleCompleted(chi.URLParam(r, "deviceId"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completed_robots": m.Document().CompletedRobots,
	})
}

func (h *RobotHandler) ToggleLessonCompletion(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}
	m.ToggleLessonCompletion(chi.URLParam(r, "lessonId"), chi.URLParam(r, "deviceId"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lesson_completions": m.Document().LessonCompletions,
	})
}

// ReceivedData returns the raw log, optionally filtered to one robot with
// ?device=<id>.
func (h *RobotHandler) ReceivedData(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}

	var lines []models.ReceivedLine
	if device := r.URL.Query().Get("device"); device != "" {
		lines = m.ReceivedDataFor(device)
	} else {
		lines = m.ReceivedData()
	}
	if lines == nil {
		lines = []models.ReceivedLine{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"received_data": lines})
}

// Replay returns the robot's last program with its estimated run time and
// the precomputed grid-walk states, one per command.
func (h *RobotHandler) Replay(w http.ResponseWriter, r *http.Request) {
	m, ok := h.open(w, r)
	if !ok {
		return
	}

	rec, found := m.Robot(chi.URLParam(r, "deviceId"))
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Robot not found", r))
		return
	}

	program := ""
	for i := len(rec.ButtonEvents) - 1; i >= 0; i-- {
		if p := rec.ButtonEvents[i].Program; p != nil && *p != "" {
			program = *p
			break
		}
	}
	if program == "" {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Robot has no recorded program", r))
		return
	}

	commands := telemetry.ParseCommands(program)
	steps := make([]telemetry.AnimState, 0, len(commands)+1)
	state := telemetry.NewAnimState()
	steps = append(steps, state)
	for range commands {
		state = state.StepForward(commands)
		steps = append(steps, state)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"program":     program,
		"commands":    commands,
		"duration_ms": telemetry.EstimateDuration(program).Milliseconds(),
		"steps":       steps,
	})
}
