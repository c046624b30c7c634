package handlers

import (
	"net/http"

	"roversa-dashboard/internal/store"
)

// ClassroomHandler serves the read-only collaborator documents: classroom
// rosters and lessons. Both are edited elsewhere; the dashboard only reads
// them.
type ClassroomHandler struct {
	store *store.Store
}

func NewClassroomHandler(st *store.Store) *ClassroomHandler {
	return &ClassroomHandler{store: st}
}

func (h *ClassroomHandler) ListClassrooms(w http.ResponseWriter, r *http.Request) {
	classrooms, err := h.store.LoadClassrooms(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load classrooms", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classrooms": classrooms})
}

func (h *ClassroomHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.store.LoadLessons(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load lessons", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lessons": lessons})
}
