package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roversa-dashboard/internal/session"
)

// maxSnapshotBytes bounds the unload dump a tab may post.
const maxSnapshotBytes = 4 << 20

type SessionHandler struct {
	svc *session.Service
}

func NewSessionHandler(svc *session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.List(r.Context())
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Confirm bool   `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	m, err := h.svc.Create(r.Context(), req.Name, req.Confirm)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": m.Document()})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": doc})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

// Update changes the editable session fields. Absent fields are untouched.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Notes       *string `json:"notes"`
		ClassroomID *string `json:"classroom_id"`
		// Distinguishes "clear the classroom" from "leave it alone".
		ClearClassroom bool `json:"clear_classroom"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Name != nil {
		m.SetName(*req.Name)
	}
	if req.Notes != nil {
		m.SetNotes(*req.Notes)
	}
	if req.ClearClassroom {
		m.SetClassroom(nil)
	} else if req.ClassroomID != nil {
		m.SetClassroom(req.ClassroomID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": m.Document()})
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if err := m.Pause(r.Context()); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": m.Document()})
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	var req struct {
		Confirm bool `json:"confirm"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return
		}
	}

	if err := m.Resume(r.Context(), req.Confirm); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": m.Document()})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if err := m.End(r.Context()); err != nil {
		handleSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": m.Document()})
}

func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	if err := m.Save(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("SAVE_FAILED", "Failed to save session", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":             "Session saved",
		"has_unsaved_changes": m.HasUnsavedChanges(),
	})
}

// Activity resets the inactivity timer on any UI interaction.
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	m.MarkActivity()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Activity recorded"})
}

// Snapshot accepts the tab's synchronous unload dump. It is stored locally
// and reconciled into the document store on the next startup.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes))
	if err != nil || len(data) == 0 || !json.Valid(data) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Snapshot body must be a JSON document", r))
		return
	}

	if err := m.StoreSnapshot(r.Context(), data); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store snapshot", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Snapshot stored"})
}
