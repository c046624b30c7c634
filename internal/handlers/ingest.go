package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"roversa-dashboard/internal/serial"
	"roversa-dashboard/internal/session"
)

var ingestUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// IngestHandler terminates the receiver bridge: the browser tab that holds
// the physical serial port relays raw chunks here over a WebSocket, and the
// session's read loop frames and applies them.
type IngestHandler struct {
	svc *session.Service
}

func NewIngestHandler(svc *session.Service) *IngestHandler {
	return &IngestHandler{svc: svc}
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	conn, err := ingestUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ingest upgrade failed: %v", err)
		return
	}

	log.Printf("session %s: receiver connected from %s", m.ID(), r.RemoteAddr)
	m.AttachSource(serial.NewWebSocketSource(conn))
}

// Disconnect drops the current receiver connection, if any.
func (h *IngestHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, r, err)
		return
	}
	m.DisconnectSource()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Receiver disconnected"})
}
