package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"roversa-dashboard/internal/handlers"
	"roversa-dashboard/internal/middleware"
	"roversa-dashboard/internal/websocket"
)

func New(
	sessionHandler *handlers.SessionHandler,
	robotHandler *handlers.RobotHandler,
	classroomHandler *handlers.ClassroomHandler,
	ingestHandler *handlers.IngestHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Snapshot rate limiter (30 req/min per IP): a wedged tab can post its
	// unload dump in a loop.
	snapshotLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Put("/", sessionHandler.Update)
				r.Delete("/", sessionHandler.Delete)

				r.Post("/pause", sessionHandler.Pause)
				r.Post("/resume", sessionHandler.Resume)
				r.Post("/end", sessionHandler.End)
				r.Post("/save", sessionHandler.Save)
				r.Post("/activity", sessionHandler.Activity)

				r.Group(func(r chi.Router) {
					r.Use(snapshotLimiter.Middleware)
					r.Post("/snapshot", sessionHandler.Snapshot)
				})

				// ──── Robot Routes ────
				r.Route("/robots", func(r chi.Router) {
					r.Get("/", robotHandler.List)
					r.Post("/clear", robotHandler.ClearRobots)
					r.Route("/{deviceId}", func(r chi.Router) {
						r.Get("/", robotHandler.Get)
						r.Delete("/", robotHandler.Delete)
						r.Put("/assignment", robotHandler.Assign)
						r.Post("/complete", robotHandler.ToggleCompleted)
						r.Get("/replay", robotHandler.Replay)
					})
				})

				r.Post("/lessons/{lessonId}/completions/{deviceId}", robotHandler.ToggleLessonCompletion)

				// ──── Received Data ────
				r.Get("/data", robotHandler.ReceivedData)
				r.Post("/data/clear", robotHandler.ClearData)

				// ──── Receiver Bridge & UI Fan-out ────
				r.Get("/ingest", ingestHandler.Ingest)
				r.Post("/disconnect", ingestHandler.Disconnect)
				r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
					wsHub.HandleWebSocket(chi.URLParam(req, "id"), w, req)
				})
			})
		})

		// ──── Classroom & Lesson Routes (read-only) ────
		r.Get("/classrooms", classroomHandler.ListClassrooms)
		r.Get("/lessons", classroomHandler.ListLessons)
	})

	return r
}
