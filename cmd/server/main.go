package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roversa-dashboard/internal/config"
	"roversa-dashboard/internal/database"
	"roversa-dashboard/internal/handlers"
	"roversa-dashboard/internal/router"
	"roversa-dashboard/internal/session"
	"roversa-dashboard/internal/store"
	"roversa-dashboard/internal/store/local"
	"roversa-dashboard/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Roversa Dashboard Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 3: Initialize Document Store ────
	var docs store.DocumentStore
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		log.Println("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, "migrations"); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ Database migrations applied")

		docs = store.NewPostgresStore(pool)
	case "redis":
		docs = store.NewRedisStore(redisClients.Store)
	default:
		log.Fatalf("✗ Unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	documents := store.New(docs, cfg.AccountID)

	// ──── Step 4: Open Local Snapshot Store ────
	snapshots, err := local.NewSnapshotStore(cfg.SnapshotDBPath)
	if err != nil {
		log.Fatalf("✗ Snapshot store initialization failed: %v", err)
	}
	defer snapshots.Close()
	log.Println("✓ Snapshot store opened")

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub)
	log.Println("✓ WebSocket hub started")

	// ──── Step 6: Initialize Session Service ────
	sessionService := session.NewService(documents, snapshots, session.Config{
		AutosaveInterval:  time.Duration(cfg.AutosaveIntervalSeconds) * time.Second,
		StatusTick:        time.Duration(cfg.StatusTickSeconds) * time.Second,
		InactivityPoll:    time.Duration(cfg.InactivityPollSeconds) * time.Second,
		InactivityTimeout: time.Duration(cfg.InactivityTimeoutMinutes) * time.Minute,
		Notify: func(u session.Update) {
			wsHub.Publish(context.Background(), u.SessionID, u)
		},
	})

	if err := sessionService.RecoverSnapshots(context.Background()); err != nil {
		log.Printf("⚠ Snapshot recovery failed: %v", err)
	} else {
		log.Println("✓ Pending snapshots reconciled")
	}

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(sessionService)
	robotHandler := handlers.NewRobotHandler(sessionService)
	classroomHandler := handlers.NewClassroomHandler(documents)
	ingestHandler := handlers.NewIngestHandler(sessionService)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		sessionHandler,
		robotHandler,
		classroomHandler,
		ingestHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sessionService.Close(ctx)
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Roversa Dashboard Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/sessions/{id}/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
