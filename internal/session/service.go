package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"roversa-dashboard/internal/models"
	"roversa-dashboard/internal/store"
	"roversa-dashboard/internal/store/local"
)

// Service owns the stored session collection and the managers of currently
// open sessions. At most one session should be active at a time; the
// invariant is cooperative and enforced through the confirm flow, not by
// the store.
type Service struct {
	store     *store.Store
	snapshots *local.SnapshotStore
	cfg       Config

	mu       sync.Mutex
	managers map[string]*Manager
}

func NewService(st *store.Store, snapshots *local.SnapshotStore, cfg Config) *Service {
	return &Service{
		store:     st,
		snapshots: snapshots,
		cfg:       cfg.withDefaults(),
		managers:  make(map[string]*Manager),
	}
}

// List returns every stored session, with open sessions reflecting their
// live in-memory state.
func (s *Service) List(ctx context.Context) ([]models.SessionDocument, error) {
	sessions, err := s.store.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range sessions {
		if m, ok := s.managers[sessions[i].ID]; ok {
			sessions[i] = m.Document()
		}
	}
	return sessions, nil
}

// Create starts a new active session. If another session is already active
// and confirm is false, a ConflictError is returned and nothing is written;
// with confirm the active sessions are paused in the same write.
func (s *Service) Create(ctx context.Context, name string, confirm bool) (*Manager, error) {
	sessions, err := s.store.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Clock()
	for i := range sessions {
		if sessions[i].Status != models.SessionActive {
			continue
		}
		if !confirm {
			return nil, &ConflictError{ActiveID: sessions[i].ID, ActiveName: sessions[i].Name}
		}
		sessions[i].Status = models.SessionPaused
		paused := now
		sessions[i].PausedAt = &paused
		sessions[i].LastUpdated = now
	}

	doc := models.SessionDocument{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      models.SessionActive,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if doc.Name == "" {
		doc.Name = "Session " + now.Format("Jan 2, 3:04 PM")
	}
	sessions = append(sessions, doc)

	if err := s.store.SaveSessions(ctx, sessions); err != nil {
		return nil, err
	}

	m := NewManager(s.store, s.snapshots, doc, s.cfg)
	m.StartTicks()

	s.mu.Lock()
	s.managers[doc.ID] = m
	s.mu.Unlock()

	log.Printf("session %s: created (%s)", doc.ID, doc.Name)
	return m, nil
}

// Get returns one session document, live if the session is open.
func (s *Service) Get(ctx context.Context, id string) (models.SessionDocument, error) {
	s.mu.Lock()
	if m, ok := s.managers[id]; ok {
		s.mu.Unlock()
		return m.Document(), nil
	}
	s.mu.Unlock()

	sessions, err := s.store.LoadSessions(ctx)
	if err != nil {
		return models.SessionDocument{}, err
	}
	for _, doc := range sessions {
		if doc.ID == id {
			return doc, nil
		}
	}
	return models.SessionDocument{}, ErrSessionNotFound
}

// Open returns the manager for a stored session, creating it on first use.
func (s *Service) Open(ctx context.Context, id string) (*Manager, error) {
	s.mu.Lock()
	if m, ok := s.managers[id]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	sessions, err := s.store.LoadSessions(ctx)
	if err != nil {
		return nil, err
	}

	for _, doc := range sessions {
		if doc.ID != id {
			continue
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if m, ok := s.managers[id]; ok {
			return m, nil
		}
		m := NewManager(s.store, s.snapshots, doc, s.cfg)
		m.StartTicks()
		s.managers[id] = m
		return m, nil
	}
	return nil, ErrSessionNotFound
}

// Manager returns the open manager for a session, if any.
func (s *Service) Manager(id string) (*Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[id]
	return m, ok
}

// Delete removes a session from the store and discards its manager without
// a final save.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	m, open := s.managers[id]
	delete(s.managers, id)
	s.mu.Unlock()

	if open {
		m.discard()
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, id); err != nil {
			log.Printf("session %s: snapshot cleanup failed: %v", id, err)
		}
	}
	log.Printf("session %s: deleted", id)
	return nil
}

// Close shuts down every open manager, saving each session.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	managers := make([]*Manager, 0, len(s.managers))
	for _, m := range s.managers {
		managers = append(managers, m)
	}
	s.managers = make(map[string]*Manager)
	s.mu.Unlock()

	for _, m := range managers {
		m.Close(ctx)
	}
}

// RecoverSnapshots folds locally stored unload snapshots back into the
// document store. A snapshot wins only when it is newer than the stored
// copy; either way the snapshot is removed.
func (s *Service) RecoverSnapshots(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	pending, err := s.snapshots.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending snapshots: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	sessions, err := s.store.LoadSessions(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]models.SessionDocument, len(sessions))
	for _, doc := range sessions {
		byID[doc.ID] = doc
	}

	recovered := 0
	for _, p := range pending {
		var doc models.SessionDocument
		if err := json.Unmarshal(p.Data, &doc); err != nil {
			log.Printf("session %s: discarding unreadable snapshot: %v", p.SessionID, err)
			if err := s.snapshots.Delete(ctx, p.SessionID); err != nil {
				log.Printf("session %s: snapshot cleanup failed: %v", p.SessionID, err)
			}
			continue
		}

		stored, exists := byID[doc.ID]
		if !exists || doc.LastUpdated.After(stored.LastUpdated) {
			if err := s.store.UpsertSession(ctx, doc); err != nil {
				log.Printf("session %s: snapshot recovery failed: %v", doc.ID, err)
				continue
			}
			recovered++
		}
		if err := s.snapshots.Delete(ctx, p.SessionID); err != nil {
			log.Printf("session %s: snapshot cleanup failed: %v", p.SessionID, err)
		}
	}

	if recovered > 0 {
		log.Printf("Recovered %d session snapshot(s)", recovered)
	}
	return nil
}
