// Package store persists dashboard state as whole JSON documents. Every
// collection (sessions, classrooms, lessons) is one document per account,
// read and written in full — last writer wins, no field-level patches and no
// revision checks.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"roversa-dashboard/internal/models"
)

// DocumentStore reads and writes one named JSON blob. Get returns (nil, nil)
// when the document does not exist.
type DocumentStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Set(ctx context.Context, path string, data []byte) error
}

// Store wraps a DocumentStore with the account-scoped collection documents
// the dashboard uses.
type Store struct {
	docs      DocumentStore
	accountID string
}

func New(docs DocumentStore, accountID string) *Store {
	return &Store{docs: docs, accountID: accountID}
}

func (s *Store) sessionsPath() string {
	return fmt.Sprintf("users/%s/appdata/sessions", s.accountID)
}

func (s *Store) classroomsPath() string {
	return fmt.Sprintf("users/%s/appdata/classrooms", s.accountID)
}

func (s *Store) lessonsPath() string {
	return fmt.Sprintf("users/%s/appdata/lessons", s.accountID)
}

// LoadSessions returns the full sessions collection, empty if absent.
func (s *Store) LoadSessions(ctx context.Context) ([]models.SessionDocument, error) {
	data, err := s.docs.Get(ctx, s.sessionsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions document: %w", err)
	}
	if data == nil {
		return []models.SessionDocument{}, nil
	}

	var doc struct {
		Sessions []models.SessionDocument `json:"sessions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode sessions document: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = []models.SessionDocument{}
	}
	return doc.Sessions, nil
}

// SaveSessions replaces the full sessions collection.
func (s *Store) SaveSessions(ctx context.Context, sessions []models.SessionDocument) error {
	data, err := json.Marshal(struct {
		Sessions []models.SessionDocument `json:"sessions"`
	}{Sessions: sessions})
	if err != nil {
		return fmt.Errorf("failed to encode sessions document: %w", err)
	}
	if err := s.docs.Set(ctx, s.sessionsPath(), data); err != nil {
		return fmt.Errorf("failed to save sessions document: %w", err)
	}
	return nil
}

// UpsertSession replaces the session with the same id inside the collection,
// appending it if missing, and writes the whole collection back.
func (s *Store) UpsertSession(ctx context.Context, session models.SessionDocument) error {
	sessions, err := s.LoadSessions(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range sessions {
		if sessions[i].ID == session.ID {
			sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, session)
	}

	return s.SaveSessions(ctx, sessions)
}

// DeleteSession removes the session from the collection. Deleting a session
// that is not present is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	sessions, err := s.LoadSessions(ctx)
	if err != nil {
		return err
	}

	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}

	return s.SaveSessions(ctx, kept)
}

func (s *Store) LoadClassrooms(ctx context.Context) ([]models.Classroom, error) {
	data, err := s.docs.Get(ctx, s.classroomsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load classrooms document: %w", err)
	}
	if data == nil {
		return []models.Classroom{}, nil
	}

	var doc struct {
		Classrooms []models.Classroom `json:"classrooms"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode classrooms document: %w", err)
	}
	if doc.Classrooms == nil {
		doc.Classrooms = []models.Classroom{}
	}
	return doc.Classrooms, nil
}

// LoadLessons merges the built-in lessons with any custom lessons stored for
// the account. Built-ins come first and keep their ids.
func (s *Store) LoadLessons(ctx context.Context) ([]models.Lesson, error) {
	merged := models.DefaultLessons()

	data, err := s.docs.Get(ctx, s.lessonsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load lessons document: %w", err)
	}
	if data == nil {
		return merged, nil
	}

	var doc struct {
		Lessons []models.Lesson `json:"lessons"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode lessons document: %w", err)
	}

	seen := make(map[string]bool, len(merged))
	for _, l := range merged {
		seen[l.ID] = true
	}
	for _, l := range doc.Lessons {
		if !seen[l.ID] {
			merged = append(merged, l)
			seen[l.ID] = true
		}
	}
	return merged, nil
}
