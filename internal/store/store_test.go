package store

import (
	"context"
	"testing"
	"time"

	"roversa-dashboard/internal/models"
)

func newTestStore() *Store {
	return New(NewMemoryStore(), "teacher-1")
}

func TestLoadSessions_EmptyWhenAbsent(t *testing.T) {
	s := newTestStore()

	sessions, err := s.LoadSessions(context.Background())
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected empty collection, got %d sessions", len(sessions))
	}
}

func TestUpsertSession_AppendsThenReplaces(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	sess := models.SessionDocument{
		ID:        "1724961600000",
		Name:      "Morning block",
		Status:    models.SessionActive,
		CreatedAt: time.Date(2025, 8, 29, 9, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	sess.Name = "Morning block (grade 3)"
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession (replace) failed: %v", err)
	}

	sessions, err := s.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Name != "Morning block (grade 3)" {
		t.Errorf("Expected replaced name, got %q", sessions[0].Name)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.UpsertSession(ctx, models.SessionDocument{ID: id, Status: models.SessionEnded}); err != nil {
			t.Fatalf("UpsertSession(%s) failed: %v", id, err)
		}
	}

	if err := s.DeleteSession(ctx, "b"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	sessions, _ := s.LoadSessions(ctx)
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions after delete, got %d", len(sessions))
	}
	for _, sess := range sessions {
		if sess.ID == "b" {
			t.Error("Deleted session still present")
		}
	}
}

func TestLoadLessons_MergesDefaultsWithCustom(t *testing.T) {
	mem := NewMemoryStore()
	s := New(mem, "teacher-1")
	ctx := context.Background()

	// Custom lessons document with one duplicate of a built-in id.
	err := mem.Set(ctx, "users/teacher-1/appdata/lessons",
		[]byte(`{"lessons":[{"id":"lesson1","name":"Renamed"},{"id":"custom1","name":"Maze Day"}]}`))
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	lessons, err := s.LoadLessons(ctx)
	if err != nil {
		t.Fatalf("LoadLessons failed: %v", err)
	}

	if len(lessons) != 5 {
		t.Fatalf("Expected 4 built-ins + 1 custom, got %d", len(lessons))
	}
	if lessons[0].ID != "lesson1" || lessons[0].Name != "I Feel" {
		t.Errorf("Built-in lesson1 should win over the stored duplicate, got %+v", lessons[0])
	}
	if lessons[4].ID != "custom1" {
		t.Errorf("Expected custom lesson appended last, got %+v", lessons[4])
	}
}

func TestLoadClassrooms_EmptyWhenAbsent(t *testing.T) {
	s := newTestStore()

	classrooms, err := s.LoadClassrooms(context.Background())
	if err != nil {
		t.Fatalf("LoadClassrooms failed: %v", err)
	}
	if len(classrooms) != 0 {
		t.Errorf("Expected empty collection, got %d classrooms", len(classrooms))
	}
}
