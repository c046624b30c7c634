package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"roversa-dashboard/internal/models"
	"roversa-dashboard/internal/store"
)

// fakeClock advances only when told to, so inactivity and status logic can
// be driven deterministically.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore, *fakeClock) {
	t.Helper()
	mem := store.NewMemoryStore()
	st := store.New(mem, "teacher1")
	clock := newFakeClock()

	doc := models.SessionDocument{
		ID:        "sess-1",
		Name:      "Morning Block",
		Status:    models.SessionActive,
		CreatedAt: clock.Now(),
	}
	if err := st.UpsertSession(context.Background(), doc); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	m := NewManager(st, nil, doc, Config{Clock: clock.Now})
	t.Cleanup(func() { m.discard() })
	return m, mem, clock
}

func TestManager_HandleLineBuildsRobots(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleLine("a1b2c3 3.70")
	m.HandleLine("a1b2c3 PLAY forward left")
	m.HandleLine("not a recognized format at all with a verylongfirsttoken")

	robots := m.Robots()
	if _, ok := robots["a1b2c3"]; !ok {
		t.Fatalf("robot not created, have %v", robots)
	}
	rec := robots["a1b2c3"]
	if rec.BatteryData == nil || rec.BatteryData.Voltage != 3.7 {
		t.Errorf("battery = %+v", rec.BatteryData)
	}
	if len(rec.ButtonEvents) != 1 {
		t.Errorf("button events = %d, want 1", len(rec.ButtonEvents))
	}

	// Every accepted line lands in the log, the legacy one included.
	if got := len(m.ReceivedData()); got != 3 {
		t.Errorf("received data length = %d, want 3", got)
	}
}

func TestManager_RejectedLineDiscardedWhole(t *testing.T) {
	m, _, clock := newTestManager(t)

	m.HandleLine("")
	m.HandleLine("   ")
	m.HandleLine("justoneword")
	m.HandleLine("waytoolongdeviceid 3.7")

	if got := len(m.Robots()); got != 0 {
		t.Errorf("robots = %d, want 0", got)
	}
	// Rejected lines never reach the log and never count as changes.
	if got := len(m.ReceivedData()); got != 0 {
		t.Errorf("received data length = %d, want 0", got)
	}
	if m.HasUnsavedChanges() {
		t.Error("rejected lines marked the session dirty")
	}

	// They also do not count as activity: the inactivity pause still fires.
	clock.Advance(11 * time.Minute)
	m.HandleLine("waytoolongdeviceid 3.7")
	m.InactivityTick(clock.Now())
	if got := m.Document().Status; got != models.SessionPaused {
		t.Errorf("status = %v, garbage lines must not defer the auto-pause", got)
	}
}

func TestManager_SaveRoundTrip(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	m.HandleLine("a1b2c3 3.70")
	if !m.HasUnsavedChanges() {
		t.Fatal("new line should mark changes")
	}

	if err := m.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if m.HasUnsavedChanges() {
		t.Error("saved session still reports unsaved changes")
	}

	// Saving again with nothing new leaves the stored document equivalent.
	if err := m.Save(ctx); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if m.HasUnsavedChanges() {
		t.Error("idempotent save flipped the unsaved indicator")
	}
}

func TestManager_SaveFailureKeepsChangesUnsaved(t *testing.T) {
	m, mem, _ := newTestManager(t)
	ctx := context.Background()

	m.HandleLine("a1b2c3 3.70")
	mem.SetErr = errors.New("store down")

	if err := m.Save(ctx); err == nil {
		t.Fatal("save should fail")
	}
	if !m.HasUnsavedChanges() {
		t.Error("failed save must not clear the unsaved indicator")
	}

	mem.SetErr = nil
	if err := m.Save(ctx); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if m.HasUnsavedChanges() {
		t.Error("retry should clear the unsaved indicator")
	}
}

func TestManager_HasUnsavedChanges_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Manager)
	}{
		{"rename", func(m *Manager) { m.SetName("Afternoon Block") }},
		{"notes", func(m *Manager) { m.SetNotes("great run") }},
		{"completion", func(m *Manager) { m.ToggleCompleted("a1b2c3") }},
		{"lesson completion", func(m *Manager) { m.ToggleLessonCompletion("lesson1", "a1b2c3") }},
		{"classroom", func(m *Manager) {
			id := "class-1"
			m.SetClassroom(&id)
		}},
		{"serial line", func(m *Manager) { m.HandleLine("a1b2c3 3.70") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, _, _ := newTestManager(t)
			if m.HasUnsavedChanges() {
				t.Fatal("fresh manager reports unsaved changes")
			}
			tc.mutate(m)
			if !m.HasUnsavedChanges() {
				t.Error("mutation not reflected in unsaved indicator")
			}
		})
	}
}

func TestManager_Lifecycle(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	doc := m.Document()
	if doc.Status != models.SessionPaused || doc.PausedAt == nil {
		t.Errorf("after pause: %+v", doc.Status)
	}

	if err := m.Resume(ctx, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	doc = m.Document()
	if doc.Status != models.SessionActive || doc.ResumedAt == nil {
		t.Errorf("after resume: %v", doc.Status)
	}

	if err := m.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	doc = m.Document()
	if doc.Status != models.SessionEnded || doc.EndedAt == nil {
		t.Errorf("after end: %v", doc.Status)
	}

	if err := m.Pause(ctx); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("pause after end = %v, want ErrSessionEnded", err)
	}
	if err := m.Resume(ctx, true); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("resume after end = %v, want ErrSessionEnded", err)
	}
	if err := m.End(ctx); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("end after end = %v, want ErrSessionEnded", err)
	}
}

// stubSource blocks until closed, standing in for a live receiver bridge.
type stubSource struct {
	closed chan struct{}
	once   sync.Once
}

func newStubSource() *stubSource {
	return &stubSource{closed: make(chan struct{})}
}

func (s *stubSource) Read(ctx context.Context) (string, error) {
	select {
	case <-s.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *stubSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *stubSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func TestManager_EndDisconnectsSource(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	src := newStubSource()
	m.AttachSource(src)

	if err := m.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	if !src.isClosed() {
		t.Error("serial source still connected after End")
	}
}

func TestManager_EndedSessionIgnoresLines(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}

	m.HandleLine("a1b2c3 3.70")

	if got := len(m.Robots()); got != 0 {
		t.Errorf("robots = %d, an ended session must not ingest", got)
	}
	if got := len(m.ReceivedData()); got != 0 {
		t.Errorf("received data length = %d, want 0", got)
	}
	if m.HasUnsavedChanges() {
		t.Error("ended session reports unsaved changes after a stray line")
	}

	// The stored document stays as it was at End.
	sessions, err := m.store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, doc := range sessions {
		if doc.ID == m.ID() && (len(doc.Robots) != 0 || len(doc.ReceivedData) != 0) {
			t.Errorf("ended session mutated in the store: %+v", doc)
		}
	}
}

func TestManager_ResumeConflict(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	if err := m.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// A second session is active in the stored collection.
	other := models.SessionDocument{
		ID:        "sess-2",
		Name:      "Other Class",
		Status:    models.SessionActive,
		CreatedAt: clock.Now(),
	}
	st := m.store
	if err := st.UpsertSession(ctx, other); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	err := m.Resume(ctx, false)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("resume = %v, want ConflictError", err)
	}
	if conflict.ActiveID != "sess-2" || conflict.ActiveName != "Other Class" {
		t.Errorf("conflict = %+v", conflict)
	}
	// Nothing written: the other session is still active.
	sessions, _ := st.LoadSessions(ctx)
	for _, doc := range sessions {
		if doc.ID == "sess-2" && doc.Status != models.SessionActive {
			t.Error("unconfirmed resume touched the other session")
		}
	}

	if err := m.Resume(ctx, true); err != nil {
		t.Fatalf("confirmed resume: %v", err)
	}
	sessions, _ = st.LoadSessions(ctx)
	for _, doc := range sessions {
		switch doc.ID {
		case "sess-1":
			if doc.Status != models.SessionActive {
				t.Errorf("sess-1 status = %v, want active", doc.Status)
			}
		case "sess-2":
			if doc.Status != models.SessionPaused {
				t.Errorf("sess-2 status = %v, want paused", doc.Status)
			}
		}
	}
}

func TestManager_InactivityPause(t *testing.T) {
	m, _, clock := newTestManager(t)

	// Eleven minutes with no lines and no interaction.
	clock.Advance(11 * time.Minute)
	m.InactivityTick(clock.Now())

	doc := m.Document()
	if doc.Status != models.SessionPaused {
		t.Fatalf("status = %v, want paused after inactivity", doc.Status)
	}

	// A paused session is left alone.
	clock.Advance(time.Hour)
	m.InactivityTick(clock.Now())
	if got := m.Document().Status; got != models.SessionPaused {
		t.Errorf("status = %v after repeat tick", got)
	}
}

func TestManager_ActivityDefersInactivityPause(t *testing.T) {
	m, _, clock := newTestManager(t)

	clock.Advance(9 * time.Minute)
	m.MarkActivity()
	clock.Advance(9 * time.Minute)
	m.InactivityTick(clock.Now())

	if got := m.Document().Status; got != models.SessionActive {
		t.Errorf("status = %v, activity should have reset the timer", got)
	}

	clock.Advance(2 * time.Minute)
	m.InactivityTick(clock.Now())
	if got := m.Document().Status; got != models.SessionPaused {
		t.Errorf("status = %v, want paused once the timeout elapses", got)
	}
}

func TestManager_SetClassroomClearsAssignments(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleLine("a1b2c3 3.70")
	if err := m.Assign("a1b2c3", &models.Assignment{Type: "student", ID: "s1", Name: "Ada"}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	id := "class-1"
	m.SetClassroom(&id)
	if rec, _ := m.Robot("a1b2c3"); rec.AssignedTo != nil {
		t.Error("classroom change should clear assignments")
	}

	// Setting the same classroom again is not a change.
	if err := m.Assign("a1b2c3", &models.Assignment{Type: "student", ID: "s1", Name: "Ada"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	same := "class-1"
	m.SetClassroom(&same)
	if rec, _ := m.Robot("a1b2c3"); rec.AssignedTo == nil {
		t.Error("unchanged classroom cleared assignments")
	}

	if err := m.Assign("ghost", nil); !errors.Is(err, ErrRobotNotFound) {
		t.Errorf("assign to unknown robot = %v, want ErrRobotNotFound", err)
	}
}

func TestManager_ClearDataStaysUnsaved(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	m.HandleLine("a1b2c3 3.70")
	if err := m.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	m.ClearData()
	if len(m.Robots()) != 0 || len(m.ReceivedData()) != 0 {
		t.Fatal("clear data left state behind")
	}
	// The wipe has not been persisted yet.
	if !m.HasUnsavedChanges() {
		t.Error("cleared session should report unsaved changes")
	}
}

func TestManager_ClearRobotsSaves(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	m.HandleLine("a1b2c3 3.70")
	m.ToggleCompleted("a1b2c3")
	m.ToggleLessonCompletion("lesson1", "a1b2c3")

	if err := m.ClearRobots(ctx); err != nil {
		t.Fatalf("clear robots: %v", err)
	}
	doc := m.Document()
	if len(doc.Robots) != 0 || len(doc.CompletedRobots) != 0 || len(doc.LessonCompletions) != 0 {
		t.Errorf("state left behind: %+v", doc)
	}
	if m.HasUnsavedChanges() {
		t.Error("clear robots should persist immediately")
	}
	// The log survives.
	if len(doc.ReceivedData) != 1 {
		t.Errorf("received data length = %d, want 1", len(doc.ReceivedData))
	}
}

func TestManager_ToggleLessonCompletion(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.ToggleLessonCompletion("lesson2", "a1b2c3")
	m.ToggleLessonCompletion("lesson2", "d4e5f6")
	doc := m.Document()
	if got := doc.LessonCompletions["lesson2"]; len(got) != 2 {
		t.Fatalf("completions = %v", got)
	}

	m.ToggleLessonCompletion("lesson2", "a1b2c3")
	doc = m.Document()
	if got := doc.LessonCompletions["lesson2"]; len(got) != 1 || got[0] != "d4e5f6" {
		t.Errorf("completions after untoggle = %v", got)
	}

	m.ToggleLessonCompletion("lesson2", "d4e5f6")
	if got := m.Document().LessonCompletions; len(got) != 0 {
		t.Errorf("empty lesson entry kept: %v", got)
	}
}

func TestManager_DeleteRobot(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleLine("a1b2c3 3.70")
	m.HandleLine("d4e5f6 3.80")
	m.ToggleCompleted("a1b2c3")
	m.ToggleLessonCompletion("lesson1", "a1b2c3")

	if err := m.DeleteRobot("a1b2c3"); err != nil {
		t.Fatalf("delete robot: %v", err)
	}
	doc := m.Document()
	if _, ok := doc.Robots["a1b2c3"]; ok {
		t.Error("robot still present")
	}
	if len(doc.CompletedRobots) != 0 || len(doc.LessonCompletions) != 0 {
		t.Errorf("completion marks left behind: %+v", doc)
	}
	if _, ok := doc.Robots["d4e5f6"]; !ok {
		t.Error("unrelated robot removed")
	}

	if err := m.DeleteRobot("ghost"); !errors.Is(err, ErrRobotNotFound) {
		t.Errorf("delete unknown robot = %v, want ErrRobotNotFound", err)
	}
}

func TestManager_ReceivedDataFor(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleLine("a1b2c3 3.70")
	m.HandleLine("d4e5f6 3.80")
	m.HandleLine("a1b2c3 PLAY forward")
	m.HandleLine("noise from device:a1b2c3 here")

	lines := m.ReceivedDataFor("a1b2c3")
	if len(lines) != 2 {
		t.Fatalf("filtered lines = %d, want 2", len(lines))
	}
	// The legacy line resolves to the uppercased extracted id, not a1b2c3.
	if got := m.ReceivedDataFor("A1B2C3"); len(got) != 1 {
		t.Errorf("legacy-extracted lines = %d, want 1", len(got))
	}
}

func TestManager_Notifications(t *testing.T) {
	mem := store.NewMemoryStore()
	st := store.New(mem, "teacher1")
	clock := newFakeClock()
	var updates []Update

	doc := models.SessionDocument{ID: "sess-1", Name: "Block", Status: models.SessionActive, CreatedAt: clock.Now()}
	m := NewManager(st, nil, doc, Config{
		Clock:  clock.Now,
		Notify: func(u Update) { updates = append(updates, u) },
	})
	defer m.discard()

	m.HandleLine("a1b2c3 3.70")
	if len(updates) != 1 || updates[0].Type != "robot_update" || updates[0].Robot == nil {
		t.Fatalf("updates after line = %+v", updates)
	}

	clock.Advance(11 * time.Minute)
	m.InactivityTick(clock.Now())

	sawInactivity := false
	for _, u := range updates {
		if u.Type == "inactivity_pause" {
			sawInactivity = true
		}
	}
	if !sawInactivity {
		t.Errorf("no inactivity notice in %+v", updates)
	}
}
