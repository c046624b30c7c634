// Package session holds the live state of classroom sessions: the Manager
// reconciles incoming telemetry into one session document and keeps it
// persisted, the Service handles the stored collection.
package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"roversa-dashboard/internal/models"
	"roversa-dashboard/internal/scheduler"
	"roversa-dashboard/internal/serial"
	"roversa-dashboard/internal/store"
	"roversa-dashboard/internal/store/local"
	"roversa-dashboard/internal/telemetry"
)

// saveDebounce batches the save that follows a burst of serial lines.
const saveDebounce = 100 * time.Millisecond

// Update is one state-change notification fanned out to UI subscribers.
type Update struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id"`
	Robot     *models.RobotRecord     `json:"robot,omitempty"`
	Session   *models.SessionDocument `json:"session,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

// Notifier delivers updates to the fan-out layer. May be nil.
type Notifier func(update Update)

// Config carries the timing knobs and collaborators shared by every session.
type Config struct {
	AutosaveInterval  time.Duration
	StatusTick        time.Duration
	InactivityPoll    time.Duration
	InactivityTimeout time.Duration
	Clock             func() time.Time
	Notify            Notifier
}

func (c Config) withDefaults() Config {
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = 5 * time.Second
	}
	if c.StatusTick <= 0 {
		c.StatusTick = 2 * time.Second
	}
	if c.InactivityPoll <= 0 {
		c.InactivityPoll = time.Minute
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 10 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// savedState is the shape of the document as of the last successful save,
// reduced to the fields that count as "changes" for the unsaved indicator.
type savedState struct {
	robots      map[string]string
	dataLen     int
	name        string
	notes       string
	completed   map[string]bool
	completions map[string]map[string]bool
	classroomID string
}

// Manager owns one session: its document, its robot registry, its serial
// connection, and its persistence. All mutation goes through the Manager so
// the debounced and periodic saves always see a consistent document.
type Manager struct {
	store     *store.Store
	snapshots *local.SnapshotStore
	cfg       Config

	mu           sync.Mutex
	doc          models.SessionDocument
	registry     *telemetry.Registry
	lastSaved    savedState
	lastActivity time.Time
	saveTimer    *time.Timer
	loop         *serial.ReadLoop
	closed       bool

	sched *scheduler.Scheduler
}

// NewManager wraps a stored session document. The document's robots move
// into the registry; a freshly opened session reports no unsaved changes.
func NewManager(st *store.Store, snapshots *local.SnapshotStore, doc models.SessionDocument, cfg Config) *Manager {
	cfg = cfg.withDefaults()

	registry := telemetry.NewRegistry()
	registry.Replace(doc.Robots)
	doc.Robots = nil

	m := &Manager{
		store:        st,
		snapshots:    snapshots,
		cfg:          cfg,
		doc:          doc,
		registry:     registry,
		lastActivity: cfg.Clock(),
	}
	m.lastSaved = captureState(m.Document())
	return m
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.doc.ID
}

// Document composes the full current document, robots included.
func (m *Manager) Document() models.SessionDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.composeLocked()
}

func (m *Manager) composeLocked() models.SessionDocument {
	doc := m.doc
	doc.Robots = m.registry.Snapshot()
	doc.ReceivedData = append([]models.ReceivedLine(nil), m.doc.ReceivedData...)
	doc.CompletedRobots = append([]string(nil), m.doc.CompletedRobots...)
	if m.doc.LessonCompletions != nil {
		doc.LessonCompletions = make(map[string][]string, len(m.doc.LessonCompletions))
		for id, devs := range m.doc.LessonCompletions {
			doc.LessonCompletions[id] = append([]string(nil), devs...)
		}
	}
	return doc
}

// Robots returns the current robot map.
func (m *Manager) Robots() map[string]models.RobotRecord {
	return m.registry.Snapshot()
}

// Robot returns one robot record.
func (m *Manager) Robot(deviceID string) (models.RobotRecord, bool) {
	return m.registry.Get(deviceID)
}

// RunningProgram reports whether the robot's last program is still within
// its estimated run time.
func (m *Manager) RunningProgram(deviceID string) bool {
	return m.registry.RunningUntil(deviceID, m.cfg.Clock())
}

// HandleLine processes one raw serial line: accepted lines are appended to
// the received-data log and folded into the registry, with a save after a
// short debounce. Rejected lines (blank, single-token, oversized device id)
// are discarded whole: no log entry, no activity, no save. An ended session
// ignores every line.
func (m *Manager) HandleLine(line string) {
	now := m.cfg.Clock()
	ev, ok := telemetry.Parse(line, now)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.closed || m.doc.Status == models.SessionEnded {
		m.mu.Unlock()
		return
	}
	m.doc.ReceivedData = append(m.doc.ReceivedData, models.ReceivedLine{Timestamp: now, Data: line})
	m.lastActivity = now
	rec := m.registry.Apply(ev)
	m.scheduleSaveLocked()
	m.mu.Unlock()

	m.notify(Update{Type: "robot_update", SessionID: m.doc.ID, Robot: &rec})
}

func (m *Manager) scheduleSaveLocked() {
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(saveDebounce, func() {
		if err := m.Save(context.Background()); err != nil {
			// Already logged; the next autosave tick retries.
			_ = err
		}
	})
}

// Save writes the whole document back into the stored collection. On
// failure the last-saved snapshot is left alone, so the changes still count
// as unsaved and the next tick retries.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	doc := m.composeLocked()
	doc.LastUpdated = m.cfg.Clock()
	m.mu.Unlock()

	if err := m.store.UpsertSession(ctx, doc); err != nil {
		log.Printf("session %s: save failed: %v", doc.ID, err)
		return err
	}

	m.mu.Lock()
	m.doc.LastUpdated = doc.LastUpdated
	m.lastSaved = captureState(doc)
	m.mu.Unlock()
	return nil
}

// HasUnsavedChanges compares the current document against the last
// successful save: per-robot content, log length, name, notes, completion
// sets, and classroom. Timestamps alone never count.
func (m *Manager) HasUnsavedChanges() bool {
	m.mu.Lock()
	doc := m.composeLocked()
	saved := m.lastSaved
	m.mu.Unlock()

	return !captureState(doc).equal(saved)
}

func captureState(doc models.SessionDocument) savedState {
	s := savedState{
		robots:      make(map[string]string, len(doc.Robots)),
		dataLen:     len(doc.ReceivedData),
		name:        doc.Name,
		notes:       doc.SessionNotes,
		completed:   make(map[string]bool, len(doc.CompletedRobots)),
		completions: make(map[string]map[string]bool, len(doc.LessonCompletions)),
	}
	for id, rec := range doc.Robots {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		s.robots[id] = string(data)
	}
	for _, id := range doc.CompletedRobots {
		s.completed[id] = true
	}
	for lesson, devs := range doc.LessonCompletions {
		set := make(map[string]bool, len(devs))
		for _, d := range devs {
			set[d] = true
		}
		s.completions[lesson] = set
	}
	if doc.ClassroomID != nil {
		s.classroomID = *doc.ClassroomID
	}
	return s
}

func (s savedState) equal(o savedState) bool {
	if s.dataLen != o.dataLen || s.name != o.name || s.notes != o.notes || s.classroomID != o.classroomID {
		return false
	}
	if len(s.robots) != len(o.robots) || len(s.completed) != len(o.completed) || len(s.completions) != len(o.completions) {
		return false
	}
	for id, data := range s.robots {
		if o.robots[id] != data {
			return false
		}
	}
	for id := range s.completed {
		if !o.completed[id] {
			return false
		}
	}
	for lesson, set := range s.completions {
		other, ok := o.completions[lesson]
		if !ok || len(other) != len(set) {
			return false
		}
		for d := range set {
			if !other[d] {
				return false
			}
		}
	}
	return true
}

// Pause suspends the session and saves.
func (m *Manager) Pause(ctx context.Context) error {
	m.mu.Lock()
	if m.doc.Status == models.SessionEnded {
		m.mu.Unlock()
		return ErrSessionEnded
	}
	now := m.cfg.Clock()
	m.doc.Status = models.SessionPaused
	m.doc.PausedAt = &now
	m.mu.Unlock()

	err := m.Save(ctx)
	m.notifySession()
	return err
}

// Resume reactivates a paused session. If another session is active and
// confirm is false, a ConflictError is returned and nothing is written.
// With confirm, the other session is paused first, then this one is
// activated; the two writes are separate and the window between them is
// accepted.
func (m *Manager) Resume(ctx context.Context, confirm bool) error {
	m.mu.Lock()
	if m.doc.Status == models.SessionEnded {
		m.mu.Unlock()
		return ErrSessionEnded
	}
	id := m.doc.ID
	m.mu.Unlock()

	sessions, err := m.store.LoadSessions(ctx)
	if err != nil {
		return err
	}

	now := m.cfg.Clock()
	for i := range sessions {
		if sessions[i].ID == id || sessions[i].Status != models.SessionActive {
			continue
		}
		if !confirm {
			return &ConflictError{ActiveID: sessions[i].ID, ActiveName: sessions[i].Name}
		}
		sessions[i].Status = models.SessionPaused
		paused := now
		sessions[i].PausedAt = &paused
		sessions[i].LastUpdated = now
		if err := m.store.UpsertSession(ctx, sessions[i]); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.doc.Status = models.SessionActive
	m.doc.ResumedAt = &now
	m.lastActivity = now
	m.mu.Unlock()

	err = m.Save(ctx)
	m.notifySession()
	return err
}

// End closes out the session for good: the serial source is disconnected
// before the transition, ingestion stops, and the final state is saved.
// Ended is terminal; only delete remains.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	if m.doc.Status == models.SessionEnded {
		m.mu.Unlock()
		return ErrSessionEnded
	}
	m.mu.Unlock()

	m.DisconnectSource()

	m.mu.Lock()
	now := m.cfg.Clock()
	m.doc.Status = models.SessionEnded
	m.doc.EndedAt = &now
	m.mu.Unlock()

	err := m.Save(ctx)
	m.notifySession()
	return err
}

// SetName renames the session.
func (m *Manager) SetName(name string) {
	m.mu.Lock()
	m.doc.Name = name
	m.scheduleSaveLocked()
	m.mu.Unlock()
	m.notifySession()
}

// SetNotes replaces the session notes.
func (m *Manager) SetNotes(notes string) {
	m.mu.Lock()
	m.doc.SessionNotes = notes
	m.scheduleSaveLocked()
	m.mu.Unlock()
}

// SetClassroom links the session to a classroom, or unlinks it with nil.
// Changing classroom drops every robot assignment: the assignments referred
// to the old roster.
func (m *Manager) SetClassroom(classroomID *string) {
	m.mu.Lock()
	changed := !equalStringPtr(m.doc.ClassroomID, classroomID)
	m.doc.ClassroomID = classroomID
	if changed {
		m.registry.ClearAssignments()
	}
	m.scheduleSaveLocked()
	m.mu.Unlock()
	m.notifySession()
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Assign attaches a student or group to a robot; nil clears it.
func (m *Manager) Assign(deviceID string, assignment *models.Assignment) error {
	if !m.registry.SetAssignment(deviceID, assignment, m.cfg.Clock()) {
		return ErrRobotNotFound
	}
	m.mu.Lock()
	m.scheduleSaveLocked()
	m.mu.Unlock()

	if rec, ok := m.registry.Get(deviceID); ok {
		m.notify(Update{Type: "robot_update", SessionID: m.doc.ID, Robot: &rec})
	}
	return nil
}

// ToggleCompleted flips the robot's untyped completion mark.
func (m *Manager) ToggleCompleted(deviceID string) {
	m.mu.Lock()
	m.doc.CompletedRobots = toggleMember(m.doc.CompletedRobots, deviceID)
	m.scheduleSaveLocked()
	m.mu.Unlock()
	m.notifySession()
}

// ToggleLessonCompletion flips the robot's completion mark for one lesson.
func (m *Manager) ToggleLessonCompletion(lessonID, deviceID string) {
	m.mu.Lock()
	if m.doc.LessonCompletions == nil {
		m.doc.LessonCompletions = make(map[string][]string)
	}
	m.doc.LessonCompletions[lessonID] = toggleMember(m.doc.LessonCompletions[lessonID], deviceID)
	if len(m.doc.LessonCompletions[lessonID]) == 0 {
		delete(m.doc.LessonCompletions, lessonID)
	}
	m.scheduleSaveLocked()
	m.mu.Unlock()
	m.notifySession()
}

func toggleMember(set []string, member string) []string {
	for i, v := range set {
		if v == member {
			return append(set[:i], set[i+1:]...)
		}
	}
	return append(set, member)
}

// ClearData wipes the robots and the received-data log without saving. The
// wipe itself is a change, so the unsaved indicator lights up until the
// next save.
func (m *Manager) ClearData() {
	m.mu.Lock()
	m.registry.Clear()
	m.doc.ReceivedData = nil
	m.mu.Unlock()
	m.notifySession()
}

// ClearRobots wipes the robots and every completion mark, then saves.
func (m *Manager) ClearRobots(ctx context.Context) error {
	m.mu.Lock()
	m.registry.Clear()
	m.doc.CompletedRobots = nil
	m.doc.LessonCompletions = nil
	m.mu.Unlock()

	err := m.Save(ctx)
	m.notifySession()
	return err
}

// DeleteRobot removes one robot and its completion marks.
func (m *Manager) DeleteRobot(deviceID string) error {
	if _, ok := m.registry.Get(deviceID); !ok {
		return ErrRobotNotFound
	}
	m.registry.Delete(deviceID)

	m.mu.Lock()
	m.doc.CompletedRobots = removeMember(m.doc.CompletedRobots, deviceID)
	for lesson := range m.doc.LessonCompletions {
		m.doc.LessonCompletions[lesson] = removeMember(m.doc.LessonCompletions[lesson], deviceID)
		if len(m.doc.LessonCompletions[lesson]) == 0 {
			delete(m.doc.LessonCompletions, lesson)
		}
	}
	m.scheduleSaveLocked()
	m.mu.Unlock()
	m.notifySession()
	return nil
}

func removeMember(set []string, member string) []string {
	for i, v := range set {
		if v == member {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

// ReceivedData returns the full log.
func (m *Manager) ReceivedData() []models.ReceivedLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReceivedLine(nil), m.doc.ReceivedData...)
}

// ReceivedDataFor returns the log lines belonging to one robot.
func (m *Manager) ReceivedDataFor(deviceID string) []models.ReceivedLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ReceivedLine
	for _, line := range m.doc.ReceivedData {
		if telemetry.DeviceIDForLine(line.Data) == deviceID {
			out = append(out, line)
		}
	}
	return out
}

// MarkActivity resets the inactivity timer, called on any UI interaction.
func (m *Manager) MarkActivity() {
	m.mu.Lock()
	m.lastActivity = m.cfg.Clock()
	m.mu.Unlock()
}

// StoreSnapshot persists the UI's synchronous unload dump locally; it is
// reconciled into the document store on the next startup.
func (m *Manager) StoreSnapshot(ctx context.Context, data []byte) error {
	if m.snapshots == nil {
		return nil
	}
	return m.snapshots.Put(ctx, m.doc.ID, data, m.cfg.Clock())
}

// AttachSource connects a serial source and starts reading it. Any previous
// source is disconnected first.
func (m *Manager) AttachSource(src serial.Source) {
	m.mu.Lock()
	old := m.loop
	loop := serial.NewReadLoop(src, m.HandleLine)
	m.loop = loop
	m.lastActivity = m.cfg.Clock()
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	go loop.Run(context.Background())
}

// DisconnectSource stops the serial read loop, if any.
func (m *Manager) DisconnectSource() {
	m.mu.Lock()
	loop := m.loop
	m.loop = nil
	m.mu.Unlock()

	if loop != nil {
		loop.Disconnect()
	}
}

// StartTicks launches the periodic work: autosave while active, status
// derivation, and the inactivity watchdog.
func (m *Manager) StartTicks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched != nil {
		return
	}
	m.sched = scheduler.New()
	m.sched.Add("autosave", m.cfg.AutosaveInterval, m.autosaveTick)
	m.sched.Add("status", m.cfg.StatusTick, m.statusTick)
	m.sched.Add("inactivity", m.cfg.InactivityPoll, m.InactivityTick)
	m.sched.Start()
}

func (m *Manager) autosaveTick(now time.Time) {
	m.mu.Lock()
	active := m.doc.Status == models.SessionActive
	m.mu.Unlock()
	if !active || !m.HasUnsavedChanges() {
		return
	}
	if err := m.Save(context.Background()); err != nil {
		// Logged in Save; next tick retries.
		_ = err
	}
}

func (m *Manager) statusTick(now time.Time) {
	if m.registry.DeriveStatuses(now) {
		m.notifySession()
	}
}

// InactivityTick pauses the session after a long stretch without serial
// lines or UI activity. Exported so tests can drive the clock directly.
func (m *Manager) InactivityTick(now time.Time) {
	m.mu.Lock()
	idle := m.doc.Status == models.SessionActive && now.Sub(m.lastActivity) >= m.cfg.InactivityTimeout
	m.mu.Unlock()
	if !idle {
		return
	}

	log.Printf("session %s: paused after inactivity", m.doc.ID)
	if err := m.Pause(context.Background()); err != nil {
		log.Printf("session %s: inactivity pause failed: %v", m.doc.ID, err)
		return
	}
	m.notify(Update{Type: "inactivity_pause", SessionID: m.doc.ID, Message: "session paused after inactivity"})
}

// Close shuts the session down: ticks stop, the serial source disconnects,
// and a final save runs. If the save fails the document is snapshotted
// locally so the next startup can reconcile it.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	sched := m.sched
	m.sched = nil
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	m.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	m.DisconnectSource()

	saveErr := m.Save(ctx)

	m.mu.Lock()
	m.closed = true
	doc := m.composeLocked()
	m.mu.Unlock()

	if m.snapshots == nil {
		return
	}
	if saveErr != nil {
		data, err := json.Marshal(doc)
		if err == nil {
			if err := m.snapshots.Put(ctx, doc.ID, data, m.cfg.Clock()); err != nil {
				log.Printf("session %s: snapshot write failed: %v", doc.ID, err)
			}
		}
		return
	}
	if err := m.snapshots.Delete(ctx, doc.ID); err != nil {
		log.Printf("session %s: snapshot cleanup failed: %v", doc.ID, err)
	}
}

// discard stops the manager without a final save, used when the session is
// being deleted.
func (m *Manager) discard() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sched := m.sched
	m.sched = nil
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	m.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	m.DisconnectSource()
}

func (m *Manager) notify(update Update) {
	if m.cfg.Notify != nil {
		m.cfg.Notify(update)
	}
}

func (m *Manager) notifySession() {
	doc := m.Document()
	m.notify(Update{Type: "session_update", SessionID: doc.ID, Session: &doc})
}
