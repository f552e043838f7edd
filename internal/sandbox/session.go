package sandbox

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultSessionIdle is the idle window after which an unused sandbox
// session's workspace is reaped.
const DefaultSessionIdle = 30 * time.Minute

// Session binds a session_id to a reusable sandbox environment: its
// workspace directory persists across calls to execute_code so that files
// written or packages installed in one call are visible to the next.
type Session struct {
	ID         string
	Workspace  string
	CreatedAt  time.Time
	lastUsedAt time.Time
	invalid    bool
	refs       int
	mu         sync.Mutex
}

// WorkspacePath returns the session's current workspace directory, or ""
// if none has been assigned yet.
func (s *Session) WorkspacePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Workspace
}

// ClaimWorkspace assigns path as the session's workspace if none is set
// yet, and reports whether this call made the assignment (the caller that
// wins the race is responsible for preparing the directory).
func (s *Session) ClaimWorkspace(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Workspace != "" {
		return false
	}
	s.Workspace = path
	return true
}

// Invalidate marks the session down; subsequent Acquire calls for the same
// ID start a fresh environment. Set when the backend reports a crash.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
}

// SessionManager tracks live sandbox sessions and reaps idle ones.
type SessionManager struct {
	idle     time.Duration
	mu       sync.Mutex
	sessions map[string]*Session
	cron     *cron.Cron
	entryID  cron.EntryID
}

// NewSessionManager creates a manager and starts its idle-reap schedule.
// idle <= 0 uses DefaultSessionIdle.
func NewSessionManager(idle time.Duration) *SessionManager {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}

	m := &SessionManager{
		idle:     idle,
		sessions: make(map[string]*Session),
		cron:     cron.New(),
	}

	// Sweep on a fixed cadence rather than per-session timers: bounds the
	// number of goroutines regardless of session count.
	id, err := m.cron.AddFunc("@every 1m", m.reapIdle)
	if err == nil {
		m.entryID = id
	}
	m.cron.Start()

	return m
}

// Acquire returns the session for id, creating one if id is empty or
// unseen. A request with no session_id gets a throwaway, single-use
// session (transient: true) whose workspace the caller is expected to
// clean up itself.
func (m *SessionManager) Acquire(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		return &Session{ID: uuid.NewString(), CreatedAt: time.Now(), lastUsedAt: time.Now()}, nil
	}

	sess, ok := m.sessions[id]
	if ok {
		sess.mu.Lock()
		invalid := sess.invalid
		sess.mu.Unlock()
		if invalid {
			m.discard(id)
			ok = false
		}
	}

	if !ok {
		sess = &Session{ID: id, CreatedAt: time.Now(), lastUsedAt: time.Now()}
		m.sessions[id] = sess
	}

	sess.mu.Lock()
	sess.refs++
	sess.lastUsedAt = time.Now()
	sess.mu.Unlock()

	return sess, nil
}

// Release marks the session as no longer in active use, making it eligible
// for idle reaping once the configured window elapses.
func (m *SessionManager) Release(sess *Session) {
	if sess == nil || sess.ID == "" {
		return
	}
	sess.mu.Lock()
	if sess.refs > 0 {
		sess.refs--
	}
	sess.lastUsedAt = time.Now()
	invalid := sess.invalid
	sess.mu.Unlock()

	if invalid {
		m.mu.Lock()
		m.discard(sess.ID)
		m.mu.Unlock()
	}
}

// discard removes a session and cleans up its workspace. Caller holds m.mu.
func (m *SessionManager) discard(id string) {
	sess, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if sess.Workspace != "" {
		_ = os.RemoveAll(sess.Workspace)
	}
}

// reapIdle removes sessions unused for longer than the idle window.
func (m *SessionManager) reapIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.idle)
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.refs == 0 && sess.lastUsedAt.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			m.discard(id)
		}
	}
}

// Stats reports the number of live sessions, for health/diagnostics.
func (m *SessionManager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"sessions": len(m.sessions),
		"idle":     m.idle.String(),
	}
}

// Close stops the idle-reap schedule and removes all session workspaces.
func (m *SessionManager) Close() {
	m.cron.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.discard(id)
	}
}
