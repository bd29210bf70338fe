package observability

import (
	"sort"
	"sync"
	"time"
)

type Role string

const (
	RoleIdle       Role = "IDLE"
	RoleSupervisor Role = "SUPERVISOR"
	RoleReview     Role = "AWAITING_REVIEW"
	RoleExecutor   Role = "EXECUTOR"
	RoleReplanner  Role = "REPLANNER"
	RoleDone       Role = "DONE"
	RoleFailed     Role = "FAILED"
)

// SessionStatus is a snapshot of what one session is doing.
type SessionStatus struct {
	ThreadID   string
	Role       Role
	ActiveTask string
	UpdatedAt  time.Time
}

// Tracker keeps the live role of every session this process is driving.
type Tracker struct {
	mu            sync.RWMutex
	sessions      map[string]SessionStatus
	lastHeartbeat time.Time
	now           func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions:      make(map[string]SessionStatus),
		lastHeartbeat: time.Now(),
		now:           time.Now,
	}
}

// SetStatus records the current role and task for a session.
func (t *Tracker) SetStatus(threadID string, role Role, task string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[threadID] = SessionStatus{
		ThreadID:   threadID,
		Role:       role,
		ActiveTask: task,
		UpdatedAt:  t.now(),
	}
}

// GetStatus returns the session's last known status, or RoleIdle when unknown.
func (t *Tracker) GetStatus(threadID string) SessionStatus {
	if t == nil {
		return SessionStatus{ThreadID: threadID, Role: RoleIdle}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[threadID]
	if !ok {
		return SessionStatus{ThreadID: threadID, Role: RoleIdle}
	}
	return s
}

// Active lists sessions that are neither done nor failed, ordered by thread id.
func (t *Tracker) Active() []SessionStatus {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []SessionStatus
	for _, s := range t.sessions {
		if s.Role != RoleDone && s.Role != RoleFailed {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out
}

// Forget drops a session from the tracker.
func (t *Tracker) Forget(threadID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, threadID)
}

// Heartbeat updates the last heartbeat time.
func (t *Tracker) Heartbeat() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastHeartbeat = t.now()
}

func (t *Tracker) LastHeartbeat() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastHeartbeat
}
