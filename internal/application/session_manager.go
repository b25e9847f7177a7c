package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/logging"
)

// DefaultIdleTTL is how long an untouched session stays in memory.
const DefaultIdleTTL = 30 * time.Minute

// ManagerConfig configures the SessionManager.
type ManagerConfig struct {
	Options Options
	IdleTTL time.Duration
}

// StartSessionCommand opens a scanner session on a device.
type StartSessionCommand struct {
	Operation  domain.Operation
	DeviceID   string
	OperatorID string
}

// SessionManager owns the live orchestrators, one per device session.
// Sessions are independent; the manager lock only guards the map.
type SessionManager struct {
	config   ManagerConfig
	deps     Dependencies
	feedback FeedbackFactory
	logger   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Orchestrator
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(config ManagerConfig, deps Dependencies, feedback FeedbackFactory) *SessionManager {
	deps = deps.withDefaults()
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultIdleTTL
	}
	if feedback == nil {
		feedback = func(string) Feedback { return silentFeedback{} }
	}
	return &SessionManager{
		config:   config,
		deps:     deps,
		feedback: feedback,
		logger:   deps.Logger.WithComponent("session-manager"),
		sessions: make(map[string]*Orchestrator),
	}
}

// Start creates a new session.
func (m *SessionManager) Start(ctx context.Context, cmd StartSessionCommand) (*Orchestrator, error) {
	id := uuid.NewString()
	info := SessionInfo{
		ID:         id,
		DeviceID:   cmd.DeviceID,
		OperatorID: cmd.OperatorID,
		Operation:  cmd.Operation,
		CreatedAt:  m.deps.Now().UTC(),
	}

	o, err := NewOrchestrator(info, m.deps, m.feedback(id), m.config.Options)
	if err != nil {
		return nil, err
	}

	if m.deps.Store != nil {
		if err := m.deps.Store.Save(ctx, o.Record()); err != nil {
			m.logger.WithError(err).Warn("Failed to persist new session", "sessionId", id)
		}
	}

	m.mu.Lock()
	m.sessions[id] = o
	active := len(m.sessions)
	m.mu.Unlock()
	m.deps.Metrics.SetSessionsActive(active)

	m.logger.Info("Session started",
		"sessionId", id,
		"operation", string(cmd.Operation),
		"deviceId", cmd.DeviceID,
		"operatorId", cmd.OperatorID,
	)
	return o, nil
}

// Get returns a live session, resuming it from the snapshot store when it is
// not in memory.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*Orchestrator, error) {
	m.mu.Lock()
	o, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return o, nil
	}

	if m.deps.Store == nil {
		return nil, ErrSessionNotFound
	}
	rec, err := m.deps.Store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	restored, err := RestoreOrchestrator(ctx, *rec, m.deps, m.feedback(sessionID), m.config.Options)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Another request may have resumed the same session meanwhile.
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		restored.Close()
		return existing, nil
	}
	m.sessions[sessionID] = restored
	active := len(m.sessions)
	m.mu.Unlock()
	m.deps.Metrics.SetSessionsActive(active)

	return restored, nil
}

// Finish closes a session and removes its snapshot.
func (m *SessionManager) Finish(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	o, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	active := len(m.sessions)
	m.mu.Unlock()

	if ok {
		o.finish()
		m.deps.Metrics.SetSessionsActive(active)
	}

	if m.deps.Store != nil {
		if err := m.deps.Store.Delete(ctx, sessionID); err != nil {
			if errors.Is(err, ErrSessionNotFound) && ok {
				return nil
			}
			return err
		}
		m.logger.Info("Session finished", "sessionId", sessionID)
		return nil
	}
	if !ok {
		return ErrSessionNotFound
	}
	m.logger.Info("Session finished", "sessionId", sessionID)
	return nil
}

// EvictIdle drops in-memory sessions idle for longer than the TTL. Their
// snapshots stay in the store so a device can resume later.
func (m *SessionManager) EvictIdle() int {
	cutoff := m.deps.Now().Add(-m.config.IdleTTL)

	m.mu.Lock()
	var idle []*Orchestrator
	for id, o := range m.sessions {
		if o.LastActive().Before(cutoff) {
			idle = append(idle, o)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, o := range idle {
		o.Close()
	}
	if len(idle) > 0 {
		m.deps.Metrics.SetSessionsActive(active)
		m.logger.Info("Evicted idle sessions", "count", len(idle), "active", active)
	}
	return len(idle)
}

// RunSweeper evicts idle sessions every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.config.IdleTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// SessionSummary describes a stored session a device may resume.
type SessionSummary struct {
	SessionID string           `json:"sessionId"`
	Operation domain.Operation `json:"operation"`
	Phase     domain.Phase     `json:"phase"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Resumable lists the stored sessions of deviceID, newest first. It returns
// nothing when the store cannot list by device.
func (m *SessionManager) Resumable(ctx context.Context, deviceID string, limit int64) ([]SessionSummary, error) {
	lister, ok := m.deps.Store.(SessionLister)
	if !ok {
		return []SessionSummary{}, nil
	}
	records, err := lister.FindByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, SessionSummary{
			SessionID: rec.SessionID,
			Operation: rec.State.Operation,
			Phase:     rec.State.Phase,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

// Active returns the number of live sessions.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close shuts down every live session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Orchestrator)
	m.mu.Unlock()

	for _, o := range sessions {
		o.Close()
	}
	m.deps.Metrics.SetSessionsActive(0)
}
