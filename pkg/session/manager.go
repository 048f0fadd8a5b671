package session

import (
	"context"
	"sync"
	"time"

	"interview-coach/pkg/errors"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/realtime"
	"interview-coach/pkg/scoring"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ManagerConfig holds session manager configuration
type ManagerConfig struct {
	MaxSessions     int
	Retention       time.Duration
	CleanupInterval time.Duration
	Runner          RunnerConfig
	Clock           realtime.Clock
}

// SessionInfo represents a session with additional management data
type SessionInfo struct {
	Runner    *Runner
	CreatedAt time.Time
	EndedAt   time.Time
	Summary   *scoring.SessionSummary
}

// Ended reports whether the session has produced its summary
func (s *SessionInfo) Ended() bool {
	return !s.EndedAt.IsZero()
}

// ManagerStats is a point-in-time view of the manager
type ManagerStats struct {
	ActiveSessions int           `json:"active_sessions"`
	EndedSessions  int           `json:"ended_sessions"`
	MaxSessions    int           `json:"max_sessions"`
	Retention      time.Duration `json:"retention"`
	LastChecked    time.Time     `json:"last_checked"`
}

// Manager owns every session runner on this process
type Manager struct {
	logger   *logrus.Logger
	config   ManagerConfig
	sinks    []UpdateSink
	sessions map[string]*SessionInfo
	mutex    sync.RWMutex

	ctx           context.Context
	cancel        context.CancelFunc
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewManager creates a session manager. Sinks are attached to every session it creates.
func NewManager(config ManagerConfig, logger *logrus.Logger, sinks ...UpdateSink) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Retention <= 0 {
		config.Retention = 30 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		logger:   logger,
		config:   config,
		sinks:    sinks,
		sessions: make(map[string]*SessionInfo),
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
	}

	manager.cleanupTicker = time.NewTicker(config.CleanupInterval)
	go manager.cleanupLoop()

	logger.WithFields(logrus.Fields{
		"max_sessions":     config.MaxSessions,
		"retention":        config.Retention,
		"cleanup_interval": config.CleanupInterval,
		"tick_interval":    config.Runner.TickInterval,
	}).Info("Session manager initialized")

	return manager
}

// CreateSession starts a runner under a fresh id. Extra sinks apply to this session only.
func (m *Manager) CreateSession(extra ...UpdateSink) (*Runner, error) {
	id := uuid.New().String()

	m.mutex.Lock()
	active := m.activeCountLocked()
	if m.config.MaxSessions > 0 && active >= m.config.MaxSessions {
		m.mutex.Unlock()
		return nil, errors.NewInvalidArgument("maximum concurrent sessions reached", map[string]interface{}{
			"max_sessions": m.config.MaxSessions,
		})
	}

	sinks := make([]UpdateSink, 0, len(m.sinks)+len(extra)+1)
	sinks = append(sinks, m.sinks...)
	sinks = append(sinks, extra...)
	sinks = append(sinks, &lifecycleSink{manager: m})

	runner := NewRunner(id, m.config.Runner, m.logger, sinks...)
	m.sessions[id] = &SessionInfo{Runner: runner, CreatedAt: m.config.Clock()}
	active++
	m.mutex.Unlock()

	runner.Start(m.ctx)
	metrics.SetSessionsActive(active)

	m.logger.WithField("session_id", id).Info("Session created")
	return runner, nil
}

// GetSession looks up a runner by id
func (m *Manager) GetSession(sessionID string) (*Runner, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	info, exists := m.sessions[sessionID]
	if !exists {
		return nil, errors.NewNotFound("session not found", map[string]interface{}{"session_id": sessionID})
	}
	return info.Runner, nil
}

// RemoveSession stops a runner and forgets it
func (m *Manager) RemoveSession(sessionID string) {
	m.mutex.Lock()
	info, exists := m.sessions[sessionID]
	if exists {
		delete(m.sessions, sessionID)
	}
	active := m.activeCountLocked()
	m.mutex.Unlock()

	if !exists {
		return
	}
	info.Runner.Stop()
	metrics.SetSessionsActive(active)

	m.logger.WithField("session_id", sessionID).Info("Session removed")
}

// Release is called when a client disconnects. Ended sessions stay around
// for the retention window so their summary can still be fetched.
func (m *Manager) Release(sessionID string) {
	m.mutex.RLock()
	info, exists := m.sessions[sessionID]
	ended := exists && info.Ended()
	m.mutex.RUnlock()

	if !exists {
		return
	}
	if ended {
		info.Runner.Stop()
		return
	}
	m.RemoveSession(sessionID)
}

// Summary returns the summary of a session, live or ended
func (m *Manager) Summary(sessionID string) (scoring.SessionSummary, error) {
	m.mutex.RLock()
	info, exists := m.sessions[sessionID]
	var frozen *scoring.SessionSummary
	if exists {
		frozen = info.Summary
	}
	m.mutex.RUnlock()

	if !exists {
		return scoring.SessionSummary{}, errors.NewNotFound("session not found", map[string]interface{}{"session_id": sessionID})
	}
	if frozen != nil {
		return *frozen, nil
	}
	return info.Runner.Summary()
}

// ActiveSessionCount returns the number of sessions that have not ended
func (m *Manager) ActiveSessionCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	count := 0
	for _, info := range m.sessions {
		if !info.Ended() {
			count++
		}
	}
	return count
}

// GetStats returns session manager statistics
func (m *Manager) GetStats() ManagerStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	active := m.activeCountLocked()
	return ManagerStats{
		ActiveSessions: active,
		EndedSessions:  len(m.sessions) - active,
		MaxSessions:    m.config.MaxSessions,
		Retention:      m.config.Retention,
		LastChecked:    m.config.Clock(),
	}
}

// Shutdown stops every runner and the cleanup loop
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.logger.Info("Shutting down session manager")

		close(m.stopChan)
		m.cleanupTicker.Stop()

		m.mutex.Lock()
		runners := make([]*Runner, 0, len(m.sessions))
		for id, info := range m.sessions {
			runners = append(runners, info.Runner)
			delete(m.sessions, id)
		}
		m.mutex.Unlock()

		for _, runner := range runners {
			runner.Stop()
		}
		m.cancel()
		metrics.SetSessionsActive(0)

		m.logger.WithField("stopped_sessions", len(runners)).Info("Session manager shutdown complete")
	})
}

func (m *Manager) markEnded(sessionID string, summary scoring.SessionSummary) {
	m.mutex.Lock()
	if info, exists := m.sessions[sessionID]; exists && !info.Ended() {
		info.EndedAt = m.config.Clock()
		info.Summary = &summary
	}
	active := m.activeCountLocked()
	m.mutex.Unlock()

	metrics.SetSessionsActive(active)
}

// markRestarted returns an ended session to the live set once its runner
// starts a new interview
func (m *Manager) markRestarted(sessionID string) {
	m.mutex.Lock()
	info, exists := m.sessions[sessionID]
	restarted := exists && info.Ended()
	if restarted {
		info.EndedAt = time.Time{}
		info.Summary = nil
	}
	active := m.activeCountLocked()
	m.mutex.Unlock()

	if restarted {
		metrics.SetSessionsActive(active)
		m.logger.WithField("session_id", sessionID).Info("Ended session restarted")
	}
}

func (m *Manager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup drops ended sessions whose retention has expired
func (m *Manager) performCleanup() int {
	now := m.config.Clock()

	m.mutex.Lock()
	var expired []*Runner
	for id, info := range m.sessions {
		if info.Ended() && now.Sub(info.EndedAt) >= m.config.Retention {
			expired = append(expired, info.Runner)
			delete(m.sessions, id)
		}
	}
	m.mutex.Unlock()

	for _, runner := range expired {
		runner.Stop()
	}

	if len(expired) > 0 {
		m.logger.WithField("expired_sessions", len(expired)).Debug("Cleaned up ended sessions")
	}
	return len(expired)
}

// lifecycleSink lets the manager observe session ends
type lifecycleSink struct {
	manager *Manager
}

func (l *lifecycleSink) OnLiveUpdate(LiveUpdate)                   {}
func (l *lifecycleSink) OnRoundResult(string, scoring.RoundResult) {}

func (l *lifecycleSink) OnStateChange(status Status) {
	if status.State == StateRunning {
		l.manager.markRestarted(status.SessionID)
	}
}

func (l *lifecycleSink) OnSummary(sessionID string, summary scoring.SessionSummary) {
	l.manager.markEnded(sessionID, summary)
}
