package session

import (
	"testing"
	"time"

	"interview-coach/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, maxSessions int, clock *fakeClock) *Manager {
	t.Helper()
	manager := NewManager(ManagerConfig{
		MaxSessions:     maxSessions,
		Retention:       10 * time.Minute,
		CleanupInterval: time.Hour,
		Runner:          RunnerConfig{Ticks: make(chan time.Time)},
		Clock:           clock.Now,
	}, quietLogger())
	t.Cleanup(manager.Shutdown)
	return manager
}

func TestManagerCreateAndGet(t *testing.T) {
	manager := newTestManager(t, 0, newFakeClock())

	runner, err := manager.CreateSession()
	require.NoError(t, err)
	assert.Len(t, runner.ID(), 36)

	found, err := manager.GetSession(runner.ID())
	require.NoError(t, err)
	assert.Same(t, runner, found)

	_, err = manager.GetSession("missing")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 1, manager.ActiveSessionCount())
}

func TestManagerEnforcesCapacity(t *testing.T) {
	manager := newTestManager(t, 1, newFakeClock())

	first, err := manager.CreateSession()
	require.NoError(t, err)

	_, err = manager.CreateSession()
	assert.True(t, errors.IsInvalidArgument(err))

	// ended sessions no longer count against the limit
	require.NoError(t, first.StartSession("general", []Question{{Text: "q", TimeLimitSeconds: 10}}))
	_, err = first.EndSession()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return manager.ActiveSessionCount() == 0 }, time.Second, 5*time.Millisecond)

	_, err = manager.CreateSession()
	assert.NoError(t, err)
}

func TestManagerKeepsEndedSummaryUntilRetentionExpires(t *testing.T) {
	clock := newFakeClock()
	manager := newTestManager(t, 0, clock)

	runner, err := manager.CreateSession()
	require.NoError(t, err)
	require.NoError(t, runner.StartSession("technical", []Question{{Text: "q", TimeLimitSeconds: 10}}))
	_, err = runner.SkipQuestion()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return manager.GetStats().EndedSessions == 1 }, time.Second, 5*time.Millisecond)

	// the client going away stops the runner but keeps the summary
	manager.Release(runner.ID())
	summary, err := manager.Summary(runner.ID())
	require.NoError(t, err)
	assert.Equal(t, "technical", summary.InterviewType)
	assert.Len(t, summary.Rounds, 1)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, manager.performCleanup())

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, manager.performCleanup())

	_, err = manager.Summary(runner.ID())
	assert.True(t, errors.IsNotFound(err))
}

func TestManagerReleaseDropsLiveSession(t *testing.T) {
	manager := newTestManager(t, 0, newFakeClock())

	runner, err := manager.CreateSession()
	require.NoError(t, err)
	require.NoError(t, runner.StartSession("general", []Question{{Text: "q", TimeLimitSeconds: 10}}))

	manager.Release(runner.ID())

	_, err = manager.GetSession(runner.ID())
	assert.Error(t, err)
	assert.Equal(t, 0, manager.ActiveSessionCount())
	<-runner.Done()
}

func TestManagerShutdownStopsRunners(t *testing.T) {
	manager := NewManager(ManagerConfig{Runner: RunnerConfig{Ticks: make(chan time.Time)}}, quietLogger())

	runner, err := manager.CreateSession()
	require.NoError(t, err)

	manager.Shutdown()
	manager.Shutdown()

	select {
	case <-runner.Done():
	case <-time.After(time.Second):
		t.Fatal("runner still running after shutdown")
	}
	assert.Equal(t, 0, manager.GetStats().ActiveSessions)
}

func TestManagerSinksReceiveSessionOutput(t *testing.T) {
	shared := &recordingSink{}
	manager := NewManager(ManagerConfig{Runner: RunnerConfig{Ticks: make(chan time.Time)}}, quietLogger(), shared)
	defer manager.Shutdown()

	perSession := &recordingSink{}
	runner, err := manager.CreateSession(perSession)
	require.NoError(t, err)

	require.NoError(t, runner.StartSession("general", []Question{{Text: "q", TimeLimitSeconds: 10}}))
	_, err = runner.SkipQuestion()
	require.NoError(t, err)

	for _, sink := range []*recordingSink{shared, perSession} {
		sink.mu.Lock()
		assert.Len(t, sink.results, 1)
		assert.Len(t, sink.summaries, 1)
		sink.mu.Unlock()
	}
}

func TestManagerRestartedSessionIsLiveAgain(t *testing.T) {
	manager := newTestManager(t, 0, newFakeClock())

	runner, err := manager.CreateSession()
	require.NoError(t, err)
	require.NoError(t, runner.StartSession("technical", []Question{{Text: "q", TimeLimitSeconds: 10}}))
	_, err = runner.SkipQuestion()
	require.NoError(t, err)
	require.Equal(t, 1, manager.GetStats().EndedSessions)

	require.NoError(t, runner.StartSession("behavioral", []Question{{Text: "again", TimeLimitSeconds: 10}}))

	stats := manager.GetStats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 0, stats.EndedSessions)

	summary, err := manager.Summary(runner.ID())
	require.NoError(t, err)
	assert.Equal(t, "behavioral", summary.InterviewType)
	assert.Empty(t, summary.Rounds)

	// ending the second interview freezes its own summary
	_, err = runner.SkipQuestion()
	require.NoError(t, err)
	summary, err = manager.Summary(runner.ID())
	require.NoError(t, err)
	assert.Equal(t, "behavioral", summary.InterviewType)
	assert.Len(t, summary.Rounds, 1)
	assert.Equal(t, 0, manager.ActiveSessionCount())
}
