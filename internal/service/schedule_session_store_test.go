package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/reconcile"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedSession(id string, clock *fakeClock) *reconcile.Session {
	session := reconcile.NewSession(id, "instructor-1", reconcile.WithClock(clock.Now))
	session.Begin(nil)
	return session
}

func TestSessionStoreWithRunsCallback(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(SessionStoreConfig{TTL: time.Hour, Now: clock.Now})
	store.Put(newClockedSession("s-1", clock))

	var seen string
	err := store.With("s-1", func(session *reconcile.Session) error {
		seen = session.InstructorID()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "instructor-1", seen)
}

func TestSessionStoreWithPropagatesCallbackError(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(SessionStoreConfig{TTL: time.Hour, Now: clock.Now})
	store.Put(newClockedSession("s-1", clock))

	boom := errors.New("boom")
	err := store.With("s-1", func(*reconcile.Session) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestSessionStoreUnknownSession(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	err := store.With("missing", func(*reconcile.Session) error { return nil })
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)
}

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(SessionStoreConfig{TTL: time.Hour, Now: clock.Now})
	store.Put(newClockedSession("s-1", clock))

	clock.Advance(2 * time.Hour)
	err := store.With("s-1", func(*reconcile.Session) error { return nil })
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)
	assert.Equal(t, 0, store.Len())
}

func TestSessionStoreSweepEvictsOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	var sizes []int
	store := NewSessionStore(SessionStoreConfig{
		TTL:      time.Hour,
		Now:      clock.Now,
		OnResize: func(count int) { sizes = append(sizes, count) },
	})
	store.Put(newClockedSession("old", clock))
	clock.Advance(50 * time.Minute)
	store.Put(newClockedSession("fresh", clock))
	clock.Advance(20 * time.Minute)

	evicted := store.Sweep()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []int{1, 2, 1}, sizes)

	err := store.With("fresh", func(*reconcile.Session) error { return nil })
	assert.NoError(t, err)
}

func TestSessionStoreSweepSkipsBusySessions(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(SessionStoreConfig{TTL: time.Hour, Now: clock.Now})
	store.Put(newClockedSession("busy", clock))

	err := store.With("busy", func(*reconcile.Session) error {
		clock.Advance(2 * time.Hour)
		assert.Equal(t, 0, store.Sweep())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Sweep())
}

func TestSessionStoreDelete(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(SessionStoreConfig{TTL: time.Hour, Now: clock.Now})
	store.Put(newClockedSession("s-1", clock))

	assert.True(t, store.Delete("s-1"))
	assert.False(t, store.Delete("s-1"))
	err := store.With("s-1", func(*reconcile.Session) error { return nil })
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)
}

type sweeperStub struct {
	evict  int
	remain int
	calls  int
}

func (s *sweeperStub) Sweep() int {
	s.calls++
	return s.evict
}

func (s *sweeperStub) Len() int { return s.remain }

func TestSessionJanitorRunOnce(t *testing.T) {
	store := &sweeperStub{evict: 2, remain: 3}
	metrics := NewMetricsService()
	janitor := NewSessionJanitor(store, "@every 1m", metrics, nil)

	assert.Equal(t, 2, janitor.RunOnce())
	assert.Equal(t, 1, store.calls)
	assert.EqualValues(t, 3, metrics.Snapshot().ActiveSessions)
}

func TestSessionJanitorRejectsInvalidSchedule(t *testing.T) {
	janitor := NewSessionJanitor(&sweeperStub{}, "not a schedule", nil, nil)
	require.Error(t, janitor.Start())
}

func TestSessionJanitorStartStop(t *testing.T) {
	janitor := NewSessionJanitor(&sweeperStub{}, "@every 1h", nil, nil)
	require.NoError(t, janitor.Start())
	ctx := janitor.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
