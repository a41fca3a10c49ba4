package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/jobs"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	raw, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

type ticketReaderStub struct {
	classes   map[string]models.TicketClass
	findCalls int
	listCalls [][]string
	err       error
}

func (s *ticketReaderStub) FindByID(ctx context.Context, id string) (*models.TicketClass, error) {
	s.findCalls++
	if s.err != nil {
		return nil, s.err
	}
	tc, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &tc, nil
}

func (s *ticketReaderStub) ListByIDs(ctx context.Context, ids []string) ([]models.TicketClass, error) {
	s.listCalls = append(s.listCalls, append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.TicketClass, 0, len(ids))
	for _, id := range ids {
		if tc, ok := s.classes[id]; ok {
			out = append(out, tc)
		}
	}
	return out, nil
}

type enqueuerStub struct {
	jobs []jobs.Job
	err  error
}

func (e *enqueuerStub) Enqueue(job jobs.Job) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

func newEnrichmentFixture(cacheEnabled bool) (*TicketClassEnrichmentService, *ticketReaderStub, *memoryCacheRepo, *MetricsService) {
	repo := &ticketReaderStub{classes: map[string]models.TicketClass{
		"tc-1": bdiTicketClass("tc-1", "stu-1"),
		"tc-2": bdiTicketClass("tc-2"),
	}}
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, nil, CacheConfig{Enabled: cacheEnabled, DefaultTTL: time.Minute})
	svc := NewTicketClassEnrichmentService(repo, cache, nil, TicketClassEnrichmentConfig{CacheTTL: time.Minute})
	return svc, repo, cacheRepo, metrics
}

func TestTicketClassEnrichmentLookupReadsThroughCache(t *testing.T) {
	svc, repo, cacheRepo, metrics := newEnrichmentFixture(true)

	tc, err := svc.Lookup(context.Background(), "tc-1")
	require.NoError(t, err)
	assert.Equal(t, "tc-1", tc.ID)
	assert.True(t, cacheRepo.has("ticket_class:tc-1"))

	tc, err = svc.Lookup(context.Background(), "tc-1")
	require.NoError(t, err)
	assert.Equal(t, 20, tc.Cupos)
	assert.Equal(t, 1, repo.findCalls)

	snapshot := metrics.Snapshot()
	assert.EqualValues(t, 1, snapshot.CacheHits)
	assert.EqualValues(t, 1, snapshot.CacheMisses)
}

func TestTicketClassEnrichmentLookupNotFound(t *testing.T) {
	svc, _, _, _ := newEnrichmentFixture(true)
	_, err := svc.Lookup(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTicketClassEnrichmentLookupManyBatchesMisses(t *testing.T) {
	svc, repo, _, _ := newEnrichmentFixture(true)
	_, err := svc.Lookup(context.Background(), "tc-1")
	require.NoError(t, err)

	classes, err := svc.LookupMany(context.Background(), []string{"tc-1", "tc-2", "tc-3"})
	require.NoError(t, err)
	assert.Len(t, classes, 2)
	require.Len(t, repo.listCalls, 1)
	assert.Equal(t, []string{"tc-2", "tc-3"}, repo.listCalls[0])
}

func TestTicketClassEnrichmentLookupManyWithoutCache(t *testing.T) {
	svc, repo, cacheRepo, _ := newEnrichmentFixture(false)
	classes, err := svc.LookupMany(context.Background(), []string{"tc-1"})
	require.NoError(t, err)
	assert.Contains(t, classes, "tc-1")
	assert.Len(t, repo.listCalls, 1)
	assert.False(t, cacheRepo.has("ticket_class:tc-1"))
}

func TestTicketClassEnrichmentLookupManyRepositoryError(t *testing.T) {
	svc, repo, _, _ := newEnrichmentFixture(true)
	repo.err = errors.New("db down")
	_, err := svc.LookupMany(context.Background(), []string{"tc-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTicketClassEnrichmentRefreshDropsStaleEntries(t *testing.T) {
	svc, _, cacheRepo, _ := newEnrichmentFixture(true)
	require.NoError(t, cacheRepo.Set(context.Background(), "ticket_class:gone", models.TicketClass{ID: "gone"}, time.Minute))

	require.NoError(t, svc.Refresh(context.Background(), "tc-1", "gone"))
	assert.True(t, cacheRepo.has("ticket_class:tc-1"))
	assert.False(t, cacheRepo.has("ticket_class:gone"))
}

func TestTicketClassEnrichmentHandleJob(t *testing.T) {
	svc, _, cacheRepo, _ := newEnrichmentFixture(true)

	err := svc.HandleJob(context.Background(), jobs.Job{ID: "1", Type: EnrichmentJobRefresh, Payload: []string{"tc-2"}})
	require.NoError(t, err)
	assert.True(t, cacheRepo.has("ticket_class:tc-2"))

	err = svc.HandleJob(context.Background(), jobs.Job{ID: "2", Type: EnrichmentJobPurge, Payload: []string{"tc-2"}})
	require.NoError(t, err)
	assert.False(t, cacheRepo.has("ticket_class:tc-2"))

	assert.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "3", Type: "other", Payload: []string{"x"}}))
	assert.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "4", Type: EnrichmentJobPurge, Payload: 42}))
}

func TestTicketClassEnrichmentScheduleUsesQueue(t *testing.T) {
	svc, _, cacheRepo, _ := newEnrichmentFixture(true)
	queue := &enqueuerStub{}
	svc.AttachQueue(queue)

	svc.ScheduleRefresh("tc-1")
	svc.SchedulePurge()

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, EnrichmentJobRefresh, queue.jobs[0].Type)
	assert.Equal(t, []string{"tc-1"}, queue.jobs[0].Payload)
	assert.False(t, cacheRepo.has("ticket_class:tc-1"))
}

func TestTicketClassEnrichmentScheduleFallsBackInline(t *testing.T) {
	svc, _, cacheRepo, _ := newEnrichmentFixture(true)
	svc.AttachQueue(&enqueuerStub{err: jobs.ErrQueueFull})

	svc.ScheduleRefresh("tc-1")
	assert.True(t, cacheRepo.has("ticket_class:tc-1"))
}
