package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/jobs"
)

// Job types handled by the enrichment queue.
const (
	EnrichmentJobRefresh = "ticket_class.refresh"
	EnrichmentJobPurge   = "ticket_class.purge"
)

const ticketClassCachePrefix = "ticket_class:"

type ticketClassReader interface {
	FindByID(ctx context.Context, id string) (*models.TicketClass, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.TicketClass, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// TicketClassEnrichmentConfig tunes enrichment caching.
type TicketClassEnrichmentConfig struct {
	CacheTTL time.Duration
}

// TicketClassEnrichmentService resolves ticket class ids into their persisted
// records, reading through the cache, and keeps the cache fresh in the background.
type TicketClassEnrichmentService struct {
	repo   ticketClassReader
	cache  *CacheService
	ttl    time.Duration
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewTicketClassEnrichmentService wires the enrichment service.
func NewTicketClassEnrichmentService(repo ticketClassReader, cache *CacheService, logger *zap.Logger, cfg TicketClassEnrichmentConfig) *TicketClassEnrichmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &TicketClassEnrichmentService{repo: repo, cache: cache, ttl: cfg.CacheTTL, logger: logger}
}

// AttachQueue routes scheduled refreshes and purges through a job queue. Without
// a queue they run inline.
func (s *TicketClassEnrichmentService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Lookup resolves a single ticket class.
func (s *TicketClassEnrichmentService) Lookup(ctx context.Context, id string) (*models.TicketClass, error) {
	var cached models.TicketClass
	if hit, _ := s.cache.Get(ctx, cacheKey(id), &cached); hit {
		return &cached, nil
	}
	tc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ticket class")
	}
	_ = s.cache.Set(ctx, cacheKey(id), tc, s.ttl)
	return tc, nil
}

// LookupMany resolves several ticket classes. Ids that do not exist are absent
// from the result.
func (s *TicketClassEnrichmentService) LookupMany(ctx context.Context, ids []string) (map[string]models.TicketClass, error) {
	out := make(map[string]models.TicketClass, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		var cached models.TicketClass
		if hit, _ := s.cache.Get(ctx, cacheKey(id), &cached); hit {
			out[id] = cached
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	loaded, err := s.repo.ListByIDs(ctx, missing)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ticket classes")
	}
	for _, tc := range loaded {
		out[tc.ID] = tc
		_ = s.cache.Set(ctx, cacheKey(tc.ID), tc, s.ttl)
	}
	return out, nil
}

// Refresh reloads the given ticket classes into the cache and drops ids that no
// longer exist.
func (s *TicketClassEnrichmentService) Refresh(ctx context.Context, ids ...string) error {
	if len(ids) == 0 || !s.cache.Enabled() {
		return nil
	}
	loaded, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("refresh ticket classes: %w", err)
	}
	found := make(map[string]struct{}, len(loaded))
	for _, tc := range loaded {
		found[tc.ID] = struct{}{}
		if err := s.cache.Set(ctx, cacheKey(tc.ID), tc, s.ttl); err != nil {
			return err
		}
	}
	stale := make([]string, 0)
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			stale = append(stale, id)
		}
	}
	return s.Purge(ctx, stale...)
}

// Purge evicts cached ticket classes.
func (s *TicketClassEnrichmentService) Purge(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := s.cache.Invalidate(ctx, cacheKey(id)); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleRefresh refreshes cached ticket classes in the background.
func (s *TicketClassEnrichmentService) ScheduleRefresh(ids ...string) {
	s.schedule(EnrichmentJobRefresh, ids)
}

// SchedulePurge evicts cached ticket classes in the background.
func (s *TicketClassEnrichmentService) SchedulePurge(ids ...string) {
	s.schedule(EnrichmentJobPurge, ids)
}

// HandleJob executes a queued enrichment job.
func (s *TicketClassEnrichmentService) HandleJob(ctx context.Context, job jobs.Job) error {
	ids, ok := job.Payload.([]string)
	if !ok {
		s.logger.Warn("enrichment job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	switch job.Type {
	case EnrichmentJobRefresh:
		return s.Refresh(ctx, ids...)
	case EnrichmentJobPurge:
		return s.Purge(ctx, ids...)
	default:
		s.logger.Warn("unknown enrichment job type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
}

func (s *TicketClassEnrichmentService) schedule(jobType string, ids []string) {
	if len(ids) == 0 || !s.cache.Enabled() {
		return
	}
	job := jobs.Job{ID: fmt.Sprintf("%s-%d", jobType, time.Now().UnixNano()), Type: jobType, Payload: append([]string(nil), ids...)}
	if s.queue != nil {
		err := s.queue.Enqueue(job)
		if err == nil {
			return
		}
		s.logger.Warn("enrichment job not queued, running inline", zap.String("type", jobType), zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.HandleJob(ctx, job); err != nil {
		s.logger.Warn("enrichment job failed", zap.String("type", jobType), zap.Error(err))
	}
}

func cacheKey(id string) string {
	return ticketClassCachePrefix + id
}
