package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type sessionSweeper interface {
	Sweep() int
	Len() int
}

// SessionJanitor periodically evicts expired edit sessions.
type SessionJanitor struct {
	store    sessionSweeper
	schedule string
	metrics  *MetricsService
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewSessionJanitor builds a janitor running on the given cron spec, e.g. "@every 5m".
func NewSessionJanitor(store sessionSweeper, schedule string, metrics *MetricsService, logger *zap.Logger) *SessionJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 5m"
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &SessionJanitor{
		store:    store,
		schedule: schedule,
		metrics:  metrics,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)), cron.WithLogger(cronLogger)),
	}
}

// Start registers the sweep and starts the scheduler.
func (j *SessionJanitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce() }); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("session janitor started", zap.String("schedule", j.schedule))
	return nil
}

// Stop halts the scheduler. The returned context is done once a running sweep finishes.
func (j *SessionJanitor) Stop() context.Context {
	return j.cron.Stop()
}

// RunOnce sweeps expired sessions immediately.
func (j *SessionJanitor) RunOnce() int {
	evicted := j.store.Sweep()
	remaining := j.store.Len()
	j.metrics.SetActiveSessions(remaining)
	if evicted > 0 {
		j.logger.Info("expired schedule sessions evicted", zap.Int("evicted", evicted), zap.Int("remaining", remaining))
	}
	return evicted
}
