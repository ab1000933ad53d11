package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ontology/internal/pipeline"
	"ontology/internal/shared/constants"
	"ontology/pkg/cache"
	"ontology/pkg/logger"
)

// Runner is the slice of the pipeline orchestrator the HTTP surface needs.
type Runner interface {
	RunFullAnalytics(ctx context.Context, orgID uuid.UUID, opts pipeline.RunOptions) (*pipeline.Result, error)
	GetLatestAnalytics(ctx context.Context, orgID uuid.UUID) (*pipeline.LatestAnalytics, error)
	GetRun(ctx context.Context, orgID, runID uuid.UUID) (*pipeline.AnalyticsRun, error)
}

type CacheRecorder interface {
	RecordCacheOperation(operation, result string)
}

// Service defines the analytics service interface
type Service interface {
	RunAnalytics(ctx context.Context, orgID uuid.UUID) (*RunResponse, error)
	GetLatest(ctx context.Context, orgID uuid.UUID) (*pipeline.LatestAnalytics, error)
	GetRun(ctx context.Context, orgID, runID uuid.UUID) (*RunView, error)
}

type service struct {
	runner       Runner
	locker       RunLocker
	cacheService cache.Service
	metrics      CacheRecorder
	logger       *logger.Logger
}

// NewService creates a new analytics service instance. locker, cacheService
// and metrics may be nil.
func NewService(runner Runner, locker RunLocker, cacheService cache.Service, metrics CacheRecorder, log *logger.Logger) Service {
	if log == nil {
		log = logger.GetDefault()
	}
	return &service{runner: runner, locker: locker, cacheService: cacheService, metrics: metrics, logger: log}
}

func (s *service) RunAnalytics(ctx context.Context, orgID uuid.UUID) (*RunResponse, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, orgID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(ctx); err != nil {
				s.logger.WarnContext(ctx, "failed to release run lock",
					slog.String("organization_id", orgID.String()),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	started := time.Now()
	res, err := s.runner.RunFullAnalytics(ctx, orgID, pipeline.RunOptions{})
	if err != nil {
		return nil, err
	}
	return runResponseFrom(res, time.Since(started)), nil
}

// GetLatest reads through the cache. In-flight runs are cached briefly so
// pollers see progress; finished runs stay until the next run invalidates them.
func (s *service) GetLatest(ctx context.Context, orgID uuid.UUID) (*pipeline.LatestAnalytics, error) {
	cacheKey := constants.BuildAnalyticsLatestKey(orgID.String())

	var cached pipeline.LatestAnalytics
	if s.fromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	latest, err := s.runner.GetLatestAnalytics(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ttl := constants.TTL_ANALYTICS_LATEST
	if !latest.Status.IsFinal() {
		ttl = constants.TTL_ANALYTICS_RUNNING
	}
	s.toCache(ctx, cacheKey, latest, ttl)
	return latest, nil
}

func (s *service) GetRun(ctx context.Context, orgID, runID uuid.UUID) (*RunView, error) {
	cacheKey := constants.BuildAnalyticsRunKey(orgID.String(), runID.String())

	var cached RunView
	if s.fromCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	run, err := s.runner.GetRun(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	view := runViewFrom(run)
	// a running row changes after every step
	if run.Status.IsFinal() {
		s.toCache(ctx, cacheKey, view, constants.TTL_ANALYTICS_RUN)
	}
	return view, nil
}

func (s *service) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cacheService == nil {
		return false
	}
	err := s.cacheService.Get(ctx, key, dest)
	switch {
	case err == nil:
		s.record("get", "hit")
		return true
	case errors.Is(err, cache.ErrCacheMiss):
		s.record("get", "miss")
	default:
		s.record("get", "error")
		s.logger.WarnContext(ctx, "failed to read analytics cache",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return false
}

func (s *service) toCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cacheService == nil {
		return
	}
	if err := s.cacheService.Set(ctx, key, value, ttl); err != nil {
		s.record("set", "error")
		s.logger.WarnContext(ctx, "failed to cache analytics",
			slog.String("key", key),
			slog.String("error", fmt.Sprint(err)),
		)
		return
	}
	s.record("set", "ok")
}

func (s *service) record(op, result string) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(op, result)
	}
}
