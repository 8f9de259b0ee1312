// Package bulk runs a DRS bulk compliance job: fetch every IMEI from the
// core system, classify the records and write the compliance reports.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/client"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/config"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/fetch"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/logging"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/ratelimit"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/report"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Job computes compliance summaries for IMEI lists.
type Job struct {
	coordinator *fetch.Coordinator
	aggregator  *report.Aggregator
	redis       *redis.Client
	logger      zerolog.Logger
}

// NewJob assembles a job from an existing core client.
func NewJob(core fetch.BatchClient, fetchCfg fetch.Config, aggregator *report.Aggregator) *Job {
	return &Job{
		coordinator: fetch.NewCoordinator(fetch.NewFetcher(core), fetchCfg),
		aggregator:  aggregator,
		logger:      logging.NewLogger("bulk"),
	}
}

// New builds a job from cfg. With REDIS_ADDR set, core requests are paced
// by a budget shared through Redis; otherwise by a process-local limiter.
func New(ctx context.Context, cfg config.Config) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limiter, rdb, err := newLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := client.DefaultConfig(cfg.CoreBaseURL)
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.Limiter = limiter

	core, err := client.New(clientCfg)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, fmt.Errorf("create core client: %w", err)
	}

	aggregator := report.NewAggregator(compliance.NewClassifier(cfg.Conditions), cfg.Uploads)
	job := NewJob(core, cfg.Fetch(), aggregator)
	job.redis = rdb
	return job, nil
}

func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, *redis.Client, error) {
	if cfg.RateLimit <= 0 {
		return ratelimit.Unlimited(), nil, nil
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocal(cfg.RateLimit, cfg.RateBurst), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}

	limit := int(math.Ceil(cfg.RateLimit))
	limiter, err := ratelimit.NewRedisLimiter(rdb, limit, time.Second, logging.NewLogger("ratelimit"))
	if err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return limiter, rdb, nil
}

// GetSummary fetches imeis, classifies them and writes the reports for
// trackingID. Batches that keep failing are dropped and only counted in
// Summary.UnprocessedIMEI. Cancellation, malformed records and report
// write failures fail the whole job.
func (j *Job) GetSummary(ctx context.Context, imeis []string, trackingID string) (report.Summary, error) {
	logger := logging.WithJob(j.logger, trackingID)
	start := time.Now()
	logger.Info().Int("imeis", len(imeis)).Msg("Bulk job started")

	result := j.coordinator.Run(ctx, imeis)
	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("Bulk job interrupted")
		return report.Summary{}, fmt.Errorf("bulk job %s: %w", trackingID, err)
	}
	if err := result.Err(); err != nil {
		logger.Warn().Err(err).Msg("Continuing with fetched subset")
	}

	summary, err := j.aggregator.BuildSummary(result.Records, trackingID)
	if err != nil {
		logger.Error().Err(err).Msg("Bulk job failed")
		return report.Summary{}, fmt.Errorf("build summary: %w", err)
	}
	summary.UnprocessedIMEI = len(result.UnprocessedIMEIs())

	logger.Info().
		Int("verified_imei", summary.VerifiedIMEI).
		Int("unprocessed_imei", summary.UnprocessedIMEI).
		Int("retry_rounds", result.RetryRounds).
		Str("report", summary.CompliantReportName).
		Dur("duration", time.Since(start)).
		Msg("Bulk job finished")

	return summary, nil
}

// Close releases the Redis connection, if any.
func (j *Job) Close() error {
	if j.redis == nil {
		return nil
	}
	if err := j.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
