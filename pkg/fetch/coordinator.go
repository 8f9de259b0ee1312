package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/batch"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrRetryExhausted reports batches still failing after the last retry round.
var ErrRetryExhausted = errors.New("retry rounds exhausted")

var (
	retryRoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drs_retry_rounds_total",
		Help: "Total number of retry rounds started",
	})

	unprocessedIMEIsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drs_unprocessed_imeis_total",
		Help: "Total number of IMEIs dropped after the retry budget was exhausted",
	})
)

// Config holds coordinator configuration.
type Config struct {
	// BatchSize is the number of IMEIs per core call (max 1000).
	BatchSize int

	// MaxGroups is the number of concurrent workers per round.
	MaxGroups int

	// MaxRetryRounds bounds the rounds run after the initial one.
	MaxRetryRounds int

	// Retry controls the backoff between rounds.
	Retry RetryConfig
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:      batch.DefaultSize,
		MaxGroups:      batch.DefaultMaxGroups,
		MaxRetryRounds: 10,
		Retry:          DefaultRetryConfig(),
	}
}

// Result is the outcome of one coordinated fetch.
type Result struct {
	// Records in completion order.
	Records []compliance.Record

	// Unprocessed holds the batches that failed in every round.
	Unprocessed [][]string

	// Submitted is the number of non-empty identifiers sent.
	Submitted int

	// RetryRounds is the number of retry rounds that ran.
	RetryRounds int
}

// UnprocessedIMEIs flattens Unprocessed.
func (r Result) UnprocessedIMEIs() []string {
	return batch.Flatten(r.Unprocessed)
}

// Err returns ErrRetryExhausted if some batches were never fetched.
func (r Result) Err() error {
	if len(r.Unprocessed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d imeis in %d batches unprocessed after %d retry rounds",
		ErrRetryExhausted, len(r.UnprocessedIMEIs()), len(r.Unprocessed), r.RetryRounds)
}

// Coordinator fans a list of IMEIs out over concurrent fetchers.
type Coordinator struct {
	fetcher *Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewCoordinator creates a coordinator; non-positive sizes fall back to the defaults.
func NewCoordinator(fetcher *Fetcher, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 || cfg.BatchSize > batch.DefaultSize {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = def.MaxGroups
	}
	if cfg.MaxRetryRounds < 0 {
		cfg.MaxRetryRounds = def.MaxRetryRounds
	}

	return &Coordinator{
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger("coordinator"),
	}
}

// Run fetches records for all imeis. Batches failing in every round are
// returned in Result.Unprocessed; Run itself never fails.
func (c *Coordinator) Run(ctx context.Context, imeis []string) Result {
	start := time.Now()
	ids := batch.Compact(imeis)
	result := Result{Submitted: len(ids)}

	if skipped := len(imeis) - len(ids); skipped > 0 {
		c.logger.Warn().Int("skipped", skipped).Msg("Skipping empty identifiers")
	}
	if len(ids) == 0 {
		return result
	}

	groups := batch.Distribute(batch.Split(ids, c.config.BatchSize), c.config.MaxGroups)
	c.logger.Info().
		Int("imeis", len(ids)).
		Int("groups", len(groups)).
		Msg("Starting concurrent imei fetch")

	records, failed := c.round(ctx, groups)
	result.Records = records

	for len(failed) > 0 && result.RetryRounds < c.config.MaxRetryRounds {
		if err := c.config.Retry.wait(ctx, result.RetryRounds+1); err != nil {
			c.logger.Warn().Err(err).Msg("Retry loop stopped")
			break
		}

		result.RetryRounds++
		retryRoundsTotal.Inc()
		c.logger.Info().
			Int("round", result.RetryRounds).
			Int("failed_batches", len(failed)).
			Msg("Retrying failed imei batches")

		records, failed = c.round(ctx, batch.Distribute(failed, c.config.MaxGroups))
		result.Records = append(result.Records, records...)
	}

	result.Unprocessed = failed
	if err := result.Err(); err != nil {
		unprocessedIMEIsTotal.Add(float64(len(result.UnprocessedIMEIs())))
		c.logger.Error().Err(err).Msg("Dropping unprocessed imeis")
	}

	c.logger.Info().
		Int("imeis", len(ids)).
		Int("records", len(result.Records)).
		Int("retry_rounds", result.RetryRounds).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result
}

// round runs one worker per group and joins them before merging.
func (c *Coordinator) round(ctx context.Context, groups []batch.Group) ([]compliance.Record, [][]string) {
	records := make([][]compliance.Record, len(groups))
	failed := make([][][]string, len(groups))

	var g errgroup.Group
	g.SetLimit(c.config.MaxGroups)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			records[i], failed[i] = c.fetcher.Drain(ctx, i, group)
			return nil
		})
	}
	_ = g.Wait()

	var merged []compliance.Record
	var retry [][]string
	for i := range groups {
		merged = append(merged, records[i]...)
		retry = append(retry, failed[i]...)
	}
	return merged, retry
}
