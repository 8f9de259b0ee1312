package fetch

import (
	"context"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/batch"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var batchesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "drs_batches_failed_total",
	Help: "Total number of imei batches whose core call failed",
})

// BatchClient is the single-batch call the core client must implement.
type BatchClient interface {
	FetchBatch(ctx context.Context, imeis []string) ([]compliance.Record, error)
}

// Fetcher drains one work group against the core system.
type Fetcher struct {
	client BatchClient
	logger zerolog.Logger
}

// NewFetcher creates a fetcher backed by client.
func NewFetcher(client BatchClient) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logging.NewLogger("fetcher"),
	}
}

// Drain calls the core system once per batch of group, taking the last batch
// first, until the group is empty. Empty batches are skipped. Failed batches
// are returned rather than aborting the worker; once ctx is done the
// remaining batches are returned as failed without being sent.
func (f *Fetcher) Drain(ctx context.Context, workerID int, group batch.Group) (records []compliance.Record, failed [][]string) {
	pending := append(batch.Group(nil), group...)

	for len(pending) > 0 {
		imeis := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		if len(imeis) == 0 {
			continue
		}

		if ctx.Err() != nil {
			failed = append(failed, imeis)
			continue
		}

		got, err := f.client.FetchBatch(ctx, imeis)
		if err != nil {
			batchesFailedTotal.Inc()
			f.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("imeis", len(imeis)).
				Msg("imei batch failed, queued for retry")
			failed = append(failed, imeis)
			continue
		}
		records = append(records, got...)
	}

	f.logger.Debug().
		Int("worker_id", workerID).
		Int("records", len(records)).
		Int("failed_batches", len(failed)).
		Msg("Worker completed")

	return records, failed
}
