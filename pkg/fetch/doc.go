// Package fetch runs imei-batch calls for a whole IMEI list concurrently and
// retries failed batches in bounded rounds.
//
// The list is planned into at most MaxGroups work groups of batches (see
// package batch). Each round starts one worker per group and waits for all
// of them before deciding whether to retry:
//
//	fetcher := fetch.NewFetcher(coreClient)
//	coord := fetch.NewCoordinator(fetcher, fetch.DefaultConfig())
//	result := coord.Run(ctx, imeis)
//
// The coordinator:
//   - Drains every group in its own goroutine, last batch first
//   - Keeps per-worker buffers and merges them after the join
//   - Regroups failed batches and retries them up to MaxRetryRounds times
//   - Waits an exponential, jittered backoff between rounds
//   - Reports batches still failing as Result.Unprocessed instead of an error
//
// Records come back in completion order, not input order.
package fetch
