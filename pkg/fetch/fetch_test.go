package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/drs-bulk-compliance/internal/testutil"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/batch"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/client"
	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
)

// fakeClient echoes one registered record per IMEI unless fail says otherwise.
type fakeClient struct {
	mu       sync.Mutex
	calls    [][]string
	attempts map[string]int
	fail     func(imeis []string, attempt int) bool
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeClient(fail func(imeis []string, attempt int) bool) *fakeClient {
	return &fakeClient{attempts: make(map[string]int), fail: fail}
}

func (f *fakeClient) FetchBatch(ctx context.Context, imeis []string) ([]compliance.Record, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, imeis)
	key := strings.Join(imeis, ",")
	f.attempts[key]++
	attempt := f.attempts[key]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.fail != nil && f.fail(imeis, attempt) {
		return nil, &client.CoreError{StatusCode: 503, Class: client.ErrorClassServer, Message: "unavailable"}
	}

	records := make([]compliance.Record, 0, len(imeis))
	for _, imei := range imeis {
		records = append(records, testutil.RegisteredRecord(imei, true))
	}
	return records, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryConfig{}
	return cfg
}

func makeIMEIs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("35%013d", i)
	}
	return ids
}

func recordIMEIs(records []compliance.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.IMEINorm)
	}
	sort.Strings(out)
	return out
}

func TestFetcher_DrainLastBatchFirst(t *testing.T) {
	fc := newFakeClient(nil)
	f := NewFetcher(fc)

	group := batch.Group{{"1", "2"}, {}, {"3"}, nil, {"4"}}
	records, failed := f.Drain(context.Background(), 0, group)

	if len(failed) != 0 {
		t.Errorf("failed = %v, want none", failed)
	}
	if len(records) != 4 {
		t.Errorf("len(records) = %d, want 4", len(records))
	}

	wantCalls := [][]string{{"4"}, {"3"}, {"1", "2"}}
	if len(fc.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", fc.calls, wantCalls)
	}
	for i, want := range wantCalls {
		if strings.Join(fc.calls[i], ",") != strings.Join(want, ",") {
			t.Errorf("call %d = %v, want %v", i, fc.calls[i], want)
		}
	}

	if len(group) != 5 || len(group[0]) != 2 {
		t.Error("Drain modified the caller's group")
	}
}

func TestFetcher_DrainCollectsFailures(t *testing.T) {
	fc := newFakeClient(func(imeis []string, _ int) bool { return imeis[0] == "bad" })
	f := NewFetcher(fc)

	records, failed := f.Drain(context.Background(), 1, batch.Group{{"ok1"}, {"bad", "x"}, {"ok2"}})

	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
	if len(failed) != 1 || failed[0][0] != "bad" {
		t.Errorf("failed = %v, want [[bad x]]", failed)
	}
	if fc.callCount() != 3 {
		t.Errorf("calls = %d, want 3 (failure must not stop the worker)", fc.callCount())
	}
}

func TestFetcher_DrainCancelled(t *testing.T) {
	fc := newFakeClient(nil)
	f := NewFetcher(fc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, failed := f.Drain(ctx, 0, batch.Group{{"1"}, {"2"}})

	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
	if len(failed) != 2 {
		t.Errorf("len(failed) = %d, want 2", len(failed))
	}
	if fc.callCount() != 0 {
		t.Errorf("calls = %d, want 0", fc.callCount())
	}
}

func TestCoordinator_AllSucceed(t *testing.T) {
	fc := newFakeClient(nil)
	coord := NewCoordinator(NewFetcher(fc), testConfig())

	ids := makeIMEIs(12345)
	result := coord.Run(context.Background(), ids)

	if len(result.Records) != len(ids) {
		t.Fatalf("len(Records) = %d, want %d", len(result.Records), len(ids))
	}
	if result.Submitted != len(ids) {
		t.Errorf("Submitted = %d, want %d", result.Submitted, len(ids))
	}
	if result.RetryRounds != 0 {
		t.Errorf("RetryRounds = %d, want 0", result.RetryRounds)
	}
	if err := result.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if fc.callCount() != 13 {
		t.Errorf("calls = %d, want 13", fc.callCount())
	}

	got := recordIMEIs(result.Records)
	want := append([]string(nil), ids...)
	sort.Strings(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d = %s, want %s (each imei exactly once)", i, got[i], want[i])
		}
	}
}

func TestCoordinator_SkipsEmptyIdentifiers(t *testing.T) {
	fc := newFakeClient(nil)
	coord := NewCoordinator(NewFetcher(fc), testConfig())

	result := coord.Run(context.Background(), []string{"111", "", "222", ""})

	if result.Submitted != 2 || len(result.Records) != 2 {
		t.Errorf("Submitted = %d, records = %d, want 2 and 2", result.Submitted, len(result.Records))
	}
}

func TestCoordinator_EmptyInput(t *testing.T) {
	fc := newFakeClient(nil)
	coord := NewCoordinator(NewFetcher(fc), testConfig())

	result := coord.Run(context.Background(), nil)

	if len(result.Records) != 0 || len(result.Unprocessed) != 0 {
		t.Errorf("Result = %+v, want empty", result)
	}
	if fc.callCount() != 0 {
		t.Errorf("calls = %d, want 0", fc.callCount())
	}
}

func TestCoordinator_RetriesTransientFailures(t *testing.T) {
	// Every batch fails on its first two attempts.
	fc := newFakeClient(func(_ []string, attempt int) bool { return attempt <= 2 })
	coord := NewCoordinator(NewFetcher(fc), testConfig())

	ids := makeIMEIs(5500)
	result := coord.Run(context.Background(), ids)

	if len(result.Records) != len(ids) {
		t.Errorf("len(Records) = %d, want %d", len(result.Records), len(ids))
	}
	if result.RetryRounds != 2 {
		t.Errorf("RetryRounds = %d, want 2", result.RetryRounds)
	}
	if len(result.Unprocessed) != 0 {
		t.Errorf("Unprocessed = %d batches, want 0", len(result.Unprocessed))
	}
	if fc.callCount() != 18 {
		t.Errorf("calls = %d, want 18 (6 batches x 3 attempts)", fc.callCount())
	}
}

func TestCoordinator_PersistentFailureTerminates(t *testing.T) {
	ids := makeIMEIs(3000)
	poisoned := ids[1500]
	fc := newFakeClient(func(imeis []string, _ int) bool {
		for _, imei := range imeis {
			if imei == poisoned {
				return true
			}
		}
		return false
	})
	coord := NewCoordinator(NewFetcher(fc), testConfig())

	done := make(chan Result, 1)
	go func() { done <- coord.Run(context.Background(), ids) }()

	var result Result
	select {
	case result = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not terminate with a persistently failing batch")
	}

	if result.RetryRounds != 10 {
		t.Errorf("RetryRounds = %d, want 10", result.RetryRounds)
	}
	if len(result.Records) != 2000 {
		t.Errorf("len(Records) = %d, want 2000", len(result.Records))
	}
	if len(result.UnprocessedIMEIs()) != 1000 {
		t.Errorf("len(UnprocessedIMEIs()) = %d, want 1000", len(result.UnprocessedIMEIs()))
	}
	if !errors.Is(result.Err(), ErrRetryExhausted) {
		t.Errorf("Err() = %v, want ErrRetryExhausted", result.Err())
	}
	// initial attempt plus ten retries of the poisoned batch
	if fc.callCount() != 3+10 {
		t.Errorf("calls = %d, want 13", fc.callCount())
	}

	// Every identifier is either fetched or unprocessed, never both.
	seen := make(map[string]int)
	for _, imei := range recordIMEIs(result.Records) {
		seen[imei]++
	}
	for _, imei := range result.UnprocessedIMEIs() {
		seen[imei]++
	}
	for _, imei := range ids {
		if seen[imei] != 1 {
			t.Fatalf("imei %s accounted %d times, want 1", imei, seen[imei])
		}
	}
}

func TestCoordinator_ZeroRetryRounds(t *testing.T) {
	fc := newFakeClient(func(_ []string, _ int) bool { return true })
	cfg := testConfig()
	cfg.MaxRetryRounds = 0
	coord := NewCoordinator(NewFetcher(fc), cfg)

	result := coord.Run(context.Background(), makeIMEIs(10))

	if fc.callCount() != 1 {
		t.Errorf("calls = %d, want 1", fc.callCount())
	}
	if len(result.Unprocessed) != 1 {
		t.Errorf("len(Unprocessed) = %d, want 1", len(result.Unprocessed))
	}
}

func TestCoordinator_BoundedFanOut(t *testing.T) {
	fc := newFakeClient(nil)
	fc.delay = 20 * time.Millisecond
	coord := NewCoordinator(NewFetcher(fc), testConfig())

	result := coord.Run(context.Background(), makeIMEIs(30000))

	if len(result.Records) != 30000 {
		t.Errorf("len(Records) = %d, want 30000", len(result.Records))
	}
	peak := fc.maxInFlight.Load()
	if peak > 10 {
		t.Errorf("max in-flight requests = %d, want <= 10", peak)
	}
	if peak < 2 {
		t.Errorf("max in-flight requests = %d, want concurrent workers", peak)
	}
}

func TestCoordinator_CancelStopsRetries(t *testing.T) {
	fc := newFakeClient(func(_ []string, _ int) bool { return true })
	cfg := testConfig()
	cfg.Retry = RetryConfig{InitialBackoff: time.Minute, MaxBackoff: time.Minute, BackoffMultiplier: 1}
	coord := NewCoordinator(NewFetcher(fc), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := coord.Run(ctx, makeIMEIs(2500))

	if result.RetryRounds != 0 {
		t.Errorf("RetryRounds = %d, want 0", result.RetryRounds)
	}
	if len(result.UnprocessedIMEIs()) != 2500 {
		t.Errorf("len(UnprocessedIMEIs()) = %d, want 2500", len(result.UnprocessedIMEIs()))
	}
}

func TestCoordinator_WithCoreClient(t *testing.T) {
	core := testutil.NewMockCore()
	defer core.Close()
	core.FailNext(2, 503)

	c, err := client.New(client.DefaultConfig(core.URL()))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	coord := NewCoordinator(NewFetcher(c), testConfig())

	ids := makeIMEIs(4200)
	result := coord.Run(context.Background(), ids)

	if len(result.Records) != len(ids) {
		t.Errorf("len(Records) = %d, want %d", len(result.Records), len(ids))
	}
	if result.RetryRounds != 1 {
		t.Errorf("RetryRounds = %d, want 1", result.RetryRounds)
	}
	if core.RequestCount() != 7 {
		t.Errorf("RequestCount() = %d, want 7 (5 batches + 2 retries)", core.RequestCount())
	}
}
