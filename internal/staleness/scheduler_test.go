package staleness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/ingest"
	"git.home.luguber.info/inful/docregistry/internal/retry"
	"git.home.luguber.info/inful/docregistry/internal/tracker"
)

type captureEnqueuer struct {
	mu      sync.Mutex
	batches [][]catalog.StaleRelease
}

func (c *captureEnqueuer) Enqueue(_ context.Context, batch []catalog.StaleRelease) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureEnqueuer) all() [][]catalog.StaleRelease {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// flakyStore fails FindStale with a transient error a fixed number of times
// before delegating to the real store.
type flakyStore struct {
	catalog.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]catalog.StaleRelease, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.CatalogError("store unavailable").Build()
	}
	f.mu.Unlock()
	return f.Store.FindStale(ctx, cutoff, limit)
}

func seedStaleRelease(t *testing.T, store catalog.Store, pkg string) {
	t.Helper()
	ctx := t.Context()
	ing := ingest.New(store, nil)
	tr := tracker.New(store, nil)

	relID, err := ing.Ingest(ctx, catalog.ReleaseMetadata{
		Package: pkg, Version: "1.0.0", RustdocStatus: true,
	})
	require.NoError(t, err)
	buildID, err := tr.Claim(ctx, relID, "rustc 1.75.0-nightly (aaa111222 2024-01-01)", "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusSuccess, ""))
}

func TestScanOnceEnqueuesBatch(t *testing.T) {
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	seedStaleRelease(t, store, "foo")

	enq := &captureEnqueuer{}
	sched, err := NewScheduler(NewDetector(store, nil), enq, retry.DefaultPolicy())
	require.NoError(t, err)
	sched.SetScanParams(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 10)

	require.NoError(t, sched.ScanOnce(t.Context()))

	batches := enq.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	require.Equal(t, "foo", batches[0][0].Package)
}

func TestScanOnceRetriesTransientErrors(t *testing.T) {
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	seedStaleRelease(t, store, "foo")

	flaky := &flakyStore{Store: store, failures: 2}
	enq := &captureEnqueuer{}
	policy := retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 3)
	sched, err := NewScheduler(NewDetector(flaky, nil), enq, policy)
	require.NoError(t, err)
	sched.SetScanParams(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 10)

	require.NoError(t, sched.ScanOnce(t.Context()))
	require.Len(t, enq.all(), 1)
}

func TestScanOnceGivesUpAfterRetriesExhausted(t *testing.T) {
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	flaky := &flakyStore{Store: store, failures: 100}
	enq := &captureEnqueuer{}
	policy := retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 1)
	sched, err := NewScheduler(NewDetector(flaky, nil), enq, policy)
	require.NoError(t, err)
	sched.SetScanParams(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 10)

	err = sched.ScanOnce(t.Context())
	require.Error(t, err)
	require.Empty(t, enq.all(), "no partial batches on failure")
}

func TestScanOnceUnconfigured(t *testing.T) {
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sched, err := NewScheduler(NewDetector(store, nil), &captureEnqueuer{}, retry.DefaultPolicy())
	require.NoError(t, err)

	require.Error(t, sched.ScanOnce(t.Context()))
}

func TestPeriodicScanFires(t *testing.T) {
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	seedStaleRelease(t, store, "foo")

	enq := &captureEnqueuer{}
	sched, err := NewScheduler(NewDetector(store, nil), enq, retry.DefaultPolicy())
	require.NoError(t, err)
	sched.SetScanParams(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 10)

	_, err = sched.SchedulePeriodicScan(20 * time.Millisecond)
	require.NoError(t, err)
	sched.Start(t.Context())
	defer func() { _ = sched.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(enq.all()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}
