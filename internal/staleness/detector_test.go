package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/ingest"
	"git.home.luguber.info/inful/docregistry/internal/tracker"
)

func newFixture(t *testing.T) (*Detector, *ingest.Ingestor, *tracker.Tracker) {
	t.Helper()
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewDetector(store, nil), ingest.New(store, nil), tracker.New(store, nil)
}

func TestFindStaleRejectsNonPositiveLimit(t *testing.T) {
	det, _, _ := newFixture(t)

	for _, limit := range []int{0, -1} {
		_, err := det.FindStale(t.Context(), time.Now(), limit)
		require.Error(t, err)
		require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	}
}

// Full rebuild-cycle scenario: a release built on an old nightly is stale,
// and a fresh build under the same cutoff clears it.
func TestStalenessClearsAfterFreshBuild(t *testing.T) {
	det, ing, tr := newFixture(t)
	ctx := t.Context()

	relID, err := ing.Ingest(ctx, catalog.ReleaseMetadata{
		Package: "foo", Version: "1.0.0", RustdocStatus: true,
	})
	require.NoError(t, err)

	buildID, err := tr.Claim(ctx, relID, "rustc 1.75.0-nightly (aaa111222 2024-01-01)", "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusSuccess, ""))

	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	batch, err := det.FindStale(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "foo", batch[0].Package)
	require.Equal(t, "1.0.0", batch[0].Version)
	require.Equal(t, "2024-01-01", catalog.FormatNightlyDate(batch[0].NightlyDate))

	buildID, err = tr.Claim(ctx, relID, "rustc 1.80.0-nightly (bbb333444 2024-07-01)", "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusSuccess, ""))

	batch, err = det.FindStale(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestFailedAttemptRefreshesFairnessOrder(t *testing.T) {
	det, ing, tr := newFixture(t)
	ctx := t.Context()

	mk := func(pkg string) int64 {
		relID, err := ing.Ingest(ctx, catalog.ReleaseMetadata{
			Package: pkg, Version: "1.0.0", RustdocStatus: true,
		})
		require.NoError(t, err)
		buildID, err := tr.Claim(ctx, relID, "rustc 1.75.0-nightly (aaa111222 2024-01-01)", "docregistry v1.0.0")
		require.NoError(t, err)
		require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusSuccess, ""))
		return relID
	}

	relA := mk("pkg-a")
	_ = mk("pkg-b")

	// A failed attempt on pkg-a still updates its last-attempt time, so
	// pkg-b moves to the front of the fairness order.
	buildID, err := tr.Claim(ctx, relA, "rustc 1.75.0-nightly (aaa111222 2024-01-02)", "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusFailure, "timeout"))

	batch, err := det.FindStale(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, "pkg-b", batch[0].Package)
	require.Equal(t, "pkg-a", batch[1].Package)
}
