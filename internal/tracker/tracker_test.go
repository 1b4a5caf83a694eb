package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
)

func setup(t *testing.T) (*Tracker, int64) {
	t.Helper()
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	relID, err := store.UpsertRelease(t.Context(), catalog.ReleaseMetadata{
		Package: "foo", Version: "0.1.0", RustdocStatus: true,
	})
	require.NoError(t, err)
	return New(store, nil), relID
}

const rustc = "rustc 1.78.0-nightly (abc123456 2024-02-03)"

func TestClaimThenCompleteSuccess(t *testing.T) {
	tr, relID := setup(t)
	ctx := t.Context()

	buildID, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusSuccess, ""))

	builds, err := tr.List(ctx, "foo", "0.1.0")
	require.NoError(t, err)
	require.Len(t, builds, 1)
	require.Equal(t, buildID, builds[0].ID)
	require.Equal(t, catalog.StatusSuccess, builds[0].Status)
	require.False(t, builds[0].BuildTime().IsZero())
	require.Empty(t, builds[0].Errors)
}

func TestFailureIsRecordedAsData(t *testing.T) {
	tr, relID := setup(t)
	ctx := t.Context()

	buildID, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusFailure, "rustdoc exited with code 101"))

	builds, err := tr.List(ctx, "foo", "0.1.0")
	require.NoError(t, err)
	require.Equal(t, catalog.StatusFailure, builds[0].Status)
	require.Equal(t, "rustdoc exited with code 101", builds[0].Errors)
	require.NotNil(t, builds[0].Finished)
}

func TestEveryAttemptIsANewRow(t *testing.T) {
	tr, relID := setup(t)
	ctx := t.Context()

	first, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, first, catalog.StatusFailure, "network"))

	second, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	builds, err := tr.List(ctx, "foo", "0.1.0")
	require.NoError(t, err)
	require.Len(t, builds, 2)
	require.Equal(t, second, builds[0].ID, "most recent attempt first")
}

func TestCompleteTwiceFails(t *testing.T) {
	tr, relID := setup(t)
	ctx := t.Context()

	buildID, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, buildID, catalog.StatusSuccess, ""))

	err = tr.Complete(ctx, buildID, catalog.StatusFailure, "late delivery")
	require.ErrorIs(t, err, catalog.ErrBuildAlreadyCompleted)
}

func TestClaimUnknownRelease(t *testing.T) {
	tr, _ := setup(t)
	_, err := tr.Claim(t.Context(), 777, rustc, "docregistry v1.0.0")
	require.ErrorIs(t, err, catalog.ErrReleaseNotFound)
}

func TestDuplicateConcurrentClaimsTolerated(t *testing.T) {
	tr, relID := setup(t)
	ctx := t.Context()

	// Two schedulers may offer the same release to two workers; both claims
	// must land and the most recently completed build wins.
	a, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	b, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)

	require.NoError(t, tr.Complete(ctx, a, catalog.StatusFailure, "lost the race"))
	require.NoError(t, tr.Complete(ctx, b, catalog.StatusSuccess, ""))

	builds, err := tr.List(ctx, "foo", "0.1.0")
	require.NoError(t, err)
	require.Len(t, builds, 2)
	require.Equal(t, catalog.StatusSuccess, builds[0].Status)
}
