package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/tracker"
)

func setup(t *testing.T) (*Resolver, *tracker.Tracker, int64) {
	t.Helper()
	store, err := catalog.NewSQLiteStore(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	relID, err := store.UpsertRelease(t.Context(), catalog.ReleaseMetadata{
		Package:        "foo",
		Version:        "1.0.0",
		RustdocStatus:  true,
		TestStatus:     true,
		ArchiveStorage: true,
		DefaultTarget:  "x86_64-unknown-linux-gnu",
		DocTargets:     []string{"x86_64-unknown-linux-gnu", "aarch64-apple-darwin"},
		Files:          []string{"index.html", "foo/index.html"},
	})
	require.NoError(t, err)
	return New(store), tracker.New(store, nil), relID
}

const rustc = "rustc 1.78.0-nightly (abc123456 2024-02-03)"

func TestResolveReportsReleaseState(t *testing.T) {
	res, _, _ := setup(t)

	cov, err := res.Resolve(t.Context(), "foo", "1.0.0")
	require.NoError(t, err)
	require.True(t, cov.RustdocStatus)
	require.True(t, cov.TestStatus)
	require.True(t, cov.ArchiveStorage)
	require.False(t, cov.Yanked)
	require.Equal(t, []string{"index.html", "foo/index.html"}, cov.Files)
	require.Zero(t, cov.Attempts())
	require.Empty(t, cov.EffectiveStatus)
	require.Nil(t, cov.LatestUsable())
}

func TestResolveLatestUsableSkipsFailuresAndInProgress(t *testing.T) {
	res, tr, relID := setup(t)
	ctx := t.Context()

	okBuild, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, okBuild, catalog.StatusSuccess, ""))

	failed, err := tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)
	require.NoError(t, tr.Complete(ctx, failed, catalog.StatusFailure, "ICE"))

	_, err = tr.Claim(ctx, relID, rustc, "docregistry v1.0.0")
	require.NoError(t, err)

	cov, err := res.Resolve(ctx, "foo", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, 3, cov.Attempts())
	require.Equal(t, catalog.StatusInProgress, cov.EffectiveStatus, "effective status follows the most recent attempt")

	usable := cov.LatestUsable()
	require.NotNil(t, usable)
	require.Equal(t, okBuild, usable.ID, "latest usable artifact comes from the most recent success")
}

func TestResolveUnknownRelease(t *testing.T) {
	res, _, _ := setup(t)

	_, err := res.Resolve(t.Context(), "foo", "9.9.9")
	require.ErrorIs(t, err, catalog.ErrReleaseNotFound)

	_, err = res.Resolve(t.Context(), "nope", "1.0.0")
	require.ErrorIs(t, err, catalog.ErrReleaseNotFound)
}
