package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/config"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/ingest"
)

func workerFixture(t *testing.T) (*config.Config, int64) {
	t.Helper()
	cfg := &config.Config{
		Store: config.StoreConfig{Path: filepath.Join(t.TempDir(), "catalog.db")},
	}

	store, err := catalog.NewSQLiteStore(t.Context(), cfg.Store.Path)
	require.NoError(t, err)
	relID, err := ingest.New(store, nil).Ingest(t.Context(), catalog.ReleaseMetadata{
		Package: "foo", Version: "1.0.0", RustdocStatus: true,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	return cfg, relID
}

func lastBuild(t *testing.T, cfg *config.Config) catalog.Build {
	t.Helper()
	store, err := catalog.NewSQLiteStore(t.Context(), cfg.Store.Path)
	require.NoError(t, err)
	defer store.Close()

	builds, err := store.ListBuilds(t.Context(), "foo", "1.0.0")
	require.NoError(t, err)
	require.NotEmpty(t, builds)
	return builds[0]
}

func TestClaimThenCompleteRoundTrip(t *testing.T) {
	cfg, relID := workerFixture(t)

	require.NoError(t, runClaim(cfg, relID, "rustc 1.78.0-nightly (abc123456 2024-02-03)", ""))
	claimed := lastBuild(t, cfg)
	require.Equal(t, catalog.StatusInProgress, claimed.Status)
	require.NotEmpty(t, claimed.ToolVersion, "tool version defaults when not given")

	// Raw worker input is normalized at the boundary before it reaches the store.
	require.NoError(t, runComplete(cfg, claimed.ID, "  SUCCESS ", ""))
	require.Equal(t, catalog.StatusSuccess, lastBuild(t, cfg).Status)
}

func TestCompleteRejectsUnknownStatus(t *testing.T) {
	cfg, relID := workerFixture(t)
	require.NoError(t, runClaim(cfg, relID, "rustc 1.78.0-nightly (abc123456 2024-02-03)", "docregistry dev"))
	buildID := lastBuild(t, cfg).ID

	err := runComplete(cfg, buildID, "cancelled", "")
	require.ErrorIs(t, err, catalog.ErrUnknownBuildStatus)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))

	// The open string never reached the store; the build is still in progress.
	require.Equal(t, catalog.StatusInProgress, lastBuild(t, cfg).Status)
}
