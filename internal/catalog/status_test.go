package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBuildStatus(t *testing.T) {
	for raw, want := range map[string]BuildStatus{
		"in_progress": StatusInProgress,
		"success":     StatusSuccess,
		"failure":     StatusFailure,
		" Success ":   StatusSuccess,
		"FAILURE":     StatusFailure,
	} {
		got, err := ParseBuildStatus(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}

	for _, raw := range []string{"", "done", "error", "in progress"} {
		_, err := ParseBuildStatus(raw)
		require.ErrorIs(t, err, ErrUnknownBuildStatus, raw)
	}
}

func TestBuildStatusTerminal(t *testing.T) {
	require.False(t, StatusInProgress.IsTerminal())
	require.True(t, StatusSuccess.IsTerminal())
	require.True(t, StatusFailure.IsTerminal())
	require.True(t, StatusSuccess.IsSuccess())
	require.False(t, StatusFailure.IsSuccess())
}
