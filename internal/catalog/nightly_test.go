package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseNightlyDate(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"nightly", "rustc 1.78.0-nightly (abc123456 2024-02-03)", "2024-02-03", true},
		{"stable with commit date", "rustc 1.76.0 (07dca489a 2024-02-04)", "2024-02-04", true},
		{"no parens", "rustc 1.76.0", "", false},
		{"empty parens", "rustc 1.76.0 ()", "", false},
		{"garbage date", "rustc 1.78.0-nightly (abc123456 not-a-date)", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNightlyDate(tt.in)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.want, FormatNightlyDate(got))
			}
		})
	}
}

func TestFormatNightlyDateNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("plus9", 9*3600)
	d := time.Date(2024, 2, 3, 1, 0, 0, 0, loc)
	require.Equal(t, "2024-02-02", FormatNightlyDate(d))
}
