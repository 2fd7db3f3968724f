package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadFileName(t *testing.T) {
	cases := []struct {
		name      string
		fileName  string
		reference string
		want      string
	}{
		{"recorded name", "summer spot.mp4", "gs://media/x/y.mp4", "summer spot.mp4"},
		{"slashes replaced", "a/b.png", "", "a_b.png"},
		{"reference basename", "", "gs://media/campaigns/7/spot.mp4", "spot.mp4"},
		{"query stripped", "", "https://storage.googleapis.com/media/banner.png?alt=media", "banner.png"},
		{"bucket only", "", "gs://", "asset-42"},
		{"nothing", "  ", "", "asset-42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UploadFileName(tc.fileName, tc.reference, 42))
		})
	}
}

func TestSanitizeFileNameKeepsExtensionWhenTruncating(t *testing.T) {
	name := SanitizeFileName(strings.Repeat("a", 300) + ".mp4")
	assert.Len(t, name, 200)
	assert.True(t, strings.HasSuffix(name, ".mp4"))
}

func TestNextDailyOccurrence(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, loc)

	later, err := NextDailyOccurrence("18:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 0, 0, 0, loc), later)

	tomorrow, err := NextDailyOccurrence("09:15", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 15, 0, 0, loc), tomorrow)

	exact, err := NextDailyOccurrence("14:30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 14, 30, 0, 0, loc), exact)

	_, err = NextDailyOccurrence("25:00", now)
	assert.Error(t, err)
}
