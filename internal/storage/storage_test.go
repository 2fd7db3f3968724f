package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		name   string
		ref    string
		bucket string
		key    string
	}{
		{"gs url", "gs://media/campaigns/7/spot.mp4", "media", "campaigns/7/spot.mp4"},
		{"public url", "https://storage.googleapis.com/media/spot.png", "media", "spot.png"},
		{"bare key", "campaigns/7/spot.mp4", "default-bucket", "campaigns/7/spot.mp4"},
		{"leading slash", "/spot.mp4", "default-bucket", "spot.mp4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, key, err := ParseReference(tc.ref, "default-bucket")
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.key, key)
		})
	}
}

func TestParseReferenceRejectsIncomplete(t *testing.T) {
	for _, ref := range []string{"", "gs://media", "gs://media/", "spot.mp4"} {
		_, _, err := ParseReference(ref, "")
		assert.Error(t, err, ref)
	}
}

func TestMemorySourceFetch(t *testing.T) {
	src := NewMemorySource()
	src.Put("gs://media/a.png", []byte("png"), "image/png")

	obj, err := src.Fetch(context.Background(), "gs://media/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), obj.Data)
	assert.Equal(t, "image/png", obj.ContentType)

	_, err = src.Fetch(context.Background(), "gs://media/missing.png")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}
