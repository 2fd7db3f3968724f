package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDArrayScan(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  IDArray
	}{
		{"nil", nil, IDArray{}},
		{"empty", "{}", IDArray{}},
		{"postgres", "{3,1,2}", IDArray{3, 1, 2}},
		{"quoted with null", `{"4",NULL, 5}`, IDArray{4, 5}},
		{"json bytes", []byte("[7,8]"), IDArray{7, 8}},
		{"postgres bytes", []byte("{9}"), IDArray{9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a IDArray
			require.NoError(t, a.Scan(tc.value))
			assert.Equal(t, tc.want, a)
		})
	}

	var a IDArray
	assert.Error(t, a.Scan("{1,x}"))
	assert.Error(t, a.Scan(42))
}

func TestIDArrayValue(t *testing.T) {
	v, err := IDArray{1, 22}.Value()
	require.NoError(t, err)
	assert.Equal(t, "{1,22}", v)

	v, err = IDArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestIDArrayHelpers(t *testing.T) {
	a := IDArray{5, 1, 5, 3, 1}
	assert.True(t, a.Contains(3))
	assert.False(t, a.Contains(4))
	assert.Equal(t, []uint{1, 3, 5}, a.Unique())
	assert.Empty(t, IDArray{}.Unique())
}

func TestEnums(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusUploading.Terminal())
	assert.False(t, JobStatus("lost").Valid())

	assert.True(t, CampaignStatusPaused.Valid())
	assert.False(t, CampaignStatus("archived").Valid())
	assert.True(t, SyncTypeCampaignStatus.Valid())
	assert.False(t, SyncType("weekly").Valid())
	assert.True(t, UploadTypeSync.Valid())
	assert.False(t, UploadType("").Valid())
	assert.True(t, FolderTypeArchive.Valid())
	assert.False(t, FolderType("Archive").Valid())
}

func TestFolderMappingComplete(t *testing.T) {
	empty := ""
	scheduled := "s"

	var nilMapping *FolderMapping
	assert.False(t, nilMapping.Complete())
	assert.False(t, (&FolderMapping{ActiveFolderID: "a", ArchiveFolderID: "r"}).Complete())
	assert.False(t, (&FolderMapping{ScheduledFolderID: &empty, ActiveFolderID: "a", ArchiveFolderID: "r"}).Complete())
	assert.True(t, (&FolderMapping{ScheduledFolderID: &scheduled, ActiveFolderID: "a", ArchiveFolderID: "r"}).Complete())
}
