package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/kiosksync/internal/models"
)

func TestMemoryClaimIsExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := &models.UploadJob{KioskID: 1, MediaAssetID: 1, ScheduledTime: time.Now()}
	require.NoError(t, s.CreateUploadJob(ctx, job))
	assert.Equal(t, models.JobStatusPending, job.Status)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimUploadJob(ctx, job.ID, job.Version, time.Now())
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	got, err := s.GetUploadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusUploading, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestMemoryDueOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	future := &models.UploadJob{ScheduledTime: now.Add(time.Minute)}
	late := &models.UploadJob{ScheduledTime: now}
	early := &models.UploadJob{ScheduledTime: now.Add(-time.Hour)}
	done := &models.UploadJob{ScheduledTime: now.Add(-2 * time.Hour), Status: models.JobStatusCompleted}
	for _, j := range []*models.UploadJob{future, late, early, done} {
		require.NoError(t, s.CreateUploadJob(ctx, j))
	}

	due, err := s.ListDueUploadJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)

	due, err = s.ListDueUploadJobs(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestMemoryTerminalJobsDoNotMove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := &models.UploadJob{ScheduledTime: time.Now()}
	require.NoError(t, s.CreateUploadJob(ctx, job))

	ok, err := s.FinishUploadJob(ctx, job.ID, UploadJobResult{Status: models.JobStatusCompleted})
	require.NoError(t, err)
	assert.False(t, ok, "pending jobs cannot finish without a claim")

	ok, err = s.CancelUploadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimUploadJob(ctx, job.ID, job.Version, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CancelUploadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLatestCompleted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, fileID := range []string{"old", "new"} {
		job := &models.UploadJob{MediaAssetID: 1, KioskID: 2, GDriveConfigID: 3, ScheduledTime: base}
		require.NoError(t, s.CreateUploadJob(ctx, job))
		ok, err := s.ClaimUploadJob(ctx, job.ID, job.Version, base)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.FinishUploadJob(ctx, job.ID, UploadJobResult{
			Status:         models.JobStatusCompleted,
			ProviderFileID: fileID,
			CompletedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	latest, err := s.LatestCompletedUploadJob(ctx, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ProviderFileID)

	_, err = s.LatestCompletedUploadJob(ctx, 1, 2, 4)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryProviderActivation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.ActiveProviderConfig(ctx)
	assert.True(t, errors.Is(err, ErrNoActiveProvider))

	a := s.PutProviderConfig(models.ProviderConfig{Name: "a", IsActive: true})
	b := s.PutProviderConfig(models.ProviderConfig{Name: "b"})

	active, err := s.ActiveProviderConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)

	require.NoError(t, s.ActivateProviderConfig(ctx, b.ID))
	active, err = s.ActiveProviderConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	assert.True(t, errors.Is(s.ActivateProviderConfig(ctx, 99), ErrNotFound))
}

func TestMemoryCampaignsForKiosk(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.PutCampaign(models.Campaign{Name: "a", SelectedKioskIDs: models.IDArray{1, 2}})
	s.PutCampaign(models.Campaign{Name: "b", SelectedKioskIDs: models.IDArray{2}})

	got, err := s.ListCampaignsForKiosk(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListCampaignsForKiosk(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
