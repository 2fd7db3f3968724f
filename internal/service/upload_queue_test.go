package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
)

func TestEnqueueValidatesAndDefaults(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	c := env.campaign(models.CampaignStatusApproved, testNow, nil, k.ID)
	m := env.asset(c.ID, models.AssetStatusApproved, "spot.mp4")

	_, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID, FolderType: "trash"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: 999, KioskID: k.ID})
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	id, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID})
	require.NoError(t, err)

	job, err := env.store.GetUploadJob(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.FolderTypeScheduled, job.FolderType)
	assert.Equal(t, models.UploadTypeImmediate, job.UploadType)
	assert.Equal(t, testNow, job.ScheduledTime)
	assert.Equal(t, env.provider.ID, job.GDriveConfigID)
	require.NotNil(t, job.CampaignID)
	assert.Equal(t, c.ID, *job.CampaignID)
	assert.Equal(t, 0, env.drive.Uploads)
}

func TestEnqueueWithoutActiveProvider(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	m := env.asset(1, models.AssetStatusApproved, "spot.mp4")
	env.store.PutProviderConfig(models.ProviderConfig{ID: env.provider.ID, Name: "primary", IsActive: false})

	_, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID})
	assert.True(t, errors.Is(err, ErrNoActiveProvider))
}

func TestProcessDueUploadsIntoTargetFolder(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	m := env.asset(1, models.AssetStatusApproved, "spot.mp4")

	id, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID, FolderType: models.FolderTypeActive})
	require.NoError(t, err)

	report, err := env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Items, 1)

	job, err := env.store.GetUploadJob(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotEmpty(t, job.ProviderFileID)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	mapping, err := env.store.GetFolderMapping(env.ctx, k.ID, env.provider.ID)
	require.NoError(t, err)
	file, ok := env.drive.Lookup(job.ProviderFileID)
	require.True(t, ok)
	assert.Equal(t, "spot.mp4", file.Name)
	assert.True(t, file.InFolder(mapping.ActiveFolderID))
	assert.Equal(t, []byte("bytes of spot.mp4"), env.drive.Content(job.ProviderFileID))

	asset, err := env.store.GetAsset(env.ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, asset.ProviderFileID)
	assert.Equal(t, job.ProviderFileID, *asset.ProviderFileID)
}

func TestProcessDueHonoursScheduleOrderAndCancellation(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	a := env.asset(1, models.AssetStatusApproved, "a.mp4")
	b := env.asset(1, models.AssetStatusApproved, "b.mp4")
	c := env.asset(1, models.AssetStatusApproved, "c.mp4")
	d := env.asset(1, models.AssetStatusApproved, "d.mp4")

	late, _ := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: a.ID, KioskID: k.ID, ScheduledTime: testNow.Add(-time.Minute)})
	early, _ := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: b.ID, KioskID: k.ID, ScheduledTime: testNow.Add(-time.Hour)})
	cancelled, _ := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: c.ID, KioskID: k.ID, ScheduledTime: testNow.Add(-30 * time.Minute)})
	future, _ := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: d.ID, KioskID: k.ID, ScheduledTime: testNow.Add(time.Hour)})

	require.NoError(t, env.queue.Cancel(env.ctx, cancelled))
	err := env.queue.Cancel(env.ctx, cancelled)
	assert.True(t, errors.Is(err, ErrJobNotPending))

	report, err := env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, early, report.Items[0].JobID)
	assert.Equal(t, late, report.Items[1].JobID)
	assert.Equal(t, 2, env.drive.Uploads)

	job, _ := env.store.GetUploadJob(env.ctx, cancelled)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	job, _ = env.store.GetUploadJob(env.ctx, future)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestProcessDueNeverReprocessesTerminalJobs(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	m := env.asset(1, models.AssetStatusApproved, "spot.mp4")
	_, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID})
	require.NoError(t, err)

	_, err = env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	report, err := env.queue.ProcessDue(env.ctx, testNow.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, env.drive.Uploads)
}

func TestProcessDueBatchResilience(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	var ids []uint
	for _, name := range []string{"one.mp4", "two.mp4", "three.mp4", "four.mp4"} {
		m := env.asset(1, models.AssetStatusApproved, name)
		id, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	env.drive.FailWhen(func(op, subject string) error {
		if op == "upload_file" && subject == "two.mp4" {
			return drive.NewError(op, drive.KindNetwork, errors.New("connection reset"))
		}
		return nil
	})

	report, err := env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.HaltedConfigs)

	for _, id := range ids {
		job, err := env.store.GetUploadJob(env.ctx, id)
		require.NoError(t, err)
		assert.True(t, job.Status.Terminal(), "job %d is %s", id, job.Status)
	}
}

func TestQuotaFailureThenManualRequeue(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	m := env.asset(1, models.AssetStatusApproved, "spot.mp4")
	id, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID})
	require.NoError(t, err)

	env.drive.FailOn("upload_file", drive.NewError("upload_file", drive.KindQuotaExceeded, errors.New("storage quota exceeded")))
	report, err := env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	failed, err := env.store.GetUploadJob(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Equal(t, string(drive.KindQuotaExceeded), failed.ErrorKind)
	assert.NotEmpty(t, failed.ErrorMessage)

	_, err = env.queue.Requeue(env.ctx, failed.ID+1000)
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	requeued, err := env.queue.Requeue(env.ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, id, requeued)

	report, err = env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	job, _ := env.store.GetUploadJob(env.ctx, requeued)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, m.ID, job.MediaAssetID)
	assert.Equal(t, k.ID, job.KioskID)

	original, _ := env.store.GetUploadJob(env.ctx, id)
	assert.Equal(t, models.JobStatusFailed, original.Status)

	_, err = env.queue.Requeue(env.ctx, requeued)
	assert.True(t, errors.Is(err, ErrJobNotRequeueable))
}

func TestPermanentErrorHaltsProviderConfig(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	var ids []uint
	for i, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		m := env.asset(1, models.AssetStatusApproved, name)
		id, err := env.queue.Enqueue(env.ctx, EnqueueRequest{
			MediaAssetID:  m.ID,
			KioskID:       k.ID,
			ScheduledTime: testNow.Add(time.Duration(i-10) * time.Minute),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	env.drive.FailOn("upload_file", drive.NewError("upload_file", drive.KindInvalidCredentials, errors.New("token revoked")))

	report, err := env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []uint{env.provider.ID}, report.HaltedConfigs)

	first, _ := env.store.GetUploadJob(env.ctx, ids[0])
	assert.Equal(t, models.JobStatusFailed, first.Status)
	assert.Equal(t, string(drive.KindInvalidCredentials), first.ErrorKind)
	for _, id := range ids[1:] {
		job, _ := env.store.GetUploadJob(env.ctx, id)
		assert.Equal(t, models.JobStatusPending, job.Status)
	}

	logs, err := env.monitoring.RecentErrors(env.ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, sourceUploadQueue, logs[0].Source)
	require.NotNil(t, logs[0].ProviderConfigID)
	assert.Equal(t, env.provider.ID, *logs[0].ProviderConfigID)

	// The next run picks the remaining jobs up again.
	report, err = env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
}

func TestMissingAssetBytesFailsJob(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	m := env.store.PutAsset(models.MediaAsset{Status: models.AssetStatusApproved, FileReference: "gs://media/gone.mp4"})
	id, err := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: m.ID, KioskID: k.ID})
	require.NoError(t, err)

	_, err = env.queue.ProcessDue(env.ctx, testNow)
	require.NoError(t, err)

	job, _ := env.store.GetUploadJob(env.ctx, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, string(drive.KindNotFound), job.ErrorKind)
}

func TestQueueStatsAndList(t *testing.T) {
	env := newTestEnv(t)
	k := env.kiosk("K1")
	a := env.asset(1, models.AssetStatusApproved, "a.mp4")
	b := env.asset(1, models.AssetStatusApproved, "b.mp4")
	_, _ = env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: a.ID, KioskID: k.ID})
	cancelled, _ := env.queue.Enqueue(env.ctx, EnqueueRequest{MediaAssetID: b.ID, KioskID: k.ID})
	require.NoError(t, env.queue.Cancel(env.ctx, cancelled))

	stats, err := env.queue.Stats(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Counts[models.JobStatusPending])
	assert.Equal(t, int64(1), stats.Counts[models.JobStatusCancelled])
	assert.Equal(t, int64(0), stats.Counts[models.JobStatusFailed])

	jobs, err := env.queue.List(env.ctx, repository.UploadJobFilter{Status: models.JobStatusCancelled})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, cancelled, jobs[0].ID)

	_, err = env.queue.List(env.ctx, repository.UploadJobFilter{Status: "stuck"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
