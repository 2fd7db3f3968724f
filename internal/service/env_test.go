package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/drive/drivetest"
	"github.com/ifuryst/kiosksync/internal/lock"
	"github.com/ifuryst/kiosksync/internal/metrics"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
	"github.com/ifuryst/kiosksync/internal/storage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	ctx        context.Context
	store      *repository.MemoryStore
	drive      *drivetest.Fake
	source     *storage.MemorySource
	metrics    *metrics.Collector
	monitoring *MonitoringService
	registry   *FolderRegistry
	uploader   *Uploader
	queue      *UploadQueue
	sync       *SyncEngine
	lifecycle  *Lifecycle
	provider   models.ProviderConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, repository.NewMemoryStore())
}

// newTestEnvWithStore wires the engine over store, which must wrap the
// returned env.store's MemoryStore when a decorator is used.
func newTestEnvWithStore(t *testing.T, store repository.Store) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	mem, ok := store.(*repository.MemoryStore)
	if !ok {
		unwrapper, isWrapper := store.(interface{ Unwrap() *repository.MemoryStore })
		require.True(t, isWrapper, "store must be a MemoryStore or wrap one")
		mem = unwrapper.Unwrap()
	}

	env := &testEnv{
		ctx:     context.Background(),
		store:   mem,
		drive:   drivetest.New(),
		source:  storage.NewMemorySource(),
		metrics: metrics.New(),
	}
	locker := lock.NewLocalLocker()
	env.monitoring = NewMonitoringService(store, logger)
	env.registry = NewFolderRegistry(store, env.drive, locker, "Kiosks", env.metrics, logger)
	env.uploader = NewUploader(store, env.registry, env.source, env.drive, logger)
	env.queue = NewUploadQueue(store, env.uploader, env.monitoring, 100, env.metrics, logger)
	env.sync = NewSyncEngine(store, env.drive, locker, env.monitoring, 100, 4, env.metrics, logger)
	env.lifecycle = NewLifecycle(store, env.registry, env.queue, env.uploader, env.sync, env.monitoring, logger)

	clock := func() time.Time { return testNow }
	env.queue.now = clock
	env.sync.now = clock
	env.lifecycle.now = clock

	env.provider = mem.PutProviderConfig(models.ProviderConfig{
		Name:         "primary",
		IsActive:     true,
		AccessToken:  "token",
		RootFolderID: "root",
	})
	return env
}

func (e *testEnv) kiosk(name string) models.Kiosk {
	return e.store.PutKiosk(models.Kiosk{Name: name, Location: "Lobby"})
}

func (e *testEnv) campaign(status models.CampaignStatus, start time.Time, end *time.Time, kiosks ...uint) models.Campaign {
	return e.store.PutCampaign(models.Campaign{
		Name:             "Spring",
		Status:           status,
		StartDate:        start,
		EndDate:          end,
		SelectedKioskIDs: kiosks,
	})
}

// asset seeds an asset whose bytes are available in the memory source.
func (e *testEnv) asset(campaignID uint, status models.AssetStatus, name string) models.MediaAsset {
	ref := "gs://media/" + name
	e.source.Put(ref, []byte("bytes of "+name), "video/mp4")
	return e.store.PutAsset(models.MediaAsset{
		CampaignID:    &campaignID,
		Status:        status,
		FileName:      name,
		FileReference: ref,
	})
}

func (e *testEnv) mapping(t *testing.T, kioskID uint) *models.FolderMapping {
	t.Helper()
	m, err := e.registry.EnsureFolders(e.ctx, kioskID, e.provider.ID)
	require.NoError(t, err)
	return m
}

// completedUpload records a finished upload of assetID to kioskID whose
// remote file lives in folderID.
func (e *testEnv) completedUpload(t *testing.T, assetID, kioskID uint, folderID string) string {
	t.Helper()
	fileID := e.drive.PutFile("asset.mp4", folderID)
	done := testNow.Add(-time.Hour)
	require.NoError(t, e.store.CreateUploadJob(e.ctx, &models.UploadJob{
		GDriveConfigID: e.provider.ID,
		KioskID:        kioskID,
		MediaAssetID:   assetID,
		ScheduledTime:  done,
		UploadType:     models.UploadTypeImmediate,
		FolderType:     models.FolderTypeScheduled,
		Status:         models.JobStatusCompleted,
		ProviderFileID: fileID,
		CompletedAt:    &done,
	}))
	return fileID
}

func ptrTime(t time.Time) *time.Time { return &t }
