package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ifuryst/kiosksync/internal/models"
)

// MemoryStore is a mutex-guarded in-process Store for local runs and tests.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    uint
	kiosks    map[uint]models.Kiosk
	campaigns map[uint]models.Campaign
	assets    map[uint]models.MediaAsset
	providers map[uint]models.ProviderConfig
	mappings  map[[2]uint]models.FolderMapping
	uploads   map[uint]models.UploadJob
	syncs     map[uint]models.SyncJob
	errorLogs []models.ErrorLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kiosks:    make(map[uint]models.Kiosk),
		campaigns: make(map[uint]models.Campaign),
		assets:    make(map[uint]models.MediaAsset),
		providers: make(map[uint]models.ProviderConfig),
		mappings:  make(map[[2]uint]models.FolderMapping),
		uploads:   make(map[uint]models.UploadJob),
		syncs:     make(map[uint]models.SyncJob),
	}
}

func (s *MemoryStore) id(current uint) uint {
	if current != 0 {
		if current > s.nextID {
			s.nextID = current
		}
		return current
	}
	s.nextID++
	return s.nextID
}

// PutKiosk inserts or replaces a kiosk, assigning an id when zero.
func (s *MemoryStore) PutKiosk(k models.Kiosk) models.Kiosk {
	s.mu.Lock()
	defer s.mu.Unlock()
	k.ID = s.id(k.ID)
	if k.Status == "" {
		k.Status = models.KioskStatusActive
	}
	s.kiosks[k.ID] = k
	return k
}

func (s *MemoryStore) PutCampaign(c models.Campaign) models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id(c.ID)
	c.SelectedKioskIDs = append(models.IDArray(nil), c.SelectedKioskIDs...)
	s.campaigns[c.ID] = c
	return c
}

func (s *MemoryStore) PutAsset(a models.MediaAsset) models.MediaAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id(a.ID)
	s.assets[a.ID] = a
	return a
}

func (s *MemoryStore) PutProviderConfig(p models.ProviderConfig) models.ProviderConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id(p.ID)
	s.providers[p.ID] = p
	return p
}

func (s *MemoryStore) GetKiosk(_ context.Context, id uint) (*models.Kiosk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kiosks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (s *MemoryStore) ListKiosks(_ context.Context, status models.KioskStatus) ([]models.Kiosk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Kiosk, 0, len(s.kiosks))
	for _, k := range s.kiosks {
		if status != "" && k.Status != status {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetCampaign(_ context.Context, id uint) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCampaignsForKiosk(_ context.Context, kioskID uint) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.SelectedKioskIDs.Contains(kioskID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id uint) (*models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ListAssetsByCampaign(_ context.Context, campaignID uint) ([]models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MediaAsset
	for _, a := range s.assets {
		if a.CampaignID != nil && *a.CampaignID == campaignID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateAssetStatus(_ context.Context, id uint, status models.AssetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	s.assets[id] = a
	return nil
}

func (s *MemoryStore) SetAssetProviderFileID(_ context.Context, id uint, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return ErrNotFound
	}
	if a.ProviderFileID == nil || *a.ProviderFileID == "" {
		a.ProviderFileID = &fileID
		s.assets[id] = a
	}
	return nil
}

func (s *MemoryStore) GetProviderConfig(_ context.Context, id uint) (*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ActiveProviderConfig(_ context.Context) (*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active *models.ProviderConfig
	for _, p := range s.providers {
		if !p.IsActive {
			continue
		}
		if active == nil || p.ID < active.ID {
			p := p
			active = &p
		}
	}
	if active == nil {
		return nil, ErrNoActiveProvider
	}
	return active, nil
}

func (s *MemoryStore) ActivateProviderConfig(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[id]; !ok {
		return ErrNotFound
	}
	for pid, p := range s.providers {
		p.IsActive = pid == id
		s.providers[pid] = p
	}
	return nil
}

func (s *MemoryStore) GetFolderMapping(_ context.Context, kioskID, providerConfigID uint) (*models.FolderMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[[2]uint{kioskID, providerConfigID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) SaveFolderMapping(_ context.Context, mapping *models.FolderMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]uint{mapping.KioskID, mapping.GDriveConfigID}
	now := time.Now()
	if existing, ok := s.mappings[key]; ok {
		mapping.ID = existing.ID
		mapping.CreatedAt = existing.CreatedAt
	} else {
		mapping.ID = s.id(0)
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	s.mappings[key] = *mapping
	return nil
}

func (s *MemoryStore) CreateUploadJob(_ context.Context, job *models.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.id(0)
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	s.uploads[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetUploadJob(_ context.Context, id uint) (*models.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.uploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (s *MemoryStore) ListUploadJobs(_ context.Context, filter UploadJobFilter) ([]models.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UploadJob
	for _, j := range s.uploads {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.KioskID != 0 && j.KioskID != filter.KioskID {
			continue
		}
		if filter.MediaAssetID != 0 && j.MediaAssetID != filter.MediaAssetID {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListDueUploadJobs(_ context.Context, now time.Time, limit int) ([]models.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UploadJob
	for _, j := range s.uploads {
		if j.Status == models.JobStatusPending && !j.ScheduledTime.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledTime.Equal(out[j].ScheduledTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ClaimUploadJob(_ context.Context, id uint, version int, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.uploads[id]
	if !ok || j.Status != models.JobStatusPending || j.Version != version {
		return false, nil
	}
	j.Status = models.JobStatusUploading
	j.Version++
	j.StartedAt = &startedAt
	j.UpdatedAt = time.Now()
	s.uploads[id] = j
	return true, nil
}

func (s *MemoryStore) FinishUploadJob(_ context.Context, id uint, result UploadJobResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.uploads[id]
	if !ok || j.Status != models.JobStatusUploading {
		return false, nil
	}
	completedAt := result.CompletedAt
	j.Status = result.Status
	j.ProviderFileID = result.ProviderFileID
	j.ErrorKind = result.ErrorKind
	j.ErrorMessage = result.ErrorMessage
	j.CompletedAt = &completedAt
	j.Version++
	j.UpdatedAt = time.Now()
	s.uploads[id] = j
	return true, nil
}

func (s *MemoryStore) CancelUploadJob(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.uploads[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	j.Status = models.JobStatusCancelled
	j.Version++
	j.UpdatedAt = time.Now()
	s.uploads[id] = j
	return true, nil
}

func (s *MemoryStore) FindLiveUploadJob(_ context.Context, assetID, kioskID, providerConfigID uint) (*models.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.uploads {
		if j.MediaAssetID != assetID || j.KioskID != kioskID || j.GDriveConfigID != providerConfigID {
			continue
		}
		switch j.Status {
		case models.JobStatusPending, models.JobStatusUploading, models.JobStatusCompleted:
			return &j, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) LatestCompletedUploadJob(_ context.Context, assetID, kioskID, providerConfigID uint) (*models.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.UploadJob
	for _, j := range s.uploads {
		if j.MediaAssetID != assetID || j.KioskID != kioskID || j.GDriveConfigID != providerConfigID {
			continue
		}
		if j.Status != models.JobStatusCompleted || j.ProviderFileID == "" {
			continue
		}
		if latest == nil || newerJob(j, *latest) {
			j := j
			latest = &j
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func newerJob(a, b models.UploadJob) bool {
	var at, bt time.Time
	if a.CompletedAt != nil {
		at = *a.CompletedAt
	}
	if b.CompletedAt != nil {
		bt = *b.CompletedAt
	}
	if at.Equal(bt) {
		return a.ID > b.ID
	}
	return at.After(bt)
}

func (s *MemoryStore) CountUploadJobsByStatus(_ context.Context) (map[models.JobStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.JobStatus]int64)
	for _, j := range s.uploads {
		out[j.Status]++
	}
	return out, nil
}

func (s *MemoryStore) CreateSyncJob(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.id(0)
	if job.Status == "" {
		job.Status = models.SyncStatusPending
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	s.syncs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetSyncJob(_ context.Context, id uint) (*models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.syncs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &j, nil
}

func (s *MemoryStore) ListPendingSyncJobs(_ context.Context, limit int) ([]models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SyncJob
	for _, j := range s.syncs {
		if j.Status == models.SyncStatusPending {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ClaimSyncJob(_ context.Context, id uint, version int, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.syncs[id]
	if !ok || j.Status != models.SyncStatusPending || j.Version != version {
		return false, nil
	}
	j.Status = models.SyncStatusSyncing
	j.Version++
	j.StartedAt = &startedAt
	j.UpdatedAt = time.Now()
	s.syncs[id] = j
	return true, nil
}

func (s *MemoryStore) FinishSyncJob(_ context.Context, id uint, result SyncJobResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.syncs[id]
	if !ok || j.Status != models.SyncStatusSyncing {
		return false, nil
	}
	completedAt := result.CompletedAt
	j.Status = result.Status
	j.FilesSynced = result.FilesSynced
	j.FilesArchived = result.FilesArchived
	j.FilesActivated = result.FilesActivated
	j.ErrorMessage = result.ErrorMessage
	j.CompletedAt = &completedAt
	j.Version++
	j.UpdatedAt = time.Now()
	s.syncs[id] = j
	return true, nil
}

func (s *MemoryStore) CreateErrorLog(_ context.Context, entry *models.ErrorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id(0)
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	s.errorLogs = append(s.errorLogs, *entry)
	return nil
}

func (s *MemoryStore) ListErrorLogs(_ context.Context, unresolvedOnly bool, limit int) ([]models.ErrorLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ErrorLog
	for i := len(s.errorLogs) - 1; i >= 0; i-- {
		e := s.errorLogs[i]
		if unresolvedOnly && e.Resolved {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
