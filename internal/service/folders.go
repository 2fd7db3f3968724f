package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/lock"
	"github.com/ifuryst/kiosksync/internal/metrics"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
)

const (
	scheduledFolderName = "Scheduled"
	activeFolderName    = "Active"
	archiveFolderName   = "Archive"
	defaultRootFolderID = "root"
)

// FolderRegistry owns the per-kiosk folder mapping and provisions the
// remote tree <root>/<kiosks folder>/<kiosk name>/{Scheduled,Active,Archive}.
type FolderRegistry struct {
	store            repository.Store
	client           drive.Client
	locker           lock.Locker
	metrics          *metrics.Collector
	logger           *zap.Logger
	kiosksFolderName string
}

func NewFolderRegistry(store repository.Store, client drive.Client, locker lock.Locker, kiosksFolderName string, collector *metrics.Collector, logger *zap.Logger) *FolderRegistry {
	if kiosksFolderName == "" {
		kiosksFolderName = "Kiosks"
	}
	return &FolderRegistry{
		store:            store,
		client:           client,
		locker:           locker,
		metrics:          collector,
		logger:           logger,
		kiosksFolderName: kiosksFolderName,
	}
}

// EnsureFolders returns a complete folder mapping for the kiosk under the
// given provider config, creating whatever is missing. Provider errors are
// returned as-is.
func (r *FolderRegistry) EnsureFolders(ctx context.Context, kioskID, providerConfigID uint) (*models.FolderMapping, error) {
	cfg, err := r.store.GetProviderConfig(ctx, providerConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider config %d: %w", providerConfigID, err)
	}
	return r.ensure(ctx, cfg, kioskID)
}

func (r *FolderRegistry) ensure(ctx context.Context, cfg *models.ProviderConfig, kioskID uint) (*models.FolderMapping, error) {
	mapping, err := r.lookup(ctx, kioskID, cfg.ID)
	if err != nil {
		return nil, err
	}
	if mapping.Complete() {
		return mapping, nil
	}

	unlock, err := r.locker.Lock(ctx, lock.KioskKey(kioskID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another holder may have provisioned the folders while we waited.
	mapping, err = r.lookup(ctx, kioskID, cfg.ID)
	if err != nil {
		return nil, err
	}
	if mapping.Complete() {
		return mapping, nil
	}

	kiosk, err := r.store.GetKiosk(ctx, kioskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load kiosk %d: %w", kioskID, err)
	}

	if mapping == nil {
		mapping = &models.FolderMapping{KioskID: kioskID, GDriveConfigID: cfg.ID}
	}

	created := 0
	if mapping.KioskFolderID == "" {
		root := cfg.RootFolderID
		if root == "" {
			root = defaultRootFolderID
		}
		kiosksFolderID, n, err := r.findOrCreate(ctx, cfg, r.kiosksFolderName, root)
		created += n
		if err != nil {
			return nil, err
		}
		mapping.KioskFolderID, n, err = r.findOrCreate(ctx, cfg, kioskFolderName(kiosk), kiosksFolderID)
		created += n
		if err != nil {
			return nil, err
		}
	}

	if mapping.ScheduledFolderID == nil || *mapping.ScheduledFolderID == "" {
		id, n, err := r.findOrCreate(ctx, cfg, scheduledFolderName, mapping.KioskFolderID)
		created += n
		if err != nil {
			return nil, err
		}
		mapping.ScheduledFolderID = &id
	}
	if mapping.ActiveFolderID == "" {
		id, n, err := r.findOrCreate(ctx, cfg, activeFolderName, mapping.KioskFolderID)
		created += n
		if err != nil {
			return nil, err
		}
		mapping.ActiveFolderID = id
	}
	if mapping.ArchiveFolderID == "" {
		id, n, err := r.findOrCreate(ctx, cfg, archiveFolderName, mapping.KioskFolderID)
		created += n
		if err != nil {
			return nil, err
		}
		mapping.ArchiveFolderID = id
	}

	if err := r.store.SaveFolderMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("failed to save folder mapping for kiosk %d: %w", kioskID, err)
	}
	r.metrics.ObserveFoldersCreated(created)

	r.logger.Info("Kiosk folders ensured",
		zap.Uint("kiosk_id", kioskID),
		zap.Uint("provider_config_id", cfg.ID),
		zap.Int("folders_created", created))
	return mapping, nil
}

func (r *FolderRegistry) lookup(ctx context.Context, kioskID, providerConfigID uint) (*models.FolderMapping, error) {
	mapping, err := r.store.GetFolderMapping(ctx, kioskID, providerConfigID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folder mapping for kiosk %d: %w", kioskID, err)
	}
	return mapping, nil
}

// findOrCreate returns the id of the folder called name under parentID,
// creating it when absent. The int result is the number of folders created.
func (r *FolderRegistry) findOrCreate(ctx context.Context, cfg *models.ProviderConfig, name, parentID string) (string, int, error) {
	children, err := r.client.ListChildren(ctx, cfg, parentID)
	if err != nil {
		return "", 0, err
	}
	for _, child := range children {
		if child.IsFolder() && child.Name == name {
			return child.ID, 0, nil
		}
	}

	folder, err := r.client.CreateFolder(ctx, cfg, name, parentID)
	if err != nil {
		return "", 0, err
	}
	return folder.ID, 1, nil
}

func kioskFolderName(kiosk *models.Kiosk) string {
	if name := strings.TrimSpace(kiosk.Name); name != "" {
		return name
	}
	return fmt.Sprintf("kiosk-%d", kiosk.ID)
}

// FolderID resolves a logical folder type to the provider folder id.
func FolderID(mapping *models.FolderMapping, folderType models.FolderType) (string, error) {
	if mapping == nil {
		return "", fmt.Errorf("no folder mapping")
	}
	var id string
	switch folderType {
	case models.FolderTypeScheduled:
		if mapping.ScheduledFolderID != nil {
			id = *mapping.ScheduledFolderID
		}
	case models.FolderTypeActive:
		id = mapping.ActiveFolderID
	case models.FolderTypeArchive:
		id = mapping.ArchiveFolderID
	default:
		return "", fmt.Errorf("%w: unknown folder type %q", ErrInvalidRequest, folderType)
	}
	if id == "" {
		return "", fmt.Errorf("kiosk %d has no %s folder", mapping.KioskID, folderType)
	}
	return id, nil
}
