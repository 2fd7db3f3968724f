package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/drive"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
	"github.com/ifuryst/kiosksync/internal/storage"
	"github.com/ifuryst/kiosksync/pkg/util"
)

// Uploader places one asset into one kiosk folder. The queue and the
// orchestrator's direct fallback both go through it.
type Uploader struct {
	store    repository.AssetRepo
	registry *FolderRegistry
	source   storage.AssetSource
	client   drive.Client
	logger   *zap.Logger
}

func NewUploader(store repository.AssetRepo, registry *FolderRegistry, source storage.AssetSource, client drive.Client, logger *zap.Logger) *Uploader {
	return &Uploader{
		store:    store,
		registry: registry,
		source:   source,
		client:   client,
		logger:   logger,
	}
}

func (u *Uploader) Upload(ctx context.Context, cfg *models.ProviderConfig, asset *models.MediaAsset, kioskID uint, folderType models.FolderType) (*drive.File, error) {
	if !folderType.Valid() {
		return nil, fmt.Errorf("%w: unknown folder type %q", ErrInvalidRequest, folderType)
	}

	mapping, err := u.registry.ensure(ctx, cfg, kioskID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure folders for kiosk %d: %w", kioskID, err)
	}
	folderID, err := FolderID(mapping, folderType)
	if err != nil {
		return nil, err
	}

	obj, err := u.source.Fetch(ctx, asset.FileReference)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset %d: %w", asset.ID, err)
	}

	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = obj.ContentType
	}
	name := util.UploadFileName(asset.FileName, asset.FileReference, asset.ID)

	file, err := u.client.UploadFileFromBytes(ctx, cfg, obj.Data, name, mimeType, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to upload asset %d to kiosk %d: %w", asset.ID, kioskID, err)
	}

	if err := u.store.SetAssetProviderFileID(ctx, asset.ID, file.ID); err != nil {
		u.logger.Warn("Failed to record provider file id on asset",
			zap.Uint("asset_id", asset.ID),
			zap.String("file_id", file.ID),
			zap.Error(err))
	}

	u.logger.Info("Asset uploaded",
		zap.Uint("asset_id", asset.ID),
		zap.Uint("kiosk_id", kioskID),
		zap.String("folder_type", string(folderType)),
		zap.String("file_id", file.ID))
	return file, nil
}
