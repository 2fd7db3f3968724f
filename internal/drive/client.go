// Package drive is the adapter to the remote file-storage provider hosting
// the kiosk folder trees. Every call takes the provider config explicitly;
// the adapter keeps no notion of a current account.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/models"
)

const FolderMimeType = "application/vnd.google-apps.folder"

const fileFields = "id, name, mimeType, parents, size, trashed"

// File is the subset of provider file metadata the engine reads.
type File struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mime_type"`
	Parents  []string `json:"parents"`
	Size     int64    `json:"size"`
}

// IsFolder reports whether the entry is a folder.
func (f *File) IsFolder() bool {
	return f != nil && f.MimeType == FolderMimeType
}

// InFolder reports whether folderID is one of the file's parents.
func (f *File) InFolder(folderID string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.Parents {
		if p == folderID {
			return true
		}
	}
	return false
}

// Client is the set of provider primitives the engine depends on.
type Client interface {
	CreateFolder(ctx context.Context, cfg *models.ProviderConfig, name, parentID string) (*File, error)
	ListChildren(ctx context.Context, cfg *models.ProviderConfig, folderID string) ([]File, error)
	// MoveFile is a no-op when fromID equals toID.
	MoveFile(ctx context.Context, cfg *models.ProviderConfig, fileID, fromID, toID string) error
	UploadFileFromBytes(ctx context.Context, cfg *models.ProviderConfig, data []byte, name, mimeType, folderID string) (*File, error)
	DeleteFile(ctx context.Context, cfg *models.ProviderConfig, fileID string) error
	GetFile(ctx context.Context, cfg *models.ProviderConfig, fileID string) (*File, error)
}

type account struct {
	fingerprint string
	service     *gdrive.Service
	limiter     *rate.Limiter
}

// DriveClient talks to Google Drive v3. Authenticated services are cached
// per provider config and rebuilt when the stored credentials change.
type DriveClient struct {
	config *config.DriveConfig
	logger *zap.Logger

	mu       sync.Mutex
	accounts map[uint]*account
}

func NewDriveClient(cfg *config.DriveConfig, logger *zap.Logger) *DriveClient {
	return &DriveClient{
		config:   cfg,
		logger:   logger,
		accounts: make(map[uint]*account),
	}
}

func fingerprint(cfg *models.ProviderConfig) string {
	expiry := ""
	if cfg.TokenExpiry != nil {
		expiry = strconv.FormatInt(cfg.TokenExpiry.Unix(), 10)
	}
	return strings.Join([]string{cfg.ClientID, cfg.AccessToken, cfg.RefreshToken, expiry}, "|")
}

func (c *DriveClient) account(ctx context.Context, op string, cfg *models.ProviderConfig) (*account, error) {
	if cfg == nil {
		return nil, NewError(op, KindInvalidCredentials, fmt.Errorf("provider config is required"))
	}
	if cfg.AccessToken == "" && cfg.RefreshToken == "" {
		return nil, NewError(op, KindInvalidCredentials, fmt.Errorf("provider config %d has no token", cfg.ID))
	}

	fp := fingerprint(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if acc, ok := c.accounts[cfg.ID]; ok && acc.fingerprint == fp {
		return acc, nil
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gdrive.DriveScope},
	}
	if c.config.TokenURL != "" {
		oauthConfig.Endpoint.TokenURL = c.config.TokenURL
	}

	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	if cfg.TokenExpiry != nil {
		token.Expiry = *cfg.TokenExpiry
	}

	// The cached service outlives the request, so the base client is bound
	// to a background context.
	baseCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Timeout: c.config.RequestTimeout(),
	})
	httpClient := oauth2.NewClient(baseCtx, oauthConfig.TokenSource(baseCtx, token))

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.config.Endpoint))
	}

	service, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("failed to create drive service: %w", err))
	}

	acc := &account{
		fingerprint: fp,
		service:     service,
		limiter:     rate.NewLimiter(rate.Limit(c.config.RequestsPerSecond), c.config.Burst),
	}
	c.accounts[cfg.ID] = acc

	c.logger.Debug("Drive account initialized", zap.Uint("provider_config_id", cfg.ID))
	return acc, nil
}

func (c *DriveClient) begin(ctx context.Context, op string, cfg *models.ProviderConfig) (*account, error) {
	acc, err := c.account(ctx, op, cfg)
	if err != nil {
		return nil, err
	}
	if err := acc.limiter.Wait(ctx); err != nil {
		return nil, wrap(op, err)
	}
	return acc, nil
}

func toFile(f *gdrive.File) *File {
	if f == nil {
		return nil
	}
	return &File{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Parents:  f.Parents,
		Size:     f.Size,
	}
}

func (c *DriveClient) CreateFolder(ctx context.Context, cfg *models.ProviderConfig, name, parentID string) (*File, error) {
	const op = "create_folder"
	acc, err := c.begin(ctx, op, cfg)
	if err != nil {
		return nil, err
	}

	created, err := acc.service.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, wrap(op, err)
	}

	c.logger.Info("Created drive folder",
		zap.Uint("provider_config_id", cfg.ID),
		zap.String("name", name),
		zap.String("parent_id", parentID),
		zap.String("folder_id", created.Id))
	return toFile(created), nil
}

func (c *DriveClient) ListChildren(ctx context.Context, cfg *models.ProviderConfig, folderID string) ([]File, error) {
	const op = "list_children"
	acc, err := c.begin(ctx, op, cfg)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	var files []File
	err = acc.service.Files.List().
		Q(query).
		Fields("nextPageToken", "files("+fileFields+")").
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *gdrive.FileList) error {
			for _, f := range page.Files {
				files = append(files, *toFile(f))
			}
			return nil
		})
	if err != nil {
		return nil, wrap(op, err)
	}
	return files, nil
}

func (c *DriveClient) MoveFile(ctx context.Context, cfg *models.ProviderConfig, fileID, fromID, toID string) error {
	const op = "move_file"
	if fromID == toID {
		return nil
	}
	acc, err := c.begin(ctx, op, cfg)
	if err != nil {
		return err
	}

	_, err = acc.service.Files.Update(fileID, &gdrive.File{}).
		AddParents(toID).
		RemoveParents(fromID).
		Fields("id, parents").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return wrap(op, err)
	}

	c.logger.Info("Moved drive file",
		zap.Uint("provider_config_id", cfg.ID),
		zap.String("file_id", fileID),
		zap.String("from", fromID),
		zap.String("to", toID))
	return nil
}

func (c *DriveClient) UploadFileFromBytes(ctx context.Context, cfg *models.ProviderConfig, data []byte, name, mimeType, folderID string) (*File, error) {
	const op = "upload_file"
	acc, err := c.begin(ctx, op, cfg)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	created, err := acc.service.Files.Create(&gdrive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrap(op, err)
	}

	c.logger.Info("Uploaded drive file",
		zap.Uint("provider_config_id", cfg.ID),
		zap.String("name", name),
		zap.String("folder_id", folderID),
		zap.String("file_id", created.Id),
		zap.Int("bytes", len(data)))
	return toFile(created), nil
}

func (c *DriveClient) DeleteFile(ctx context.Context, cfg *models.ProviderConfig, fileID string) error {
	const op = "delete_file"
	acc, err := c.begin(ctx, op, cfg)
	if err != nil {
		return err
	}
	if err := acc.service.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return wrap(op, err)
	}
	return nil
}

func (c *DriveClient) GetFile(ctx context.Context, cfg *models.ProviderConfig, fileID string) (*File, error) {
	const op = "get_file"
	acc, err := c.begin(ctx, op, cfg)
	if err != nil {
		return nil, err
	}
	f, err := acc.service.Files.Get(fileID).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, wrap(op, err)
	}
	if f.Trashed {
		return nil, NewError(op, KindNotFound, fmt.Errorf("file %s is trashed", fileID))
	}
	return toFile(f), nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

