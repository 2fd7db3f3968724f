package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/repository"
)

const (
	LevelError = "ERROR"
	LevelWarn  = "WARN"
	LevelInfo  = "INFO"
)

type MonitoringService struct {
	store  repository.ErrorLogRepo
	logger *zap.Logger
}

func NewMonitoringService(store repository.ErrorLogRepo, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		store:  store,
		logger: logger,
	}
}

// RecordError persists an operator-facing error log row. A failure to
// persist is logged and returned.
func (m *MonitoringService) RecordError(ctx context.Context, level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	if err := m.store.CreateErrorLog(ctx, errorLog); err != nil {
		m.logger.Error("Failed to record error log",
			zap.String("source", source),
			zap.String("title", title),
			zap.Error(err))
		return err
	}
	return nil
}

// RecentErrors returns the newest error log rows first.
func (m *MonitoringService) RecentErrors(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ErrorLog, error) {
	return m.store.ListErrorLogs(ctx, unresolvedOnly, limit)
}

type ErrorLogOption func(*models.ErrorLog)

func WithProvider(providerConfigID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ProviderConfigID = &providerConfigID
	}
}

func WithKiosk(kioskID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.KioskID = &kioskID
	}
}

func WithUploadJob(jobID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.UploadJobID = &jobID
	}
}

func WithSyncJob(jobID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.SyncJobID = &jobID
	}
}

// WithContext attaches arbitrary key/value details as JSON.
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}
